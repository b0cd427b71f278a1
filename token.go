package pushbridge

import (
	"context"
	"log/slog"
	"time"
)

// TokenSource is the push-messaging backend that issues registration tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a plain function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// TokenResult carries either a token or the failure reported by the backend.
type TokenResult struct {
	Token string
	Err   error
}

// TokenProviderOption configures TokenProvider.
type TokenProviderOption func(*TokenProvider)

// WithTokenLogger sets a custom logger.
func WithTokenLogger(logger *slog.Logger) TokenProviderOption {
	return func(p *TokenProvider) {
		p.logger = logger
	}
}

// WithTokenTimeout bounds each backend request. Zero means no bound.
func WithTokenTimeout(d time.Duration) TokenProviderOption {
	return func(p *TokenProvider) {
		p.timeout = d
	}
}

// TokenProvider requests registration tokens from a TokenSource. It keeps no
// token between calls and never retries.
type TokenProvider struct {
	source  TokenSource
	logger  *slog.Logger
	timeout time.Duration
}

// NewTokenProvider creates a TokenProvider backed by src.
func NewTokenProvider(src TokenSource, opts ...TokenProviderOption) *TokenProvider {
	p := &TokenProvider{
		source: src,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "TokenProvider")
	return p
}

// GetToken requests a token and returns immediately. Exactly one of onSuccess
// or onError is invoked, exactly once, from a goroutine owned by the provider.
// Callbacks that touch shared state must do their own synchronization.
func (p *TokenProvider) GetToken(onSuccess func(token string), onError func(message string)) {
	go func() {
		res := p.fetch(context.Background())
		if res.Err != nil {
			if onError != nil {
				onError(res.Err.Error())
			}
			return
		}
		if onSuccess != nil {
			onSuccess(res.Token)
		}
	}()
}

// Fetch requests a token asynchronously. The returned channel receives exactly
// one result and is then closed.
func (p *TokenProvider) Fetch(ctx context.Context) <-chan TokenResult {
	ch := make(chan TokenResult, 1)
	go func() {
		defer close(ch)
		ch <- p.fetch(ctx)
	}()
	return ch
}

// Token requests a token and waits for the backend to answer or ctx to end.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	select {
	case res := <-p.Fetch(ctx):
		return res.Token, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *TokenProvider) fetch(ctx context.Context) TokenResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	token, err := p.source.Token(ctx)
	if err != nil || token == "" {
		err = normalizeTokenError(err)
		p.logger.Error("Error getting token", "error", err)
		return TokenResult{Err: err}
	}

	p.logger.Info("Got token", "token_prefix", truncate(token, 20))
	return TokenResult{Token: token}
}

// normalizeTokenError makes sure a failure always carries a readable message.
func normalizeTokenError(err error) error {
	if err == nil || err.Error() == "" {
		return ErrTokenUnavailable
	}
	return err
}

// truncate returns the first maxLen bytes of s, or s itself if shorter.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
