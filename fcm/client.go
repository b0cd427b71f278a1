package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// credentialsFile is the name of the persisted registration inside the session dir.
const credentialsFile = "fcm_credentials.json"

// Credentials holds an Android-native FCM registration.
type Credentials struct {
	Raw      json.RawMessage `json:"raw"` // GCM credentials (androidId, securityToken)
	Token    string          `json:"token"`
	Package  string          `json:"package"`
	SenderID string          `json:"sender_id"`
}

func (c *Credentials) matches(app AppIdentity) bool {
	return c.Package == app.Package && c.SenderID == app.SenderID
}

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger for Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for GCM requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithSessionDir persists credentials under dir. Without it they live in memory only.
func WithSessionDir(dir string) Option {
	return func(c *Client) {
		c.sessionDir = dir
	}
}

// WithDevice overrides the emulated Android device.
func WithDevice(device AndroidDeviceInfo) Option {
	return func(c *Client) {
		c.device = device
	}
}

// Client registers an application with FCM and hands out its token.
// It implements pushbridge.TokenSource.
type Client struct {
	identity    AppIdentity
	device      AndroidDeviceInfo
	credentials *Credentials
	sessionDir  string
	logger      *slog.Logger
	httpClient  *http.Client
	mu          sync.Mutex
}

// NewClient creates a Client registering on behalf of identity.
func NewClient(identity AppIdentity, opts ...Option) *Client {
	c := &Client{
		identity:   identity,
		device:     DefaultAndroidDevice(),
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "fcm.Client", "package", identity.Package)
	return c
}

// Token returns the registration token, registering first if needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.Register(ctx)
}

// CurrentToken returns the registered token without contacting the backend.
func (c *Client) CurrentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return ""
	}
	return c.credentials.Token
}

// Credentials returns a copy of the current FCM credentials (nil if not registered).
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return nil
	}
	cpy := *c.credentials
	cpy.Raw = make(json.RawMessage, len(c.credentials.Raw))
	copy(cpy.Raw, c.credentials.Raw)
	return &cpy
}

// Reset forgets the registration, including the persisted copy.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = nil
	if c.sessionDir == "" {
		return nil
	}
	if err := os.Remove(c.credentialsPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing FCM credentials: %w", err)
	}
	return nil
}

// Register performs Android-native FCM registration. A registration for the
// same package and sender, in memory or on disk, is reused. If only the
// identity changed, the existing device credentials are checked in again.
func (c *Client) Register(ctx context.Context) (string, error) {
	if err := c.identity.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.credentials == nil && c.sessionDir != "" {
		if err := c.loadCredentials(); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("failed to load persisted FCM credentials; attempting fresh registration", "error", err)
		}
	}
	if c.credentials != nil && c.credentials.Token != "" && c.credentials.matches(c.identity) {
		c.logger.Debug("FCM credentials already exist, reusing token")
		return c.credentials.Token, nil
	}

	var prev gcmCredentials
	if c.credentials != nil {
		if err := json.Unmarshal(c.credentials.Raw, &prev); err != nil {
			prev = gcmCredentials{}
		}
	}

	c.logger.Debug("Starting Android-native FCM registration", "sender_id", c.identity.SenderID, "recheckin", prev.AndroidID != 0)
	httpClient := c.loggingHTTPClient()

	androidID, securityToken, err := gcmCheckin(ctx, httpClient, prev.AndroidID, prev.SecurityToken, c.device)
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (checkin): %w", err)
	}
	c.logger.Debug("GCM checkin complete", "androidId", androidID)

	fcmToken, err := gcmRegister(ctx, httpClient, androidID, securityToken, c.device, c.identity)
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (register): %w", err)
	}
	if fcmToken == "" {
		return "", fmt.Errorf("FCM registration returned empty token")
	}

	rawCreds, err := json.Marshal(gcmCredentials{AndroidID: androidID, SecurityToken: securityToken})
	if err != nil {
		return "", fmt.Errorf("serializing GCM credentials: %w", err)
	}
	c.credentials = &Credentials{
		Raw:      rawCreds,
		Token:    fcmToken,
		Package:  c.identity.Package,
		SenderID: c.identity.SenderID,
	}

	if c.sessionDir != "" {
		if err := c.saveCredentials(); err != nil {
			c.logger.Error("Failed to save FCM credentials", "error", err)
		}
	}

	c.logger.Info("FCM registration complete", "token_prefix", truncate(fcmToken, 20))
	return fcmToken, nil
}

func (c *Client) credentialsPath() string {
	return filepath.Join(c.sessionDir, credentialsFile)
}

func (c *Client) loadCredentials() error {
	data, err := os.ReadFile(c.credentialsPath())
	if err != nil {
		return err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing FCM credentials: %w", err)
	}
	c.credentials = &creds
	return nil
}

func (c *Client) saveCredentials() error {
	if c.credentials == nil {
		return fmt.Errorf("no credentials to save")
	}
	if err := os.MkdirAll(c.sessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := json.MarshalIndent(c.credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing FCM credentials: %w", err)
	}
	if err := os.WriteFile(c.credentialsPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	c.logger.Debug("Saved FCM credentials", "path", c.credentialsPath())
	return nil
}

// loggingHTTPClient wraps the HTTP client with request/response logging when
// the logger is at Debug level.
func (c *Client) loggingHTTPClient() *http.Client {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return c.httpClient
	}
	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: &loggingRoundTripper{inner: transport, logger: c.logger},
		Timeout:   c.httpClient.Timeout,
	}
}

type loggingRoundTripper struct {
	inner  http.RoundTripper
	logger *slog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t.logger.Debug(">>> "+req.Method, "url", req.URL.String())
	for k, v := range req.Header {
		if k == "Authorization" {
			t.logger.Debug("  Request header", "key", k, "value", "<redacted>")
			continue
		}
		t.logger.Debug("  Request header", "key", k, "value", strings.Join(v, ", "))
	}
	if req.Body != nil && req.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil {
			t.logger.Debug("  Request body", "length", len(bodyBytes))
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		t.logger.Debug("<<< Error", "error", err)
		return nil, err
	}

	t.logger.Debug("<<< Response", "status", resp.StatusCode, "url", req.URL.String())
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr == nil {
		t.logger.Debug("  Response body", "length", len(respBody), "data", truncate(string(respBody), 200))
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
	}
	return resp, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
