// Package apphost provides in-process implementations of the host
// capabilities the bridge depends on: an application runtime with a
// readiness lifecycle and an event bus, and a device that can resolve and
// start the application's main activity.
package apphost

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/google/uuid"

	pb "github.com/slush-dev/pushbridge"
)

// AllEvents is the topic every emitted event is also published on.
const AllEvents = "*"

// maxEventHistory bounds the number of emitted events kept for inspection.
const maxEventHistory = 100

// ErrRuntimeClosed is returned when emitting into a closed runtime.
var ErrRuntimeClosed = errors.New("runtime closed")

// BootFunc creates the application runtime. It runs on its own goroutine.
type BootFunc func(ctx context.Context) error

// Event is one event emitted into the runtime.
type Event struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Payload   pb.Bundle `json:"payload" yaml:"payload"`
	EmittedAt time.Time `json:"emitted_at" yaml:"emitted_at"`
}

// Subscription receives Event values published on the subscribed topics.
type Subscription chan any

// RuntimeOption configures Runtime.
type RuntimeOption func(*Runtime)

// WithBootFunc sets the function that creates the runtime.
func WithBootFunc(fn BootFunc) RuntimeOption {
	return func(r *Runtime) {
		r.boot = fn
	}
}

// WithBootDelay boots the runtime after a fixed delay.
func WithBootDelay(d time.Duration) RuntimeOption {
	return WithBootFunc(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithBusCapacity sets the buffer size of subscriber channels.
func WithBusCapacity(n int) RuntimeOption {
	return func(r *Runtime) {
		r.busCapacity = n
	}
}

// Runtime is an application runtime that boots lazily. It implements
// pushbridge.RuntimeHost.
type Runtime struct {
	boot        BootFunc
	logger      *slog.Logger
	busCapacity int
	bus         *pubsub.PubSub

	mu        sync.Mutex
	state     pb.RuntimeState
	rc        *Context
	listeners []pb.ReadyListener
	ready     chan struct{}
	history   []Event
	closed    bool
	cancel    context.CancelFunc
	bootCount int
}

var _ pb.RuntimeHost = (*Runtime)(nil)

// NewRuntime creates a Runtime in the NOT_STARTED state.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		boot:        func(context.Context) error { return nil },
		logger:      slog.Default(),
		busCapacity: 128,
		ready:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "apphost.Runtime")
	r.bus = pubsub.New(r.busCapacity)
	return r
}

// State returns the current lifecycle state.
func (r *Runtime) State() pb.RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// BootCount returns how many times a boot was started.
func (r *Runtime) BootCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bootCount
}

// CurrentContext returns the ready context or nil.
func (r *Runtime) CurrentContext() pb.RuntimeContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rc == nil {
		return nil
	}
	return r.rc
}

// AddReadyListener registers l to be notified when the context is created.
// Listeners must be comparable (pointer types).
func (r *Runtime) AddReadyListener(l pb.ReadyListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RemoveReadyListener deregisters l. It is safe to call from OnContextReady.
func (r *Runtime) RemoveReadyListener(l pb.ReadyListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered ready listeners.
func (r *Runtime) ListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// HasStartedCreatingContext reports whether a boot is running or finished.
func (r *Runtime) HasStartedCreatingContext() bool {
	return r.State() != pb.RuntimeNotStarted
}

// CreateContextInBackground starts booting unless a boot is already running
// or done. It never blocks.
func (r *Runtime) CreateContextInBackground() {
	r.mu.Lock()
	if r.state != pb.RuntimeNotStarted || r.closed {
		r.mu.Unlock()
		return
	}
	r.state = pb.RuntimeInitializing
	r.bootCount++
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	r.logger.Debug("Creating runtime context in background")
	go r.run(ctx)
}

// Start boots the runtime if needed and waits until it is ready.
func (r *Runtime) Start(ctx context.Context) error {
	r.CreateContextInBackground()
	return r.WaitReady(ctx)
}

// WaitReady blocks until the runtime is ready or ctx ends.
func (r *Runtime) WaitReady(ctx context.Context) error {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) run(ctx context.Context) {
	if err := r.boot(ctx); err != nil {
		r.logger.Error("Runtime boot failed", "error", err)
		r.mu.Lock()
		// Back to NOT_STARTED so the next request can retry; pending
		// listeners stay registered.
		r.state = pb.RuntimeNotStarted
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	rc := &Context{rt: r}
	r.rc = rc
	r.state = pb.RuntimeReady
	pending := make([]pb.ReadyListener, len(r.listeners))
	copy(pending, r.listeners)
	close(r.ready)
	r.mu.Unlock()

	r.logger.Info("Runtime context ready", "pending_listeners", len(pending))
	for _, l := range pending {
		l.OnContextReady(rc)
	}
}

// Subscribe returns a channel receiving events named topic, or every event
// when topic is AllEvents.
// After Close the returned channel is already closed.
func (r *Runtime) Subscribe(topic string) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	r.logger.Debug("subscribe", "topic", topic)
	return r.bus.Sub(topic)
}

// Unsubscribe stops delivery to sub. With no topics it unsubscribes from all.
// It is a no-op after Close.
func (r *Runtime) Unsubscribe(sub Subscription, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if len(topics) == 0 {
		r.bus.Unsub(sub)
		return
	}
	r.bus.Unsub(sub, topics...)
}

// Events returns a copy of the most recent emitted events, oldest first.
func (r *Runtime) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

// Close stops any running boot and shuts the event bus down.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.bus.Shutdown()
}

func (r *Runtime) publish(ev Event) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRuntimeClosed
	}
	r.history = append(r.history, ev)
	if len(r.history) > maxEventHistory {
		r.history = r.history[len(r.history)-maxEventHistory:]
	}
	// Held across the send so Close cannot shut the bus down mid-publish.
	// TryPub drops the event for subscribers whose buffer is full.
	defer r.mu.Unlock()

	r.logger.Debug("publish", "event", ev.Name, "id", ev.ID.String())
	if ev.Name == AllEvents {
		r.bus.TryPub(ev, AllEvents)
	} else {
		r.bus.TryPub(ev, ev.Name, AllEvents)
	}
	return nil
}

// Context is the ready runtime. It implements pushbridge.RuntimeContext.
type Context struct {
	rt *Runtime
}

// Emit publishes an event to the runtime's subscribers.
func (c *Context) Emit(event string, payload pb.Bundle) error {
	return c.rt.publish(Event{
		ID:        uuid.New(),
		Name:      event,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
}
