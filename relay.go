package pushbridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultNotificationOpenedEvent is the event name emitted into the runtime.
const DefaultNotificationOpenedEvent = "remoteNotificationOpened"

// RuntimeState describes how far the application runtime has booted.
type RuntimeState int

const (
	RuntimeNotStarted RuntimeState = iota
	RuntimeInitializing
	RuntimeReady
)

func (s RuntimeState) String() string {
	switch s {
	case RuntimeNotStarted:
		return "NOT_STARTED"
	case RuntimeInitializing:
		return "INITIALIZING"
	case RuntimeReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// RuntimeContext is a live application runtime that can receive events.
type RuntimeContext interface {
	Emit(event string, payload Bundle) error
}

// ReadyListener is notified when the runtime context has been created.
type ReadyListener interface {
	OnContextReady(rc RuntimeContext)
}

// RuntimeHost owns the lifecycle of the process-wide runtime context.
type RuntimeHost interface {
	// CurrentContext returns the ready context, or nil if there is none yet.
	CurrentContext() RuntimeContext

	AddReadyListener(l ReadyListener)
	RemoveReadyListener(l ReadyListener)

	// HasStartedCreatingContext reports whether creation was already requested.
	HasStartedCreatingContext() bool

	// CreateContextInBackground starts creating the context without blocking.
	CreateContextInBackground()
}

// RelayOption configures NotificationOpenRelay.
type RelayOption func(*NotificationOpenRelay)

// WithRelayLogger sets a custom logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *NotificationOpenRelay) {
		r.logger = logger
	}
}

// WithEventName overrides the emitted event name.
func WithEventName(name string) RelayOption {
	return func(r *NotificationOpenRelay) {
		r.eventName = name
	}
}

// NotificationOpenRelay forwards notification taps into the application runtime.
type NotificationOpenRelay struct {
	host      RuntimeHost
	logger    *slog.Logger
	eventName string
}

// NewNotificationOpenRelay creates a relay delivering into host.
func NewNotificationOpenRelay(host RuntimeHost, opts ...RelayOption) *NotificationOpenRelay {
	r := &NotificationOpenRelay{
		host:      host,
		logger:    slog.Default(),
		eventName: DefaultNotificationOpenedEvent,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "NotificationOpenRelay")
	return r
}

// OnNotificationTapped handles one notification-tap signal. The payload is
// emitted into the runtime exactly once: now if the runtime is ready,
// otherwise as soon as it becomes ready. The app is then brought to the
// foreground whether or not the event has been delivered yet. It never blocks
// on runtime creation and never panics across the OS boundary.
func (r *NotificationOpenRelay) OnNotificationTapped(ctx context.Context, app AppContext, intent *Intent) {
	tapID := uuid.New()
	logger := r.logger.With("tap_id", tapID.String())
	logger.Info("Notification tap received")

	// Snapshot now: a later intent must never replace or mutate this payload.
	payload := intent.BundleExtra(NotificationExtra).Clone()

	if rc := r.host.CurrentContext(); rc != nil {
		r.emit(logger, rc, payload)
	} else {
		l := &pendingDelivery{relay: r, logger: logger, payload: payload}
		r.host.AddReadyListener(l)
		if !r.host.HasStartedCreatingContext() {
			logger.Debug("Runtime not started, creating context in background")
			r.host.CreateContextInBackground()
		}
		// The runtime may have become ready between the check and the
		// registration above; in that case nothing would fire the listener.
		if rc := r.host.CurrentContext(); rc != nil {
			l.OnContextReady(rc)
		}
	}

	if app == nil {
		logger.Error("No app context, skipping foreground launch")
		return
	}
	_ = OpenApp(ctx, app, logger)
}

func (r *NotificationOpenRelay) emit(logger *slog.Logger, rc RuntimeContext, payload Bundle) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Runtime panicked while emitting notification opened event", "panic", p)
		}
	}()
	if err := rc.Emit(r.eventName, payload); err != nil {
		logger.Error("Failed to emit notification opened event", "event", r.eventName, "error", err)
		return
	}
	logger.Debug("Emitted notification opened event", "event", r.eventName)
}

// pendingDelivery is the one-shot listener registered while the runtime boots.
type pendingDelivery struct {
	relay   *NotificationOpenRelay
	logger  *slog.Logger
	payload Bundle
	once    sync.Once
}

func (d *pendingDelivery) OnContextReady(rc RuntimeContext) {
	d.once.Do(func() {
		d.relay.host.RemoveReadyListener(d)
		d.relay.emit(d.logger, rc, d.payload)
	})
}
