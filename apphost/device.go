package apphost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	pb "github.com/slush-dev/pushbridge"
)

// ActionMain is the action of launcher intents.
const ActionMain = "android.intent.action.MAIN"

// CommandStarter starts an external command without waiting for it.
type CommandStarter func(name string, args []string, env []string) error

// DeviceOption configures Device.
type DeviceOption func(*Device)

// WithLauncherActivity registers className as the package's main entry point.
func WithLauncherActivity(className string) DeviceOption {
	return func(d *Device) {
		d.launcher = className
		d.classes[className] = struct{}{}
	}
}

// WithClasses registers loadable activity classes.
func WithClasses(names ...string) DeviceOption {
	return func(d *Device) {
		for _, n := range names {
			d.classes[n] = struct{}{}
		}
	}
}

// WithClassLoader replaces the class lookup.
func WithClassLoader(fn func(name string) error) DeviceOption {
	return func(d *Device) {
		d.loadClass = fn
	}
}

// WithLaunchCommand runs name with args whenever an activity is started.
func WithLaunchCommand(name string, args ...string) DeviceOption {
	return func(d *Device) {
		d.launchCmd = name
		d.launchArgs = args
	}
}

// WithCommandStarter overrides how the launch command is started.
func WithCommandStarter(fn CommandStarter) DeviceOption {
	return func(d *Device) {
		d.startCommand = fn
	}
}

// WithDeviceLogger sets a custom logger.
func WithDeviceLogger(logger *slog.Logger) DeviceOption {
	return func(d *Device) {
		d.logger = logger
	}
}

// Device is a host application package on a desktop host. It implements
// pushbridge.AppContext.
type Device struct {
	pkg          string
	launcher     string
	classes      map[string]struct{}
	loadClass    func(name string) error
	launchCmd    string
	launchArgs   []string
	startCommand CommandStarter
	logger       *slog.Logger

	mu      sync.Mutex
	started []*pb.Intent
}

var _ pb.AppContext = (*Device)(nil)

// NewDevice creates a Device for package pkg.
func NewDevice(pkg string, opts ...DeviceOption) *Device {
	d := &Device{
		pkg:          pkg,
		classes:      make(map[string]struct{}),
		startCommand: startCommandDetached,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.loadClass == nil {
		d.loadClass = d.knownClass
	}
	d.logger = d.logger.With("component", "apphost.Device", "package", pkg)
	return d
}

func (d *Device) PackageName() string { return d.pkg }

func (d *Device) LaunchIntentForPackage(pkg string) (*pb.Intent, bool) {
	if pkg != d.pkg || d.launcher == "" {
		return nil, false
	}
	return &pb.Intent{
		Action:    ActionMain,
		Component: &pb.Component{Package: d.pkg, Class: d.launcher},
		Package:   d.pkg,
	}, true
}

func (d *Device) LoadClass(name string) error {
	return d.loadClass(name)
}

func (d *Device) knownClass(name string) error {
	if _, ok := d.classes[name]; !ok {
		return fmt.Errorf("class %q not registered", name)
	}
	return nil
}

// StartActivity records the intent and runs the launch command, if any.
func (d *Device) StartActivity(ctx context.Context, intent *pb.Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if intent == nil || intent.Component == nil {
		return fmt.Errorf("intent has no component")
	}

	d.mu.Lock()
	d.started = append(d.started, intent)
	d.mu.Unlock()

	d.logger.Info("Starting activity", "class", intent.Component.Class, "flags", fmt.Sprintf("%#x", uint32(intent.Flags)))
	if d.launchCmd == "" {
		return nil
	}

	env := append(os.Environ(),
		"PUSHBRIDGE_PACKAGE="+intent.Component.Package,
		"PUSHBRIDGE_ACTIVITY="+intent.Component.Class,
	)
	if err := d.startCommand(d.launchCmd, d.launchArgs, env); err != nil {
		return fmt.Errorf("launch command %s: %w", d.launchCmd, err)
	}
	return nil
}

// Started returns the intents passed to StartActivity, oldest first.
func (d *Device) Started() []*pb.Intent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*pb.Intent, len(d.started))
	copy(out, d.started)
	return out
}

func startCommandDetached(name string, args []string, env []string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = env
	return cmd.Start()
}
