package pushbridge

import (
	"context"
	"fmt"
	"log/slog"
)

// AppContext is the host application as seen from an OS-driven entry point.
type AppContext interface {
	// PackageName returns the host application's package name.
	PackageName() string

	// LaunchIntentForPackage returns the launch intent registered for pkg.
	// ok is false when the package has no launcher entry.
	LaunchIntentForPackage(pkg string) (intent *Intent, ok bool)

	// LoadClass reports whether the named activity class can be loaded.
	LoadClass(name string) error

	// StartActivity asks the OS to start the activity described by intent.
	StartActivity(ctx context.Context, intent *Intent) error
}

// ResolveMainActivity returns the class of the host package's main entry
// activity.
func ResolveMainActivity(app AppContext) (string, error) {
	pkg := app.PackageName()
	launch, ok := app.LaunchIntentForPackage(pkg)
	if !ok || launch == nil || launch.Component == nil || launch.Component.Class == "" {
		return "", fmt.Errorf("%w: %s", ErrNoLaunchIntent, pkg)
	}

	className := launch.Component.Class
	if err := app.LoadClass(className); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrClassNotFound, className, err)
	}
	return className, nil
}

// NewLaunchIntent builds the intent that brings className to the foreground in
// a new or reset task.
func NewLaunchIntent(pkg, className string) *Intent {
	return &Intent{
		Component: &Component{Package: pkg, Class: className},
		Flags:     FlagActivityNewTask | FlagActivityResetTaskIfNeeded,
		// No package restriction: the component alone targets the activity.
		Package: "",
	}
}

// OpenApp brings the host application to the foreground. Resolution failures
// are logged and the launch is skipped.
func OpenApp(ctx context.Context, app AppContext, logger *slog.Logger) error {
	className, err := ResolveMainActivity(app)
	if err != nil {
		logger.Error("Couldn't get app launch intent for notification", "error", err)
		return err
	}

	intent := NewLaunchIntent(app.PackageName(), className)
	if err := app.StartActivity(ctx, intent); err != nil {
		logger.Error("Failed to start main activity", "class", className, "error", err)
		return fmt.Errorf("starting %s: %w", className, err)
	}

	logger.Debug("Started main activity", "class", className)
	return nil
}
