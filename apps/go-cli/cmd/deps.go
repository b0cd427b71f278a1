package cmd

import (
	"log/slog"

	pb "github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apphost"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/config"
	"github.com/slush-dev/pushbridge/fcm"
)

func newFCMClient(c *config.Config, logger *slog.Logger) *fcm.Client {
	return fcm.NewClient(c.App,
		fcm.WithSessionDir(c.SessionDir),
		fcm.WithLogger(logger),
	)
}

func newTokenProvider(c *config.Config, src pb.TokenSource, logger *slog.Logger) *pb.TokenProvider {
	return pb.NewTokenProvider(src,
		pb.WithTokenLogger(logger),
		pb.WithTokenTimeout(c.TokenTimeout),
	)
}

func newRuntime(c *config.Config, logger *slog.Logger) *apphost.Runtime {
	return apphost.NewRuntime(
		apphost.WithLogger(logger),
		apphost.WithBootDelay(c.Host.BootDelay),
	)
}

func newDevice(c *config.Config, logger *slog.Logger) *apphost.Device {
	opts := []apphost.DeviceOption{
		apphost.WithDeviceLogger(logger),
		apphost.WithClasses(c.Host.Classes...),
	}
	if c.Host.LauncherActivity != "" {
		opts = append(opts, apphost.WithLauncherActivity(c.Host.LauncherActivity))
	}
	if len(c.Host.LaunchCommand) > 0 {
		opts = append(opts, apphost.WithLaunchCommand(c.Host.LaunchCommand[0], c.Host.LaunchCommand[1:]...))
	}
	return apphost.NewDevice(c.HostPackage(), opts...)
}
