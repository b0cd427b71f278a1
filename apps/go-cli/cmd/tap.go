package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	pb "github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apphost"
)

var tapCmd = &cobra.Command{
	Use:   "tap [payload-json]",
	Short: "Simulate the user tapping a push notification",
	Long: `Delivers a notification-tap signal to a local application runtime.

The JSON payload is carried as the intent's "notification" extra. If the
runtime is not ready, delivery waits for it and its creation is started.
The app's main activity is launched either way.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ready, _ := cmd.Flags().GetBool("ready")
		action, _ := cmd.Flags().GetString("action")
		wait, _ := cmd.Flags().GetDuration("wait")

		var raw string
		if len(args) == 1 {
			raw = args[0]
		}
		payload, err := parsePayload(raw)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := runTap(ctx, tapOptions{
			payload: payload,
			action:  action,
			ready:   ready,
			wait:    wait,
			logger:  slog.Default(),
		})
		if err != nil {
			return err
		}

		if useYAML {
			yamlOut(cmd.OutOrStdout(), res)
			return nil
		}
		printTapResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	tapCmd.Flags().Bool("ready", false, "Start the runtime and wait for it before tapping")
	tapCmd.Flags().String("action", "", "Intent action")
	tapCmd.Flags().Duration("wait", 5*time.Second, "How long to wait for the event to be emitted")
	rootCmd.AddCommand(tapCmd)
}

type tapOptions struct {
	payload pb.Bundle
	action  string
	ready   bool
	wait    time.Duration
	logger  *slog.Logger
}

type tapResult struct {
	StateAtTap string         `yaml:"state_at_tap"`
	State      string         `yaml:"state"`
	Event      *apphost.Event `yaml:"event,omitempty"`
	Launched   []*pb.Intent   `yaml:"launched"`
}

func parsePayload(raw string) (pb.Bundle, error) {
	if raw == "" {
		return nil, nil
	}
	var payload pb.Bundle
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

// runTap wires a runtime, device and relay from cfg, delivers one tap and
// waits up to opts.wait for the resulting event.
func runTap(ctx context.Context, opts tapOptions) (*tapResult, error) {
	rt := newRuntime(cfg, opts.logger)
	defer rt.Close()
	dev := newDevice(cfg, opts.logger)
	events := rt.Subscribe(cfg.EventName)

	if opts.ready {
		if err := rt.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting runtime: %w", err)
		}
	}

	relay := pb.NewNotificationOpenRelay(rt,
		pb.WithRelayLogger(opts.logger),
		pb.WithEventName(cfg.EventName),
	)

	var intent *pb.Intent
	if opts.payload != nil {
		intent = pb.NewNotificationIntent(opts.action, opts.payload)
	} else {
		intent = &pb.Intent{Action: opts.action}
	}

	res := &tapResult{StateAtTap: rt.State().String()}
	relay.OnNotificationTapped(ctx, dev, intent)

	timer := time.NewTimer(opts.wait)
	defer timer.Stop()
	select {
	case msg := <-events:
		if ev, ok := msg.(apphost.Event); ok {
			res.Event = &ev
		}
	case <-timer.C:
		opts.logger.Warn("No event emitted before timeout", "wait", opts.wait, "pending", rt.ListenerCount())
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res.State = rt.State().String()
	res.Launched = dev.Started()
	return res, nil
}

func printTapResult(w io.Writer, res *tapResult) {
	fmt.Fprintf(w, "Runtime state at tap: %s (now %s)\n", res.StateAtTap, res.State)
	if res.Event != nil {
		printEvent(w, *res.Event)
	} else {
		fmt.Fprintln(w, "No event emitted")
	}
	if len(res.Launched) == 0 {
		fmt.Fprintln(w, "App not launched")
	}
	for _, intent := range res.Launched {
		printLaunch(w, intent)
	}
}
