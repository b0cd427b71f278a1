package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	pb "github.com/slush-dev/pushbridge"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch the push registration token for the configured app",
	Long: `Asks the push backend for the app's registration token and prints it.
The first call registers the app; device credentials are kept in the session
directory so later calls reuse the same registration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logger := slog.Default()
		client := newFCMClient(cfg, logger)
		if refresh {
			if err := client.Reset(); err != nil {
				return err
			}
		}

		fmt.Fprintln(os.Stderr, "Fetching push token...")
		token, err := awaitToken(ctx, newTokenProvider(cfg, client, logger))
		if err != nil {
			return fmt.Errorf("getting token: %w", err)
		}

		if useYAML {
			yamlOut(cmd.OutOrStdout(), map[string]string{"token": token})
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Push token: %s\n", token)
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("refresh", false, "Forget the stored registration and register again")
	rootCmd.AddCommand(tokenCmd)
}

// awaitToken drives the callback API and waits for whichever callback fires.
func awaitToken(ctx context.Context, p *pb.TokenProvider) (string, error) {
	type outcome struct {
		token string
		err   error
	}
	done := make(chan outcome, 1)
	p.GetToken(
		func(token string) { done <- outcome{token: token} },
		func(msg string) { done <- outcome{err: errors.New(msg)} },
	)

	select {
	case o := <-done:
		return o.token, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
