package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slush-dev/pushbridge/apps/go-cli/internal/config"
)

var (
	configPath string
	sessionDir string
	verbose    bool
	useYAML    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pushbridge",
	Short:         "Push notification bridge between a push backend and an application runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (env PUSHBRIDGE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "Directory for persisted push credentials (default ~/.pushbridge)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format")
}

// loadConfig resolves the config file, applies flag overrides and installs
// the default logger.
func loadConfig(cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		path = os.Getenv("PUSHBRIDGE_CONFIG")
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("session-dir") {
		loaded.SessionDir = sessionDir
	}
	if verbose {
		loaded.LogLevel = "debug"
	}

	cfg = loaded
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	return nil
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
