// Command gradcompass runs mock visa interviews against the GradCompass
// backend from a terminal, and can host a local development backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gradcompass/interview/internal/config"
	"github.com/gradcompass/interview/pkg/logger"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	serverURL string
	debug     bool
	logLevel  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "gradcompass",
		Short: "Practice visa interviews with the GradCompass interviewer",
		Long: `GradCompass runs a mock F1 visa interview in your terminal.

Examples:
  gradcompass login --email me@example.com   # Save an access token
  gradcompass start                           # Start a new interview
  gradcompass resume                          # Resume the last interview
  gradcompass resume 42                       # Resume interview 42
  gradcompass sessions                        # List your interviews
  gradcompass serve                           # Run the local dev backend`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetColor(true)
			level := flags.logLevel
			if level == "" && flags.debug {
				level = "debug"
			}
			if level != "" {
				lvl, err := logger.ParseLevel(level)
				if err != nil {
					return err
				}
				logger.SetLevel(lvl)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.serverURL, "server", "", "Backend base URL (overrides GRADCOMPASS_SERVER_URL)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	root.AddGroup(
		&cobra.Group{ID: "interview", Title: "Interviews:"},
		&cobra.Group{ID: "dev", Title: "Development:"},
	)

	for _, cmd := range []*cobra.Command{
		loginCmd(flags),
		startCmd(flags),
		resumeCmd(flags),
		sessionsCmd(flags),
		shareCmd(flags),
	} {
		cmd.GroupID = "interview"
		root.AddCommand(cmd)
	}

	serve := serveCmd()
	serve.GroupID = "dev"
	root.AddCommand(serve)

	return root
}

// loadConfig loads client configuration and applies command-line overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.serverURL != "" {
		cfg.ServerURL = flags.serverURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if flags.debug {
		cfg.Debug = true
	}

	// Flags win over the configured level; PersistentPreRunE already
	// applied them.
	if flags.logLevel == "" && !flags.debug {
		level := cfg.LogLevel
		if cfg.Debug {
			level = "debug"
		}
		lvl, err := logger.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(lvl)
	}
	return cfg, nil
}
