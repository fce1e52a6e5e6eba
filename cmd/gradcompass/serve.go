package main

import (
	"fmt"
	"time"

	"github.com/gradcompass/interview/internal/auth"
	"github.com/gradcompass/interview/internal/config"
	"github.com/gradcompass/interview/internal/devserver"
	"github.com/gradcompass/interview/internal/store"
	"github.com/gradcompass/interview/pkg/logger"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		dbPath      string
		secret      string
		questions   int
		commitDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local development backend",
		Long: `Run a local backend with the same REST and realtime surface as the
GradCompass API. A scripted interviewer asks a fixed set of questions and
returns a decision. --commit-delay hides new sessions from the realtime
endpoint for a while, to exercise client retries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides config.ServerOverrides
			if cmd.Flags().Changed("addr") {
				overrides.Addr = &addr
			}
			if cmd.Flags().Changed("db") {
				overrides.DatabasePath = &dbPath
			}
			if cmd.Flags().Changed("secret") {
				overrides.MasterSecret = &secret
			}
			if cmd.Flags().Changed("questions") {
				overrides.Questions = &questions
			}
			if cmd.Flags().Changed("commit-delay") {
				overrides.CommitDelay = &commitDelay
			}

			cfg, err := config.LoadServer(overrides)
			if err != nil {
				return err
			}
			if cfg.Debug {
				logger.SetLevel(logger.LevelDebug)
			}

			logger.Infof("Opening database: %s", cfg.DatabasePath)
			db, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			jwt, err := auth.NewJWTManager(cfg.MasterSecret, cfg.TokenTTL)
			if err != nil {
				return fmt.Errorf("failed to create JWT manager: %w", err)
			}

			return devserver.New(cfg, db, jwt).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT or :8000)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default $DATABASE_PATH or ./gradcompass.db)")
	cmd.Flags().StringVar(&secret, "secret", "", "Token signing secret (default $GRADCOMPASS_MASTER_SECRET)")
	cmd.Flags().IntVar(&questions, "questions", 3, "Questions asked before the decision")
	cmd.Flags().DurationVar(&commitDelay, "commit-delay", 0, "Delay before a new session is visible to the realtime endpoint")
	return cmd
}
