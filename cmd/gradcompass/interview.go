package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gradcompass/interview/internal/config"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/interview"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/storage"
	"github.com/gradcompass/interview/pkg/logger"
	"github.com/spf13/cobra"
)

const maxRetryDelay = 30 * time.Second

func startCmd(flags *globalFlags) *cobra.Command {
	var agentType string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new interview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if agentType != "" {
				cfg.AgentType = agentType
			}
			return runInterview(cmd.Context(), cfg, "", cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&agentType, "agent", "", "Interviewer persona (default from config)")
	return cmd
}

func resumeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [session-id]",
		Short: "Resume an interview (the most recent one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var id string
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			} else {
				last, ok, err := storage.LastSession(cfg.Home)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("no previous interview on this machine; run `gradcompass start`")
				}
				id = last.SessionID
			}
			return runInterview(cmd.Context(), cfg, id, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// newManager builds the connection manager from client configuration.
func newManager(cfg *config.Config) *connection.Manager {
	grace := cfg.GracePeriod
	if grace == 0 {
		grace = -1
	}
	return connection.NewManager(connection.Config{
		Dialer: &connection.WSDialer{
			BaseURL:          cfg.ServerURL,
			Token:            func() string { return cfg.Token },
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		Retry: connection.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			Multiplier: 2,
			MaxDelay:   maxRetryDelay,
		},
		GracePeriod:       grace,
		KeepaliveInterval: cfg.KeepaliveInterval,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	})
}

// runInterview opens a session and runs the interactive loop until the
// user quits, stdin closes or ctx is cancelled.
func runInterview(ctx context.Context, cfg *config.Config, sessionID string, stdin io.Reader, stdout io.Writer) error {
	if cfg.Token == "" {
		return errors.New("not logged in; run `gradcompass login` first")
	}

	repo := repository.New(repository.Options{BaseURL: cfg.ServerURL, Token: cfg.Token, Timeout: cfg.HTTPTimeout})
	defer repo.Close()
	manager := newManager(cfg)
	defer manager.Close()

	ctrl := interview.New(interview.Options{
		Repository: repo,
		Connection: manager,
		Home:       cfg.Home,
		AgentType:  cfg.AgentType,
	})
	defer ctrl.Shutdown()

	viewCtx, cancelView := context.WithCancel(ctx)
	defer cancelView()
	tv := newView(stdout)
	done := tv.attach(viewCtx, ctrl)
	defer func() {
		cancelView()
		<-done
	}()

	info, err := ctrl.Open(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("interview %s not found; run `gradcompass start` for a new one", sessionID)
		}
		return err
	}
	tv.header(info)

	loopCtx, stopLines := context.WithCancel(ctx)
	defer stopLines()
	lines := readLines(loopCtx, stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, ctrl, tv, line)
			if err != nil {
				logger.Debugf("command %q: %v", line, err)
			}
			if quit {
				return nil
			}
		}
	}
}

// handleLine dispatches one line of user input. Errors have already been
// shown to the user through controller notices.
func handleLine(ctx context.Context, ctrl *interview.Controller, tv *view, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		tv.help()
		return false, nil
	case "/status":
		s, _ := ctrl.Session()
		tv.status(s, ctrl.Connection())
		return false, nil
	case "/start", "begin":
		return false, ctrl.StartInterview()
	case "/retry":
		_, err := ctrl.Retry(ctx)
		return false, err
	}
	if strings.HasPrefix(line, "/") {
		tv.notice("unknown command " + line + " (try /help)")
		return false, nil
	}
	return false, ctrl.SendUserResponse(line)
}

// readLines feeds r line by line until it ends or ctx is done. A read that
// is already blocked finishes first; its line is then discarded.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	if r == nil {
		r = os.Stdin
	}
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
