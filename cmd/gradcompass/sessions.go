package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/storage"
	"github.com/gradcompass/interview/pkg/logger"
	"github.com/spf13/cobra"
)

func sessionsCmd(flags *globalFlags) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List your interviews, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			infos, err := storage.ListLocalSessions(cfg.Home)
			if err != nil {
				logger.Warnf("failed to read local session info: %v", err)
			}
			lastOpened := make(map[string]int64, len(infos))
			for _, info := range infos {
				lastOpened[info.SessionID] = info.LastOpenedAtMs
			}

			if local {
				return printLocalSessions(cmd.OutOrStdout(), infos)
			}
			if cfg.Token == "" {
				return fmt.Errorf("not logged in; run `gradcompass login` first")
			}

			client := repository.New(repository.Options{BaseURL: cfg.ServerURL, Token: cfg.Token, Timeout: cfg.HTTPTimeout})
			defer client.Close()

			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions, lastOpened)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Only list interviews opened on this machine")
	return cmd
}

func printSessions(out io.Writer, sessions []repository.Session, lastOpened map[string]int64) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(out, "No interviews yet. Run `gradcompass start`.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAGENT\tCREATED\tLAST OPENED\tOUTCOME")
	for _, s := range sessions {
		opened := "-"
		if ms, ok := lastOpened[s.ID]; ok && ms > 0 {
			opened = formatTime(time.UnixMilli(ms))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Status, s.AgentType, formatTime(s.CreatedAt), opened, truncate(s.FinalOutcome, 40))
	}
	return w.Flush()
}

func printLocalSessions(out io.Writer, infos []storage.LocalSessionInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(out, "No interviews opened on this machine.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAGENT\tLAST OPENED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			info.SessionID, info.Status, info.AgentType, formatTime(time.UnixMilli(info.LastOpenedAtMs)))
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
