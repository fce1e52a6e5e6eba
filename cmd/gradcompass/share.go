package main

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

func shareCmd(flags *globalFlags) *cobra.Command {
	var pngPath string

	cmd := &cobra.Command{
		Use:   "share <session-id>",
		Short: "Show a QR code that resumes an interview on another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			link := resumeLink(cfg.ServerURL, args[0])
			if pngPath != "" {
				if err := qrcode.WriteFile(link, qrcode.Medium, 256, pngPath); err != nil {
					return fmt.Errorf("failed to write QR code: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "QR code written to %s\n", pngPath)
				return nil
			}

			qr, err := qrcode.New(link, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("failed to generate QR code: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, qr.ToSmallString(false))
			fmt.Fprintf(out, "Or open: %s\n", link)
			return nil
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "Write the QR code to a PNG file instead of the terminal")
	return cmd
}

// resumeLink is the deep link a client follows to resume a session.
func resumeLink(serverURL, sessionID string) string {
	q := url.Values{}
	q.Set("session", strings.TrimSpace(sessionID))
	q.Set("server", strings.TrimRight(serverURL, "/"))
	return "gradcompass://interview/resume?" + q.Encode()
}
