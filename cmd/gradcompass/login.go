package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/storage"
	"github.com/gradcompass/interview/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func loginCmd(flags *globalFlags) *cobra.Command {
	var (
		email    string
		password string
		fullName string
		register bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save an access token",
		Long: `Log in with email and password and save the access token in the
client home directory. With --register the account is created first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			in := bufio.NewReader(os.Stdin)
			if email == "" {
				if email, err = prompt(in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(in, "Password: "); err != nil {
					return err
				}
			}

			client := repository.New(repository.Options{BaseURL: cfg.ServerURL, Timeout: cfg.HTTPTimeout})
			defer client.Close()

			ctx := cmd.Context()
			if register {
				if err := client.Register(ctx, email, password, fullName); err != nil {
					return fmt.Errorf("registration failed: %w", err)
				}
				logger.Infof("Registered %s", email)
			}

			token, err := client.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := cfg.SaveToken(token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Token saved to %s\n", cfg.AccessKey)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name for --register")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account before logging in")

	cmd.AddCommand(logoutCmd(flags))
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := storage.RemoveAccessToken(cfg.AccessKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(in *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, label)
	}
	fmt.Print(label)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
