package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noaodatalab/datalab-go/internal/auth"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Authenticate with the Data Lab auth service",
		Long: `Authenticate with the Data Lab auth service and cache the returned
token under ~/.datalab. Without --password the cached token for the user
is reused if it still validates; otherwise the password is prompted for.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogin,
	}

	cmd.Flags().String("password", "", "account password (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out of the Data Lab and remove the cached token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the currently logged-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	username := args[0]
	password, _ := cmd.Flags().GetString("password")

	// First try the cached token, unless a password was given explicitly.
	if password == "" {
		if _, err := app.session.Login(ctx, username, ""); err == nil {
			if err := saveLoginState(username, "loggedin"); err != nil {
				return err
			}

			statusf("Welcome back, %s.\n", username)

			return nil
		} else if !errors.Is(err, auth.ErrCredential) {
			return err
		}

		pw, err := promptPassword(username)
		if err != nil {
			return err
		}

		password = pw
	}

	if _, err := app.session.Login(ctx, username, password); err != nil {
		return err
	}

	if err := saveLoginState(username, "loggedin"); err != nil {
		return err
	}

	statusf("Welcome to the Data Lab, %s.\n", username)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	if !app.cfg.LoggedIn() {
		return fmt.Errorf("no user is currently logged in")
	}

	if err := app.session.Logout(ctx, auth.Token(app.token)); err != nil {
		return err
	}

	if err := saveLoginState("", "loggedout"); err != nil {
		return err
	}

	statusf("Logged out of the Data Lab.\n")

	return nil
}

func runWhoami(_ *cobra.Command, _ []string) error {
	if app.cfg.LoggedIn() {
		fmt.Println(app.cfg.Login.User)
	} else {
		fmt.Println("anonymous")
	}

	return nil
}

// promptPassword reads a password without echo when stdin is a
// terminal, falling back to a plain line read otherwise (pipes, tests).
func promptPassword(username string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s's password: ", username)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(pw), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimSpace(line), nil
}
