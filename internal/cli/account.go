package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vbonduro/unlabel/internal/auth"
	"github.com/vbonduro/unlabel/internal/backend"
	"github.com/vbonduro/unlabel/internal/domain"
	"github.com/vbonduro/unlabel/internal/render"
)

var errSignInRequired = errors.New("you are not signed in; run `unlabel login` first")

func newLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Unlabel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.promptCredentials(&email, &password); err != nil {
				return err
			}
			user, err := app.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return describeAuthError(err)
			}
			app.println("Signed in as " + user.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an Unlabel account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.promptCredentials(&email, &password); err != nil {
				return err
			}
			user, err := app.auth.Register(cmd.Context(), email, password, name)
			if err != nil {
				return describeAuthError(err)
			}
			app.println("Welcome, " + user.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (defaults to the email's local part)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			app.println("Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := app.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := app.client.Profile(cmd.Context())
			if err != nil {
				// The profile endpoint is optional; the token still names the user.
				app.logger.Info("profile unavailable", "error", err)
				app.println(render.User(user))
				return nil
			}
			if profile.ID == "" {
				profile.ID = user.ID
			}
			app.println(render.User(profile))
			return nil
		},
	}
}

// promptCredentials fills in whatever the flags left empty from In, one
// line each.
func (a *App) promptCredentials(email, password *string) error {
	reader := bufio.NewReader(a.In)
	read := func(prompt string, dst *string) error {
		if *dst != "" {
			return nil
		}
		a.println(prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read %s: %w", strings.ToLower(strings.TrimSuffix(prompt, ":")), err)
		}
		*dst = strings.TrimSpace(line)
		return nil
	}
	if err := read("Email:", email); err != nil {
		return err
	}
	if err := read("Password:", password); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

func (a *App) requireUser(ctx context.Context) (*domain.User, error) {
	user, err := a.auth.Current(ctx)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return nil, errSignInRequired
	}
	return user, err
}

func describeAuthError(err error) error {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return errors.New(statusErr.Detail)
	}
	return err
}
