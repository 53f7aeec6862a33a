package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/client"
	"blog-web/internal/session"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	LoginPath  = "/api/auth/login"
	LogoutPath = "/api/auth/logout"
)

// AppFactory собирает App для команды. Main подставляет загрузку
// конфигурации, тесты - готовый App.
type AppFactory func(ctx context.Context) (*App, error)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Runner - корневая команда blogctl вместе с App, который она открыла.
type Runner struct {
	Root   *cobra.Command
	newApp AppFactory
	app    *App
}

// NewRunner собирает дерево команд.
func NewRunner(newApp AppFactory) *Runner {
	r := &Runner{newApp: newApp}
	r.Root = &cobra.Command{
		Use:           "blogctl",
		Short:         "Command-line client for the blog",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.newApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Open(cmd.Context()); err != nil {
				return err
			}
			r.app = a
			return nil
		},
	}

	get := func() *App { return r.app }
	sessionCmd := &cobra.Command{Use: "session", Short: "Inspect or restore the session"}
	sessionCmd.AddCommand(newSessionSyncCommand(get), newSessionShowCommand(get))

	r.Root.AddCommand(
		newLoginCommand(get),
		newLogoutCommand(get),
		sessionCmd,
		newMeCommand(get),
		newGetCommand(get),
	)
	return r
}

// Execute выполняет команду. Состояние сохраняется и когда команда упала:
// например, отклонённая refresh-кука должна закрыть сессию и на диске.
func (r *Runner) Execute(ctx context.Context) error {
	err := r.Root.ExecuteContext(ctx)
	if r.app != nil {
		if closeErr := r.app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

func newLoginCommand(app func() *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			out := cmd.OutOrStdout()
			if email == "" {
				var err error
				if email, err = promptLine(bufio.NewReader(cmd.InOrStdin()), out, "Email"); err != nil {
					return err
				}
			}
			if password == "" {
				var err error
				if password, err = promptPassword(out); err != nil {
					return err
				}
			}

			profile, err := a.Login(cmd.Context(), email, password)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(out, "Signed in as %s (%s)\n", profile.Nickname, profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

// Login входит по паролю: бэкенд ставит refresh-куку в jar, access-токен
// приходит в теле. Профиль берётся отдельным запросом.
func (a *App) Login(ctx context.Context, email, password string) (*models.UserProfile, error) {
	var data models.ReissueData
	if err := a.api.PostJSON(ctx, LoginPath, loginRequest{Email: email, Password: password}, &data); err != nil {
		return nil, err
	}
	if data.Authorization == "" {
		return nil, errors.New("login response has no access token")
	}

	now := time.Now()
	if a.cookies.AccessToken() != data.Authorization {
		a.cookies.SetAccessToken(data.Authorization, authcookie.MaxAgeFromToken(data.Authorization, now))
	}
	a.tokens.SetExpiration(authutils.ExpirationOrDefault(data.Authorization, now, authcookie.DefaultAccessTTL))

	var profile models.UserProfile
	if err := a.api.GetJSON(ctx, client.UsersMePath, &profile); err != nil {
		return nil, err
	}
	if err := a.manager.SignIn(ctx, data.Authorization, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func newLogoutCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

// Logout сообщает бэкенду о выходе (ошибка не мешает) и чистит состояние.
func (a *App) Logout(ctx context.Context) error {
	if a.cookies.HasRefreshCredential() {
		if err := a.api.PostJSON(ctx, LogoutPath, nil, nil); err != nil {
			a.logger.Warn("Backend logout failed, clearing local state anyway", zap.Error(err))
		}
	}
	a.cookies.DeleteAccessToken()
	a.cookies.DeleteRefreshCredential()
	a.tokens.Clear()
	return a.manager.SignOut(ctx)
}

func newSessionSyncCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Restore the session from the refresh cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			outcome, err := a.syncer.Sync(cmd.Context())
			if outcome == session.OutcomeLoggedOut {
				// refresh-кука мертва - сохранённая сессия тоже
				if signOutErr := a.manager.SignOut(cmd.Context()); signOutErr != nil {
					return signOutErr
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session sync: %s\n", outcome)
			if target := a.Redirected(); target != "" {
				fmt.Fprintf(out, "Redirect: %s\n", target)
			}
			return err
		},
	}
}

func newSessionShowCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSession(cmd.OutOrStdout(), app().manager.Snapshot())
		},
	}
}

func printSession(w io.Writer, snap session.Snapshot) error {
	view := struct {
		Status    session.Status `json:"status"`
		UserID    uint64         `json:"userId,omitempty"`
		Nickname  string         `json:"nickname,omitempty"`
		Role      string         `json:"role,omitempty"`
		ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
		Error     string         `json:"error,omitempty"`
	}{Status: snap.Status}
	if s := snap.Session; s != nil {
		view.UserID = s.UserID
		view.Nickname = s.Nickname
		view.Role = s.Role
		view.ExpiresAt = &s.ExpiresAt
		view.Error = s.Error
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func newMeCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Fetch the current user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile models.UserProfile
			if err := app().api.GetJSON(cmd.Context(), client.UsersMePath, &profile); err != nil {
				return userError(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(profile)
		},
	}
}

func newGetCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path with the stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			req, err := a.api.NewRequest(cmd.Context(), http.MethodGet, args[0], nil)
			if err != nil {
				return err
			}
			resp, err := a.api.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "HTTP %d\n", resp.StatusCode)
			if _, err := io.Copy(out, resp.Body); err != nil {
				return err
			}
			fmt.Fprintln(out)
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}
			return nil
		},
	}
}
