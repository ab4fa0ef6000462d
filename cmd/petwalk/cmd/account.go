package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/token"
)

// readSecret takes the first line of r when the flag was left empty.
func readSecret(r io.Reader, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", ErrPasswordRequired
	}
	return strings.TrimSpace(sc.Text()), nil
}

func newLoginCommand(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long:  "Sign in and store the session token. Without --password the password is read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(cmd.InOrStdin(), password)
			if err != nil {
				return err
			}
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.backend.Login(ctx, username, pw)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				if err := s.tokens.Set(ctx, tok); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", username)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSignupCommand(opts *options) *cobra.Command {
	var req api.Signup
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(cmd.InOrStdin(), req.Password)
			if err != nil {
				return err
			}
			req.Password = pw
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				msg, err := s.backend.Signup(ctx, req)
				if err != nil {
					return fmt.Errorf("signup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", msg, req.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "account name")
	cmd.Flags().StringVar(&req.Email, "email", "", "e-mail address")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password (read from stdin when empty)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				if err := s.tokens.Clear(ctx, token.ReasonLogout); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.token()
				if err != nil {
					return err
				}

				var (
					me    api.User
					saved []api.SavedRoute
				)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					var err error
					me, err = s.backend.Self(gctx, tok)
					return err
				})
				g.Go(func() error {
					var err error
					saved, err = s.backend.Routes(gctx, tok)
					return err
				})
				if err := g.Wait(); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", me.Username, me.ID)
				if me.Email != "" {
					fmt.Fprintf(out, "email: %s\n", me.Email)
				}
				fmt.Fprintf(out, "posts: %d\n", len(me.Posts))
				fmt.Fprintf(out, "saved routes: %d\n", len(saved))
				return nil
			})
		},
	}
}
