package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("petwalk v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the petwalk client.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "petwalk",
		Short: "PetWalk client - talk to the PetWalk backend from the command line",
		Long: `petwalk resolves the PetWalk backend services through the controller's
service directory and drives the user, post and route APIs. The session
token is kept in a file shared with other petwalk processes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (.yaml, .toml or .json)")
	flags.StringVar(&opts.envFile, "env-file", "", ".env file with PETWALK_* settings")
	flags.StringVar(&opts.discoveryURL, "discovery-url", "", "controller base URL publishing /config/services")
	flags.StringVar(&opts.tokenFile, "token-file", "", "session file (default <user config dir>/petwalk/session)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging, including HTTP traffic")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for one-shot commands")

	cmd.AddCommand(
		newServicesCommand(opts),
		newLoginCommand(opts),
		newSignupCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newPostsCommand(opts),
		newRouteCommand(opts),
		newListenCommand(opts),
	)
	return cmd
}

// oneShot runs fn against a started, non-live session and bounds it by
// --timeout.
func oneShot(opts *options, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	s, closeSession, err := opts.openSession(ctx, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer closeSession()
	return fn(ctx, s)
}
