package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newServicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the backend services published by the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				dir := s.directory.Directory()
				if err := dir.AwaitReady(ctx); err != nil {
					return fmt.Errorf("service directory not ready: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tURL\tIP")
				for _, rec := range dir.Records() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Name, rec.URL, rec.IP)
				}
				return tw.Flush()
			})
		},
	}
}
