package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petwalk/petwalk/modules/api"
)

func newPostsCommand(opts *options) *cobra.Command {
	var (
		q      api.PostsQuery
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Show the post feed, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				posts, err := s.backend.Posts(ctx, q)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), posts)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIMESTAMP\tUSER\tCONTENT")
				for _, p := range posts {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Timestamp, p.User.Username, p.Content)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&q.UserID, "user", "", "only posts by this user id")
	cmd.Flags().StringVar(&q.LastTimestamp, "before", "", "only posts older than this timestamp")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "page size (backend default 10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
