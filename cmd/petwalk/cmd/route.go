package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petwalk/petwalk/modules/api"
)

func newRouteCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Generate and manage saved walking routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newRouteGenerateCommand(opts),
		newRouteListCommand(opts),
		newRouteSaveCommand(opts),
		newRouteDeleteCommand(opts),
	)
	return cmd
}

func newRouteGenerateCommand(opts *options) *cobra.Command {
	var (
		params api.RouteParams
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a round walk from a start point",
		Long: `Generate a round walk from a start point and print it as JSON.
The backend limits how often a user may generate routes; a refusal is
reported as "rate limited by backend".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.token()
				if err != nil {
					return err
				}
				route, err := s.backend.GenerateRoute(ctx, tok, params)
				if err != nil {
					return err
				}
				if !save {
					return writeJSON(cmd.OutOrStdout(), route)
				}
				saved, err := s.backend.SaveRoute(ctx, tok, route)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved route %d\n", saved.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.Float64Var(&params.Point.Latitude, "lat", 0, "start latitude")
	f.Float64Var(&params.Point.Longitude, "lon", 0, "start longitude")
	f.IntVarP(&params.DeclaredDistance, "distance", "d", 0, "walk length in metres")
	f.BoolVar(&params.PreferGreen, "prefer-green", false, "prefer parks and green areas")
	f.BoolVar(&params.AvoidGreen, "avoid-green", false, "avoid parks and green areas")
	f.BoolVar(&params.IncludeWeather, "weather", false, "take the weather into account")
	f.BoolVar(&save, "save", false, "save the generated route instead of printing it")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("distance")
	cmd.MarkFlagsMutuallyExclusive("prefer-green", "avoid-green")
	return cmd
}

func newRouteListCommand(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.token()
				if err != nil {
					return err
				}
				saved, err := s.backend.Routes(ctx, tok)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), saved)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDISTANCE\tPOINTS\tTIMESTAMP")
				for _, r := range saved {
					fmt.Fprintf(tw, "%d\t%dm\t%d\t%s\n", r.ID, r.DeclaredDistance, len(r.GeoJSON.Coordinates), r.Timestamp)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRouteSaveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "save [file]",
		Short: "Save a route printed by 'route generate'",
		Long:  "Save a route printed by 'route generate'. The route is read from file, or from stdin when file is omitted or '-'.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var route api.Route
			if err := json.NewDecoder(in).Decode(&route); err != nil {
				return fmt.Errorf("failed to read route: %w", err)
			}

			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.token()
				if err != nil {
					return err
				}
				saved, err := s.backend.SaveRoute(ctx, tok, route)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved route %d\n", saved.ID)
				return nil
			})
		},
	}
}

func newRouteDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved route",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidRouteID, args[0])
			}
			return oneShot(opts, cmd, func(ctx context.Context, s *session) error {
				tok, err := s.token()
				if err != nil {
					return err
				}
				if err := s.backend.RemoveRoute(ctx, tok, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed route %d\n", id)
				return nil
			})
		},
	}
}
