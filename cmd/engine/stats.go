package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"marketplace-engine/engagement/application"
	"marketplace-engine/engagement/infra"

	"github.com/spf13/cobra"
)

type statsOptions struct {
	*rootOptions
	Limit int
}

func newStatsCommand(root *rootOptions) *cobra.Command {
	opts := &statsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Operator statistics read from the provider store",
	}
	cmd.PersistentFlags().IntVarP(&opts.Limit, "limit", "n", 10, "rows for rankings (max 100)")

	cmd.AddCommand(&cobra.Command{
		Use:   "overview",
		Short: "Total and active users and providers, pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc application.StatsService, w io.Writer) (any, error) {
				ov, err := svc.Overview(ctx)
				if err != nil || opts.Format == "json" {
					return ov, err
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "users\t%d\t(active %d)\n", ov.TotalUsers, ov.ActiveUsers)
				fmt.Fprintf(tw, "providers\t%d\t(active %d, pending %d)\n", ov.TotalProviders, ov.ActiveProviders, ov.PendingProviders)
				return nil, tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "top-rated",
		Short: "Approved active providers by average rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc application.StatsService, w io.Writer) (any, error) {
				list, err := svc.TopRated(ctx, opts.Limit)
				if err != nil || opts.Format == "json" {
					return list, err
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tAVERAGE\tRATINGS\tCONTACTS")
				for _, p := range list {
					fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%d\n", p.ID, p.Name, p.AverageRating, p.RatingCount, p.ContactCount)
				}
				return nil, tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "most-contacted",
		Short: "Providers by contact count (from the contact ledger)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc application.StatsService, w io.Writer) (any, error) {
				list, err := svc.MostContacted(ctx, opts.Limit)
				if err != nil || opts.Format == "json" {
					return list, err
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROVIDER\tCONTACTS")
				for _, c := range list {
					fmt.Fprintf(tw, "%d\t%d\n", c.ProviderID, c.Count)
				}
				return nil, tw.Flush()
			})
		},
	})

	return cmd
}

type statsQuery func(ctx context.Context, svc application.StatsService, w io.Writer) (any, error)

// run abre o banco, executa a consulta e, em json, serializa o resultado.
func (o *statsOptions) run(cmd *cobra.Command, q statsQuery) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	db, err := infra.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := application.StatsService{
		Reader:  infra.NewSQLiteStore(db, infra.WithStoreLogger(logger)),
		Timeout: cfg.CallTimeout,
		Logger:  logger,
	}
	out, err := q(cmd.Context(), svc, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if o.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
	}
	return nil
}
