package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/tracker"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		since      time.Duration
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("usage ledger is disabled: set db_path in %s", configPath)
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			if since > 0 {
				total, err := tr.TotalSince(ctx, provider, time.Now().UTC().Add(-since))
				if err != nil {
					return err
				}
				fmt.Printf("Tokens in the last %s: %d\n", since, total)
				return nil
			}

			if recent > 0 {
				records, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No usage data found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tREQUEST\tPROVIDER\tOPERATION\tSTATUS\tTOKENS")
				for _, r := range records {
					tokens := fmt.Sprintf("%d", r.Tokens)
					if r.Estimated {
						tokens += "~"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.RequestID, r.Provider, r.Operation, r.Status, tokens)
				}
				return w.Flush()
			}

			summaries, err := tr.Summary(ctx, provider)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tOPERATION\tREQUESTS\tCACHED\tFALLBACKS\tTOKENS")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.Provider, s.Operation, s.RequestCount, s.CacheHits, s.Fallbacks, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "formwork.yaml", "path to config file")
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider name")
	cmd.Flags().DurationVar(&since, "since", 0, "show total tokens over this window instead of the summary")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent requests")
	return cmd
}
