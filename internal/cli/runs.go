package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scenegen/internal/ledger"
	"scenegen/internal/pkg/errors"
)

func (a *app) runsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or the failures of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Ledger == "" {
				return errors.ValidationField("ledger", "no ledger configured; pass --ledger or set SCENEGEN_LEDGER")
			}
			l, err := ledger.Open(ctx, cfg.Ledger)
			if err != nil {
				return err
			}
			defer a.closer("ledger", l.Close)()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 1 {
				if _, err := l.GetRun(ctx, args[0]); err != nil {
					if ledger.IsNotFound(err) {
						return errors.NotFound("run", args[0])
					}
					return err
				}
				failures, err := l.Failures(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "SAMPLE\tREASON\tTRANSIENT\tATTEMPTS\tERROR")
				for _, f := range failures {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", f.SampleID, f.Reason, f.Transient, f.Attempts, f.Error)
				}
				return nil
			}

			runs, err := l.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tTASKS\tSTARTED\tTOTAL\tOK\tSKIPPED\tFAILED\tCANCELED\tFINISHED")
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.ID, r.Tasks, r.StartedAt.Format(time.RFC3339), r.Total,
					r.Counts.Succeeded, r.Counts.Skipped, r.Counts.Failed, r.Counts.Canceled, finished)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
