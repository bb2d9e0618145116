package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scenegen/internal/ledger"
	"scenegen/internal/run"
)

func (a *app) generateCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render every sample of the run that is not committed yet",
		Long: `Render every sample of the run that is not committed yet.

Committed samples are skipped, so an interrupted run resumes where it
stopped when started again with the same configuration.

Examples:
  scenegen generate --task zoom_consistency -n 100 --object-list objects.txt
  scenegen generate --task all -n 1000 --split -w 8 --ledger data/ledger.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			stack, err := run.NewStack(ctx, cfg, a.deps.Log)
			if err != nil {
				return err
			}
			l, err := ledger.Open(ctx, cfg.Ledger)
			if err != nil {
				return err
			}
			defer a.closer("ledger", l.Close)()

			agg := run.New(run.Deps{
				Pipeline: stack.Processor,
				Outputs:  stack.Assembler,
				Ledger:   l,
				Log:      a.deps.Log,
			})
			rep, runErr := agg.Run(ctx, cfg)
			if rep != nil {
				if err := printReport(cmd.OutOrStdout(), rep, asJSON); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func printReport(w io.Writer, rep *run.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintln(w, rep.String())
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  %s  %s  attempts=%d transient=%t\n", f.SampleID, f.Reason, f.Attempts, f.Transient)
	}
	return nil
}
