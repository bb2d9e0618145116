package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/run"
	"scenegen/internal/scene"
	"scenegen/internal/task"
)

func (a *app) sceneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scene <task> <index>",
		Short: "Print the canonical scene JSON and digest of one sample",
		Long: `Print the canonical scene JSON and digest of one sample without
rendering it or fetching any asset. Two hosts with the same configuration
print identical output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := task.Parse(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.ValidationField("index", fmt.Sprintf("index must be an integer, got %q", args[1]))
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			req, err := run.Sample(cfg, kind, index)
			if err != nil {
				return err
			}
			spec, err := scene.Layout(req)
			if err != nil {
				return err
			}
			b, err := spec.Marshal()
			if err != nil {
				return errors.Wrap(err, "cli.scene", "marshal scene")
			}
			digest, err := spec.Digest()
			if err != nil {
				return errors.Wrap(err, "cli.scene", "digest scene")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, string(b))
			fmt.Fprintf(out, "digest: %s\n", digest)
			return nil
		},
	}
}
