package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/run"
	"scenegen/internal/worker/queue"
)

func (a *app) enqueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue",
		Short: "Queue the run's uncommitted samples for scenegen workers",
		Long: `Queue the run's uncommitted samples on a Redis list for cmd/worker
processes, which must share the output root.

Example:
  scenegen enqueue --task all -n 500 --split --redis redis:6379`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			outputs, err := run.NewOutputs(cfg, a.deps.Log)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			defer a.closer("redis", rdb.Close)()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return errors.WrapWithCode(err, errors.CodeAssetUnavailable, "cli.enqueue", "connect to redis "+cfg.Redis.Addr)
			}

			q := queue.NewRedisQueue(rdb, cfg.Redis.Queue)
			agg := run.New(run.Deps{Outputs: outputs, Log: a.deps.Log})
			pushed, skipped, err := agg.Enqueue(ctx, cfg, q)
			if err != nil {
				return err
			}
			depth, err := q.Len(ctx)
			if err != nil {
				return errors.Wrap(err, "cli.enqueue", "queue length")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d samples on %s (%d already committed, %d waiting)\n",
				pushed, q.Name(), skipped, depth)
			return nil
		},
	}
}
