package cli

import (
	"time"

	"github.com/spf13/cobra"

	"scenegen/internal/config"
)

// runFlags mirror config.Run. Only flags set on the command line override
// the loaded configuration.
type runFlags struct {
	configPath string

	task          string
	numSamples    int
	split         bool
	seed          int64
	resolution    int
	fps           int
	duration      float64
	objectList    string
	outputRoot    string
	workers       int
	renderer      string
	renderTimeout time.Duration
	writeMetadata bool
	ledger        string
	redisAddr     string
	queue         string
}

func (f *runFlags) register(cmd *cobra.Command) {
	d := config.Default()
	fs := cmd.PersistentFlags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML run configuration")
	fs.StringVarP(&f.task, "task", "t", d.Task, `task kind, comma-separated kinds, or "all"`)
	fs.IntVarP(&f.numSamples, "num-samples", "n", d.NumSamples, "samples per task (total with --split)")
	fs.BoolVar(&f.split, "split", d.Split, "spread --num-samples evenly over the selected tasks")
	fs.Int64Var(&f.seed, "seed", d.Seed, "run seed")
	fs.IntVar(&f.resolution, "resolution", d.Resolution, "square frame size in pixels")
	fs.IntVar(&f.fps, "fps", d.FPS, "frames per second")
	fs.Float64Var(&f.duration, "duration", d.Duration, "clip length in seconds")
	fs.StringVar(&f.objectList, "object-list", d.ObjectList, "file of object paths or catalog keys, one per line")
	fs.StringVarP(&f.outputRoot, "output", "o", d.OutputRoot, "output root")
	fs.IntVarP(&f.workers, "workers", "w", d.MaxWorkers, "concurrent samples and renderer processes")
	fs.StringVar(&f.renderer, "renderer", d.Renderer.Binary, "renderer binary (default: discover blender)")
	fs.DurationVar(&f.renderTimeout, "render-timeout", d.Renderer.Timeout, "per-attempt render timeout")
	fs.BoolVar(&f.writeMetadata, "metadata", d.WriteMetadata, "write metadata.json next to each sample")
	fs.StringVar(&f.ledger, "ledger", d.Ledger, "run ledger DSN: sqlite path or postgres:// URL")
	fs.StringVar(&f.redisAddr, "redis", d.Redis.Addr, "redis address for enqueue")
	fs.StringVar(&f.queue, "queue", d.Redis.Queue, "redis queue name")
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Run) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("task") {
		cfg.Task = f.task
	}
	if changed("num-samples") {
		cfg.NumSamples = f.numSamples
	}
	if changed("split") {
		cfg.Split = f.split
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("resolution") {
		cfg.Resolution = f.resolution
	}
	if changed("fps") {
		cfg.FPS = f.fps
	}
	if changed("duration") {
		cfg.Duration = f.duration
	}
	if changed("object-list") {
		cfg.ObjectList = f.objectList
		cfg.Objects = nil
	}
	if changed("output") {
		cfg.OutputRoot = f.outputRoot
	}
	if changed("workers") {
		cfg.MaxWorkers = f.workers
	}
	if changed("renderer") {
		cfg.Renderer.Binary = f.renderer
	}
	if changed("render-timeout") {
		cfg.Renderer.Timeout = f.renderTimeout
	}
	if changed("metadata") {
		cfg.WriteMetadata = f.writeMetadata
	}
	if changed("ledger") {
		cfg.Ledger = f.ledger
	}
	if changed("redis") {
		cfg.Redis.Addr = f.redisAddr
	}
	if changed("queue") {
		cfg.Redis.Queue = f.queue
	}
}
