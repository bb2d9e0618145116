// Package cli implements the scenegen command line.
package cli

import (
	"github.com/spf13/cobra"

	"scenegen/internal/config"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/pkg/shutdown"
)

// Deps are shared by every command. Shutdown may be nil in tests.
type Deps struct {
	Log      *logger.Logger
	Shutdown *shutdown.Manager
}

type app struct {
	deps  Deps
	flags runFlags
}

// NewRootCommand builds the scenegen command tree.
func NewRootCommand(d Deps) *cobra.Command {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	a := &app{deps: d}

	root := &cobra.Command{
		Use:   "scenegen",
		Short: "Generate synthetic camera-motion video samples",
		Long: `scenegen renders short clips of 3D objects under four camera motions
(shape_extrapolation, occlusion_dynamics, depth_parallax, zoom_consistency)
and writes each sample as first/final frame, prompt and ground-truth video.

Configuration comes from defaults, then --config, then SCENEGEN_* variables,
then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.flags.register(root)

	root.AddCommand(
		a.generateCommand(),
		a.enqueueCommand(),
		a.sceneCommand(),
		a.runsCommand(),
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) (config.Run, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return cfg, err
	}
	a.flags.apply(cmd, &cfg)
	return cfg, nil
}

// closer hands fn to the shutdown manager and returns a no-op, or returns
// fn itself for the caller to defer when there is no manager.
func (a *app) closer(name string, fn func() error) func() {
	run := func() {
		if err := fn(); err != nil {
			a.deps.Log.Warn("cleanup failed", "name", name, "error", err.Error())
		}
	}
	if a.deps.Shutdown != nil {
		a.deps.Shutdown.RegisterSimple(name, run)
		return func() {}
	}
	return run
}
