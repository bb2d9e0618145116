package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/task"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 1024, c.Resolution)
	assert.Equal(t, 16, c.FPS)
	assert.Equal(t, 4.0, c.Duration)
	assert.Equal(t, 16, c.MaxWorkers)
	assert.Equal(t, 600*time.Second, c.Renderer.Timeout)
	assert.Equal(t, 2, c.Retry.TransientRetries)
	assert.Equal(t, 1, c.Retry.MalformedRetries)
	assert.Equal(t, filepath.Join("data", "questions"), c.OutputRoot)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeYAML(t, `
task: depth_parallax
num_samples: 5
resolution: 512
object_list: objects.txt
renderer:
  binary: /opt/blender/blender
  args: [--background, --python, render.py, --]
  timeout: 90s
retry:
  transient_retries: 4
params:
  depth_parallax:
    lateral_range: 5
`)
	t.Setenv("SCENEGEN_NUM_SAMPLES", "7")
	t.Setenv("SCENEGEN_RENDER_TIMEOUT", "120")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "depth_parallax", c.Task)
	assert.Equal(t, 7, c.NumSamples, "env overrides the file")
	assert.Equal(t, 512, c.Resolution)
	assert.Equal(t, 16, c.FPS, "unset keys keep defaults")
	assert.Equal(t, []string{"--background", "--python", "render.py", "--"}, c.Renderer.Args)
	assert.Equal(t, 120*time.Second, c.Renderer.Timeout)
	assert.Equal(t, 4, c.Retry.TransientRetries)
	assert.Equal(t, 1, c.Retry.MalformedRetries)

	p := c.ParamsFor(task.DepthParallax)
	assert.Equal(t, 5.0, p.LateralRange)
	assert.Equal(t, 5.5, p.ForwardDistance)
	require.NoError(t, c.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeYAML(t, "num_sampels: 3\n"))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsValidation(err))
}

func TestKinds(t *testing.T) {
	tests := []struct {
		task string
		want []task.Kind
	}{
		{"all", task.All()},
		{"", task.All()},
		{"zoom_consistency", []task.Kind{task.ZoomConsistency}},
		{"depth_parallax, zoom_consistency,depth_parallax", []task.Kind{task.DepthParallax, task.ZoomConsistency}},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			c := Default()
			c.Task = tt.task
			got, err := c.Kinds()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	c := Default()
	c.Task = "spin"
	_, err := c.Kinds()
	assert.True(t, errors.IsValidation(err))
}

func TestCounts(t *testing.T) {
	c := Default()
	c.NumSamples = 10
	counts, err := c.Counts()
	require.NoError(t, err)
	for _, k := range task.All() {
		assert.Equal(t, 10, counts[k])
	}

	c.Split = true
	counts, err = c.Counts()
	require.NoError(t, err)
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 3, counts[task.ShapeExtrapolation])
	assert.Equal(t, 2, counts[task.ZoomConsistency])
}

func TestValidate(t *testing.T) {
	valid := func() Run {
		c := Default()
		c.Objects = []string{"a"}
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name  string
		mut   func(*Run)
		field string
	}{
		{"samples", func(c *Run) { c.NumSamples = 0 }, "num_samples"},
		{"resolution", func(c *Run) { c.Resolution = -1 }, "resolution"},
		{"fps", func(c *Run) { c.FPS = 0 }, "fps"},
		{"duration", func(c *Run) { c.Duration = 0 }, "duration"},
		{"workers", func(c *Run) { c.MaxWorkers = 0 }, "max_workers"},
		{"objects", func(c *Run) { c.Objects = nil }, "object_list"},
		{"output", func(c *Run) { c.OutputRoot = "" }, "output_root"},
		{"task", func(c *Run) { c.Task = "spin" }, "task"},
		{"params kind", func(c *Run) { c.Params = map[task.Kind]task.Params{"spin": {}} }, "params"},
		{"params value", func(c *Run) {
			c.Params = map[task.Kind]task.Params{task.OcclusionDynamics: {Scales: []float64{1}}}
		}, "scales"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mut(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}
