package task

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenegen/internal/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"shape_extrapolation", ShapeExtrapolation, false},
		{"  Zoom_Consistency ", ZoomConsistency, false},
		{"depth_parallax", DepthParallax, false},
		{"occlusion_dynamics", OcclusionDynamics, false},
		{"all", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredObjectsAndMotion(t *testing.T) {
	tests := []struct {
		kind    Kind
		objects int
		motion  Motion
	}{
		{ShapeExtrapolation, 1, MotionOrbit},
		{OcclusionDynamics, 2, MotionOrbit},
		{DepthParallax, 3, MotionLateralPan},
		{ZoomConsistency, 1, MotionDollyZoom},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.objects, tt.kind.RequiredObjects())
			assert.Equal(t, tt.motion, tt.kind.Motion())
		})
	}
}

func TestAllIsCanonicalAndCopied(t *testing.T) {
	kinds := All()
	require.Len(t, kinds, 4)
	assert.Equal(t, ShapeExtrapolation, kinds[0])
	assert.Equal(t, ZoomConsistency, kinds[3])

	kinds[0] = "mutated"
	assert.Equal(t, ShapeExtrapolation, All()[0])
}

func TestSampleIDAndTaskDir(t *testing.T) {
	assert.Equal(t, "zoom_consistency_000042", ZoomConsistency.SampleID(42))
	assert.Equal(t, "depth_parallax_1234567", DepthParallax.SampleID(1234567))
	assert.Equal(t, "occlusion_dynamics_task", OcclusionDynamics.TaskDir())
}

func TestSplit(t *testing.T) {
	got := Split(10, All())
	assert.Equal(t, map[Kind]int{
		ShapeExtrapolation: 3,
		OcclusionDynamics:  3,
		DepthParallax:      2,
		ZoomConsistency:    2,
	}, got)

	sum := 0
	for _, n := range Split(1001, All()) {
		sum += n
	}
	assert.Equal(t, 1001, sum)
	assert.Empty(t, Split(0, All()))
}

func TestLensFOV(t *testing.T) {
	assert.InDelta(t, 49.134, LensFOV(35, 32), 0.001)
}

func TestDefaultParamsValidate(t *testing.T) {
	for _, k := range All() {
		t.Run(string(k), func(t *testing.T) {
			require.NoError(t, DefaultParams(k).Validate(k))
		})
	}
}

func TestDefaultParamsValues(t *testing.T) {
	zoom := DefaultParams(ZoomConsistency)
	assert.Equal(t, 4.0, zoom.StartDistance)
	assert.Equal(t, 1.8, zoom.EndDistance)
	assert.Equal(t, 15.0, zoom.Azimuth)

	parallax := DefaultParams(DepthParallax)
	assert.Equal(t, Vec3{0.1, 1.0, 0}, parallax.LookAt)
	assert.Len(t, parallax.Positions, 3)
}

func TestParamsValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		mut   func(*Params)
		field string
	}{
		{"zero fov", ShapeExtrapolation, func(p *Params) { p.FOV = 0 }, "fov"},
		{"negative distance", ShapeExtrapolation, func(p *Params) { p.Distance = -1 }, "distance"},
		{"zero rotations", OcclusionDynamics, func(p *Params) { p.Rotations = 0 }, "rotations"},
		{"missing position", DepthParallax, func(p *Params) { p.Positions = p.Positions[:2] }, "positions"},
		{"missing scale", OcclusionDynamics, func(p *Params) { p.Scales = nil }, "scales"},
		{"zero zoom end", ZoomConsistency, func(p *Params) { p.EndDistance = 0 }, "start_distance"},
		{"zero target size", ZoomConsistency, func(p *Params) { p.TargetSize = 0 }, "target_size"},
		{"infinite distance", ShapeExtrapolation, func(p *Params) { p.Distance = math.Inf(1) }, "distance"},
		{"nan distance", OcclusionDynamics, func(p *Params) { p.Distance = math.NaN() }, "distance"},
		{"nan elevation", ShapeExtrapolation, func(p *Params) { p.Elevation = math.NaN() }, "elevation"},
		{"infinite zoom start", ZoomConsistency, func(p *Params) { p.StartDistance = math.Inf(1) }, "start_distance"},
		{"negative infinite height", DepthParallax, func(p *Params) { p.Height = math.Inf(-1) }, "height"},
		{"nan look_at", DepthParallax, func(p *Params) { p.LookAt[1] = math.NaN() }, "look_at"},
		{"nan position", DepthParallax, func(p *Params) { p.Positions = []Vec3{{0, 0, 0}, {math.NaN(), 0, 0}, {1, 1, 0}} }, "positions"},
		{"infinite scale", OcclusionDynamics, func(p *Params) { p.Scales = []float64{1, math.Inf(1)} }, "scales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams(tt.kind)
			tt.mut(&p)
			err := p.Validate(tt.kind)
			require.Error(t, err)
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}

func TestPrompt(t *testing.T) {
	shape := Prompt(ShapeExtrapolation, DefaultParams(ShapeExtrapolation))
	assert.Contains(t, shape, "orbits 360 degrees")
	assert.Contains(t, shape, "first 75%")
	assert.Contains(t, shape, "270 degrees")
	assert.Contains(t, shape, "final 25%")

	p := DefaultParams(ShapeExtrapolation)
	p.Rotations = 0.5
	assert.Contains(t, Prompt(ShapeExtrapolation, p), "135 degrees")

	for _, k := range All() {
		assert.NotEmpty(t, Prompt(k, DefaultParams(k)), k)
		assert.Equal(t, Prompt(k, DefaultParams(k)), Prompt(k, DefaultParams(k)), "prompt must be fixed per kind")
	}
	assert.Empty(t, Prompt("unknown", Params{}))
}

func TestParamsMerge(t *testing.T) {
	base := DefaultParams(DepthParallax)
	merged := base.Merge(Params{LateralRange: 5, Scales: []float64{1, 2, 3}})

	assert.Equal(t, 5.0, merged.LateralRange)
	assert.Equal(t, []float64{1, 2, 3}, merged.Scales)
	assert.Equal(t, base.ForwardDistance, merged.ForwardDistance)
	assert.Equal(t, base.Positions, merged.Positions)
	assert.Equal(t, 3.5, base.LateralRange, "receiver is not modified")

	assert.Equal(t, base, base.Merge(Params{}))
}
