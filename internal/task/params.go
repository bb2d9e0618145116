package task

import (
	"fmt"
	"math"

	"scenegen/internal/pkg/errors"
)

// Vec3 is a point or direction in scene units, Z up.
type Vec3 [3]float64

// Default lens: 35 mm focal length on a 32 mm sensor.
const (
	DefaultFocalMM    = 35.0
	DefaultSensorMM   = 32.0
	DefaultTargetSize = 2.0
)

// Params holds the camera and placement parameters of one kind. Fields that
// do not apply to a kind are ignored by the scene builder.
type Params struct {
	// Orbit (shape_extrapolation, occlusion_dynamics).
	Distance  float64 `yaml:"distance,omitempty" json:"distance,omitempty"`
	Elevation float64 `yaml:"elevation,omitempty" json:"elevation,omitempty"`
	Rotations float64 `yaml:"rotations,omitempty" json:"rotations,omitempty"`

	// Dolly zoom (zoom_consistency).
	Azimuth       float64 `yaml:"azimuth,omitempty" json:"azimuth,omitempty"`
	StartDistance float64 `yaml:"start_distance,omitempty" json:"start_distance,omitempty"`
	EndDistance   float64 `yaml:"end_distance,omitempty" json:"end_distance,omitempty"`

	// Lateral pan (depth_parallax).
	LateralRange    float64 `yaml:"lateral_range,omitempty" json:"lateral_range,omitempty"`
	ForwardDistance float64 `yaml:"forward_distance,omitempty" json:"forward_distance,omitempty"`
	Height          float64 `yaml:"height,omitempty" json:"height,omitempty"`
	LookAt          Vec3    `yaml:"look_at,omitempty,flow" json:"look_at"`

	// Multi-object placement, one entry per object.
	Positions []Vec3    `yaml:"positions,omitempty,flow" json:"positions,omitempty"`
	Scales    []float64 `yaml:"scales,omitempty,flow" json:"scales,omitempty"`

	// Shared.
	FOV        float64 `yaml:"fov,omitempty" json:"fov"`
	TargetSize float64 `yaml:"target_size,omitempty" json:"target_size"`
}

// DefaultParams returns the built-in parameters for k.
func DefaultParams(k Kind) Params {
	p := Params{
		FOV:        LensFOV(DefaultFocalMM, DefaultSensorMM),
		TargetSize: DefaultTargetSize,
	}
	switch k {
	case ShapeExtrapolation:
		p.Distance = 3.5
		p.Elevation = 25
		p.Rotations = 1
	case OcclusionDynamics:
		p.Distance = 4.5
		p.Elevation = 20
		p.Rotations = 1
		p.Positions = []Vec3{{0.8, 0, 0}, {-0.8, 0, 0}}
		p.Scales = []float64{1.5, 1.5}
	case DepthParallax:
		p.LateralRange = 3.5
		p.ForwardDistance = 5.5
		p.Height = 1.8
		p.LookAt = Vec3{0.1, 1.0, 0}
		p.Positions = []Vec3{{-1, -0.5, 0}, {0.3, 1, 0}, {1.2, 2.5, 0}}
		p.Scales = []float64{1.8, 1.8, 1.8}
	case ZoomConsistency:
		p.Elevation = 20
		p.Azimuth = 15
		p.StartDistance = 4.0
		p.EndDistance = 1.8
	}
	return p
}

// Validate checks that p carries what the scene builder needs for k.
func (p Params) Validate(k Kind) error {
	if field, ok := p.nonFinite(); ok {
		return errors.ValidationField(field, fmt.Sprintf("%s: %s must be a finite number", k, field))
	}
	if p.FOV <= 0 || p.FOV >= 180 {
		return errors.ValidationField("fov", fmt.Sprintf("%s: fov must be in (0, 180), got %g", k, p.FOV))
	}
	switch k {
	case ShapeExtrapolation, OcclusionDynamics:
		if p.Distance <= 0 {
			return errors.ValidationField("distance", fmt.Sprintf("%s: distance must be positive", k))
		}
		if p.Rotations <= 0 {
			return errors.ValidationField("rotations", fmt.Sprintf("%s: rotations must be positive", k))
		}
	case DepthParallax:
		if p.LateralRange <= 0 || p.ForwardDistance <= 0 {
			return errors.ValidationField("lateral_range", fmt.Sprintf("%s: lateral range and forward distance must be positive", k))
		}
	case ZoomConsistency:
		if p.StartDistance <= 0 || p.EndDistance <= 0 {
			return errors.ValidationField("start_distance", fmt.Sprintf("%s: zoom distances must be positive", k))
		}
	default:
		return errors.ValidationField("task", fmt.Sprintf("unknown task kind %q", k))
	}

	if n := k.RequiredObjects(); n > 1 {
		if len(p.Positions) != n {
			return errors.ValidationField("positions", fmt.Sprintf("%s: need %d positions, got %d", k, n, len(p.Positions)))
		}
		if len(p.Scales) != n {
			return errors.ValidationField("scales", fmt.Sprintf("%s: need %d scales, got %d", k, n, len(p.Scales)))
		}
	} else if p.TargetSize <= 0 {
		return errors.ValidationField("target_size", fmt.Sprintf("%s: target size must be positive", k))
	}
	return nil
}

// nonFinite names the first NaN or infinite field of p.
func (p Params) nonFinite() (string, bool) {
	bad := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"distance", p.Distance},
		{"elevation", p.Elevation},
		{"rotations", p.Rotations},
		{"azimuth", p.Azimuth},
		{"start_distance", p.StartDistance},
		{"end_distance", p.EndDistance},
		{"lateral_range", p.LateralRange},
		{"forward_distance", p.ForwardDistance},
		{"height", p.Height},
		{"fov", p.FOV},
		{"target_size", p.TargetSize},
	} {
		if bad(f.v) {
			return f.name, true
		}
	}
	for _, c := range p.LookAt {
		if bad(c) {
			return "look_at", true
		}
	}
	for _, v := range p.Positions {
		for _, c := range v {
			if bad(c) {
				return "positions", true
			}
		}
	}
	for _, s := range p.Scales {
		if bad(s) {
			return "scales", true
		}
	}
	return "", false
}

// Merge returns p with every non-zero field of o laid over it. A zero in o
// means "keep p's value", so an override cannot set a field to zero.
func (p Params) Merge(o Params) Params {
	set := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	set(&p.Distance, o.Distance)
	set(&p.Elevation, o.Elevation)
	set(&p.Rotations, o.Rotations)
	set(&p.Azimuth, o.Azimuth)
	set(&p.StartDistance, o.StartDistance)
	set(&p.EndDistance, o.EndDistance)
	set(&p.LateralRange, o.LateralRange)
	set(&p.ForwardDistance, o.ForwardDistance)
	set(&p.Height, o.Height)
	set(&p.FOV, o.FOV)
	set(&p.TargetSize, o.TargetSize)
	if o.LookAt != (Vec3{}) {
		p.LookAt = o.LookAt
	}
	if len(o.Positions) > 0 {
		p.Positions = append([]Vec3(nil), o.Positions...)
	}
	if len(o.Scales) > 0 {
		p.Scales = append([]float64(nil), o.Scales...)
	}
	return p
}
