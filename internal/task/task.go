// Package task defines the closed set of camera-motion task kinds, their
// scene parameters and the prompt that accompanies each sample.
package task

import (
	"fmt"
	"math"
	"strings"

	"scenegen/internal/pkg/errors"
)

// Kind is one of the four camera-motion patterns.
type Kind string

const (
	ShapeExtrapolation Kind = "shape_extrapolation"
	OcclusionDynamics  Kind = "occlusion_dynamics"
	DepthParallax      Kind = "depth_parallax"
	ZoomConsistency    Kind = "zoom_consistency"
)

// Motion names the camera path family a kind uses.
type Motion string

const (
	MotionOrbit      Motion = "orbit"
	MotionLateralPan Motion = "lateral_pan"
	MotionDollyZoom  Motion = "dolly_zoom"
)

var all = []Kind{ShapeExtrapolation, OcclusionDynamics, DepthParallax, ZoomConsistency}

// All returns every kind in canonical order.
func All() []Kind {
	out := make([]Kind, len(all))
	copy(out, all)
	return out
}

// Parse accepts a kind name, case-insensitively.
func Parse(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	return "", errors.ValidationField("task", fmt.Sprintf("unknown task kind %q", s))
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case ShapeExtrapolation, OcclusionDynamics, DepthParallax, ZoomConsistency:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// RequiredObjects is the number of distinct objects a scene of this kind holds.
func (k Kind) RequiredObjects() int {
	switch k {
	case OcclusionDynamics:
		return 2
	case DepthParallax:
		return 3
	default:
		return 1
	}
}

// Motion returns the camera path family for k.
func (k Kind) Motion() Motion {
	switch k {
	case DepthParallax:
		return MotionLateralPan
	case ZoomConsistency:
		return MotionDollyZoom
	default:
		return MotionOrbit
	}
}

// TaskDir is the per-kind directory under the output root.
func (k Kind) TaskDir() string {
	return string(k) + "_task"
}

// SampleID formats the identifier of the index-th sample of k.
func (k Kind) SampleID(index int) string {
	return fmt.Sprintf("%s_%06d", k, index)
}

// Split divides total samples across kinds as evenly as possible; the first
// total%len(kinds) kinds get one extra.
func Split(total int, kinds []Kind) map[Kind]int {
	out := make(map[Kind]int, len(kinds))
	if len(kinds) == 0 || total <= 0 {
		return out
	}
	base, extra := total/len(kinds), total%len(kinds)
	for i, k := range kinds {
		n := base
		if i < extra {
			n++
		}
		out[k] = n
	}
	return out
}

// LensFOV returns the horizontal field of view in degrees of a pinhole
// camera with the given focal length and sensor width, both in millimetres.
func LensFOV(focalMM, sensorMM float64) float64 {
	return 2 * math.Atan(sensorMM/(2*focalMM)) * 180 / math.Pi
}
