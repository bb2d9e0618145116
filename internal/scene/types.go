// Package scene turns a sample request into a fully determined scene: which
// objects appear, where they sit, and the camera pose of every frame.
package scene

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/task"
)

// Vec3 is a point in scene units, Z up.
type Vec3 = task.Vec3

// SampleRequest identifies one sample to generate. It is a value; nothing
// downstream mutates it.
type SampleRequest struct {
	Kind       task.Kind   `json:"kind"`
	Index      int         `json:"index"`
	Seed       int64       `json:"seed"`
	Resolution int         `json:"resolution"`
	FPS        int         `json:"fps"`
	Duration   float64     `json:"duration"`
	Objects    []string    `json:"objects"`
	Params     task.Params `json:"params"`
}

// ID is the sample identifier, e.g. zoom_consistency_000042.
func (r SampleRequest) ID() string {
	return r.Kind.SampleID(r.Index)
}

// FrameCount is round(fps × duration).
func (r SampleRequest) FrameCount() int {
	return int(math.Round(float64(r.FPS) * r.Duration))
}

// Validate checks the request fields that do not depend on assets.
func (r SampleRequest) Validate() error {
	if !r.Kind.Valid() {
		return errors.ValidationField("task", fmt.Sprintf("unknown task kind %q", r.Kind))
	}
	if r.Index < 0 {
		return errors.ValidationField("index", "index must be non-negative")
	}
	if r.Resolution <= 0 {
		return errors.ValidationField("resolution", "resolution must be positive")
	}
	if r.FPS <= 0 {
		return errors.ValidationField("fps", "fps must be positive")
	}
	if r.Duration <= 0 || math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0) {
		return errors.ValidationField("duration", "duration must be positive")
	}
	if n := r.FrameCount(); n < 2 {
		return errors.ValidationField("duration", fmt.Sprintf("fps × duration gives %d frames, need at least 2", n))
	}
	return r.Params.Validate(r.Kind)
}

// Transform places an object: its bounding box is centred on Position and
// its largest dimension normalised to Scale.
type Transform struct {
	Position Vec3    `json:"position"`
	Scale    float64 `json:"scale"`
}

// PlacedObject is a selected object with its placement. LocalPath depends
// on the host's cache location and is kept out of the canonical form.
type PlacedObject struct {
	Identifier string    `json:"identifier"`
	LocalPath  string    `json:"-"`
	Transform  Transform `json:"transform"`
}

// CameraPose is the camera of one frame. FOV is horizontal, in degrees.
type CameraPose struct {
	Position Vec3    `json:"position"`
	LookAt   Vec3    `json:"look_at"`
	FOV      float64 `json:"fov"`
}

// Spec is the complete, render-ready description of one sample.
type Spec struct {
	Kind       task.Kind      `json:"kind"`
	SampleID   string         `json:"sample_id"`
	Seed       uint64         `json:"seed"`
	Objects    []PlacedObject `json:"objects"`
	Camera     []CameraPose   `json:"camera"`
	FrameCount int            `json:"frame_count"`
	Resolution int            `json:"resolution"`
	FPS        int            `json:"fps"`
}

// Marshal returns the canonical JSON form. Equal inputs give equal bytes.
func (s Spec) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Digest is the hex blake3 hash of the canonical JSON.
func (s Spec) Digest() (string, error) {
	b, err := s.Marshal()
	if err != nil {
		return "", err
	}
	h := blake3.New()
	if _, err := h.Write(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ObjectPaths lists the local paths in placement order.
func (s Spec) ObjectPaths() []string {
	out := make([]string, len(s.Objects))
	for i, o := range s.Objects {
		out[i] = o.LocalPath
	}
	return out
}
