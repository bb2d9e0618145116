// Package v1 is the file contract between the pipeline and the renderer
// process.
//
// The renderer is started as
//
//	<binary> [args...] --scene <work>/scene.json --output_dir <work>/frames
//
// It reads Scene from scene.json, writes FrameCount PNG files named by
// FramePattern (frame_00000.png, frame_00001.png, ...) into the output
// directory, prints SuccessMarker on its own stdout line and exits 0.
package v1

import "fmt"

const (
	Version       = "renderer/v1"
	SuccessMarker = "RENDER_SUCCESS"
	FramePattern  = "frame_%05d.png"
	SceneFile     = "scene.json"
	FramesDir     = "frames"
)

// Scene is the content of scene.json.
type Scene struct {
	Version      string   `json:"version"`
	SampleID     string   `json:"sample_id"`
	Task         string   `json:"task"`
	Resolution   int      `json:"resolution"`
	FPS          int      `json:"fps"`
	FrameCount   int      `json:"frame_count"`
	FramePattern string   `json:"frame_pattern"`
	Objects      []Object `json:"objects"`
	Camera       []Pose   `json:"camera"`
}

// Object is a model file placed in the scene: bounding box centred on
// Position, largest dimension scaled to Scale.
type Object struct {
	Path     string     `json:"path"`
	Position [3]float64 `json:"position"`
	Scale    float64    `json:"scale"`
}

// Pose is the camera of one frame; FOV is horizontal, in degrees.
type Pose struct {
	Position [3]float64 `json:"position"`
	LookAt   [3]float64 `json:"look_at"`
	FOV      float64    `json:"fov"`
}

// FrameName returns the file name of frame i.
func FrameName(i int) string {
	return fmt.Sprintf(FramePattern, i)
}
