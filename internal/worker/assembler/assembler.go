// Package assembler validates renderer output and commits it into the
// dataset tree. A sample directory either does not exist or is complete.
package assembler

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	contract "scenegen/internal/contracts/renderer/v1"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
	"scenegen/internal/task"
	"scenegen/internal/worker/encoder"
	"scenegen/internal/worker/renderer"
)

// Files of a committed sample.
const (
	FirstFrameFile = "first_frame.png"
	FinalFrameFile = "final_frame.png"
	PromptFile     = "prompt.txt"
	VideoFile      = "ground_truth.mp4"
	MetadataFile   = "metadata.json"

	tempPrefix = ".tmp-"
)

var requiredFiles = []string{FirstFrameFile, FinalFrameFile, PromptFile, VideoFile}

// Artifact points at a committed sample.
type Artifact struct {
	OutputDir  string
	FirstFrame string
	FinalFrame string
	VideoPath  string
	PromptText string
}

type Config struct {
	OutputRoot    string
	WriteMetadata bool
	// StaleAfter is the minimum age of a temp dir before SweepStale removes
	// it. Zero removes every temp dir; use a positive value when several
	// hosts share the output root.
	StaleAfter time.Duration
}

type Assembler struct {
	cfg     Config
	encoder encoder.Encoder
	log     *logger.Logger
}

func New(cfg Config, enc encoder.Encoder, log *logger.Logger) (*Assembler, error) {
	if cfg.OutputRoot == "" {
		return nil, errors.ValidationField("output_root", "output root is required")
	}
	if enc == nil {
		return nil, errors.Internal("assembler: encoder is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Assembler{cfg: cfg, encoder: enc, log: log.WithComponent("assembler")}, nil
}

// SampleDir is the final directory of a sample.
func (a *Assembler) SampleDir(kind task.Kind, sampleID string) string {
	return filepath.Join(a.cfg.OutputRoot, kind.TaskDir(), sampleID)
}

// Committed reports whether req already has a complete sample directory.
func (a *Assembler) Committed(req scene.SampleRequest) bool {
	return IsComplete(a.SampleDir(req.Kind, req.ID()))
}

// Commit validates a successful render and moves the sample into place with
// a single rename. On error nothing is left under the final path.
func (a *Assembler) Commit(ctx context.Context, req scene.SampleRequest, spec scene.Spec, res renderer.Result) (Artifact, error) {
	const op = "assembler.commit"
	log := a.log.WithSampleID(spec.SampleID)

	if res.Status != renderer.StatusSuccess {
		return Artifact{}, errors.Assembly("cannot commit %s render of %s", res.Status, spec.SampleID)
	}
	if err := validateFrames(res.FramePaths, spec.FrameCount, spec.Resolution); err != nil {
		return Artifact{}, err
	}

	finalDir := a.SampleDir(spec.Kind, spec.SampleID)
	if IsComplete(finalDir) {
		log.Info("sample already committed", "dir", finalDir)
		return artifact(finalDir, task.Prompt(req.Kind, req.Params)), nil
	}

	taskDir := filepath.Dir(finalDir)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return Artifact{}, errors.Wrap(err, op, "create task dir")
	}
	staging, err := os.MkdirTemp(taskDir, tempPrefix+spec.SampleID+"-")
	if err != nil {
		return Artifact{}, errors.Wrap(err, op, "create staging dir")
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	prompt := task.Prompt(req.Kind, req.Params)
	if err := a.stage(ctx, staging, req, spec, res, prompt); err != nil {
		return Artifact{}, err
	}
	if err := syncDir(staging); err != nil {
		return Artifact{}, errors.Wrap(err, op, "sync staging dir")
	}

	// A leftover incomplete directory is not a sample; replace it.
	if _, err := os.Stat(finalDir); err == nil {
		log.Warn("replacing incomplete sample dir", "dir", finalDir)
		if err := os.RemoveAll(finalDir); err != nil {
			return Artifact{}, errors.Wrap(err, op, "remove incomplete sample dir")
		}
	}
	if err := os.Rename(staging, finalDir); err != nil {
		// Another worker may have committed the same sample first.
		if IsComplete(finalDir) {
			log.Info("sample committed concurrently", "dir", finalDir)
			return artifact(finalDir, prompt), nil
		}
		return Artifact{}, errors.Wrap(err, op, "rename into place")
	}
	committed = true
	if err := syncDir(taskDir); err != nil {
		log.Warn("sync task dir failed", "error", err.Error())
	}

	log.Debug("sample committed", "dir", finalDir)
	return artifact(finalDir, prompt), nil
}

func (a *Assembler) stage(ctx context.Context, dir string, req scene.SampleRequest, spec scene.Spec, res renderer.Result, prompt string) error {
	const op = "assembler.stage"
	frames := res.FramePaths

	if err := copyFile(frames[0], filepath.Join(dir, FirstFrameFile)); err != nil {
		return errors.Wrap(err, op, "write first frame")
	}
	if err := copyFile(frames[len(frames)-1], filepath.Join(dir, FinalFrameFile)); err != nil {
		return errors.Wrap(err, op, "write final frame")
	}
	if err := writeFile(filepath.Join(dir, PromptFile), []byte(prompt+"\n")); err != nil {
		return errors.Wrap(err, op, "write prompt")
	}

	video := filepath.Join(dir, VideoFile)
	err := a.encoder.Encode(ctx, encoder.Request{
		FramesDir: filepath.Dir(frames[0]),
		Pattern:   contract.FramePattern,
		FPS:       spec.FPS,
		Size:      spec.Resolution,
		Output:    video,
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.WrapWithCode(err, errors.CodeCanceled, op, "encode interrupted")
		}
		return errors.WrapWithCode(err, errors.CodeAssembly, op, "encode video")
	}
	if err := syncFile(video); err != nil {
		return errors.WrapWithCode(err, errors.CodeAssembly, op, "encoder output unreadable")
	}

	if a.cfg.WriteMetadata {
		b, err := metadata(req, spec)
		if err != nil {
			return errors.Wrap(err, op, "build metadata")
		}
		if err := writeFile(filepath.Join(dir, MetadataFile), b); err != nil {
			return errors.Wrap(err, op, "write metadata")
		}
	}
	return nil
}

// Metadata is the optional metadata.json of a sample.
type Metadata struct {
	SampleID     string      `json:"sample_id"`
	Task         task.Kind   `json:"task"`
	CameraMotion task.Motion `json:"camera_motion"`
	Seed         uint64      `json:"seed"`
	SceneDigest  string      `json:"scene_digest"`
	FrameCount   int         `json:"frame_count"`
	FPS          int         `json:"fps"`
	Resolution   int         `json:"resolution"`
	Objects      []string    `json:"objects"`
}

func metadata(req scene.SampleRequest, spec scene.Spec) ([]byte, error) {
	digest, err := spec.Digest()
	if err != nil {
		return nil, err
	}
	m := Metadata{
		SampleID:     spec.SampleID,
		Task:         spec.Kind,
		CameraMotion: req.Kind.Motion(),
		Seed:         spec.Seed,
		SceneDigest:  digest,
		FrameCount:   spec.FrameCount,
		FPS:          spec.FPS,
		Resolution:   spec.Resolution,
	}
	for _, o := range spec.Objects {
		m.Objects = append(m.Objects, o.Identifier)
	}
	return json.MarshalIndent(m, "", "  ")
}

// IsComplete reports whether dir holds every required sample file, each
// non-empty.
func IsComplete(dir string) bool {
	for _, name := range requiredFiles {
		st, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !st.Mode().IsRegular() || st.Size() == 0 {
			return false
		}
	}
	return true
}

// SweepStale removes staging directories left in kind's task dir by killed
// runs and returns how many were removed.
func (a *Assembler) SweepStale(kind task.Kind) (int, error) {
	taskDir := filepath.Join(a.cfg.OutputRoot, kind.TaskDir())
	entries, err := os.ReadDir(taskDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "assembler.sweep", "read task dir")
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if a.cfg.StaleAfter > 0 {
			info, err := e.Info()
			if err != nil || time.Since(info.ModTime()) < a.cfg.StaleAfter {
				continue
			}
		}
		if err := os.RemoveAll(filepath.Join(taskDir, e.Name())); err != nil {
			return removed, errors.Wrap(err, "assembler.sweep", "remove "+e.Name())
		}
		removed++
	}
	if removed > 0 {
		a.log.Info("removed stale staging dirs", "task", string(kind), "count", removed)
	}
	return removed, nil
}

func artifact(dir, prompt string) Artifact {
	return Artifact{
		OutputDir:  dir,
		FirstFrame: filepath.Join(dir, FirstFrameFile),
		FinalFrame: filepath.Join(dir, FinalFrameFile),
		VideoPath:  filepath.Join(dir, VideoFile),
		PromptText: prompt,
	}
}

func validateFrames(paths []string, want, size int) error {
	if len(paths) != want {
		return errors.Assembly("got %d frames, expected %d", len(paths), want)
	}
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeAssembly, "assembler.validate", "open frame")
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeAssembly, "assembler.validate", filepath.Base(p)+" is not a png")
		}
		if cfg.Width != size || cfg.Height != size {
			return errors.Assembly("frame %d is %dx%d, expected %dx%d", i, cfg.Width, cfg.Height, size, size).
				WithField("frame", i)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
