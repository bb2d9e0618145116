// Package renderer runs the external renderer process for one scene and
// classifies what it produced. It is the only code that starts renderer
// processes.
package renderer

import (
	"bytes"
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	contract "scenegen/internal/contracts/renderer/v1"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/scene"
)

const stderrExcerptBytes = 2000

// Config describes how to start the renderer.
type Config struct {
	Binary string
	// Args are passed before --scene/--output_dir, e.g. a blender script:
	// ["--background", "--python", "render.py", "--"].
	Args []string
	// Env is appended to the parent environment (KEY=VALUE).
	Env      []string
	WorkRoot string
	// KeepWorkDirs leaves work directories in place for debugging.
	KeepWorkDirs bool
	// WaitDelay bounds how long output pipes are drained after a kill.
	WaitDelay time.Duration
}

// Adapter invokes the renderer. Safe for concurrent use; every invocation
// has its own work directory and process group.
type Adapter struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config, log *logger.Logger) (*Adapter, error) {
	if cfg.Binary == "" {
		return nil, errors.ValidationField("renderer.binary", "renderer binary is required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return nil, errors.Wrap(err, "renderer.new", "create work root")
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Adapter{cfg: cfg, log: log.WithComponent("renderer")}, nil
}

// Invoke renders spec and waits for the process to finish or be killed.
// It never returns an error: every failure is a Result status. A timeout
// of zero means no deadline besides ctx.
func (a *Adapter) Invoke(ctx context.Context, spec scene.Spec, timeout time.Duration) Result {
	start := time.Now()
	log := a.log.WithSampleID(spec.SampleID)

	res := a.invoke(ctx, spec, timeout)
	res.Duration = time.Since(start)
	res.keep = a.cfg.KeepWorkDirs

	attrs := []any{
		"status", string(res.Status),
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
	}
	if res.Status == StatusSuccess {
		log.Debug("render finished", attrs...)
	} else {
		log.Warn("render failed", append(attrs, "detail", res.Detail, "stderr", res.StderrExcerpt)...)
	}
	return res
}

func (a *Adapter) invoke(ctx context.Context, spec scene.Spec, timeout time.Duration) Result {
	if ctx.Err() != nil {
		return Result{Status: StatusCanceled, Detail: "canceled before start"}
	}

	workDir, err := os.MkdirTemp(a.cfg.WorkRoot, spec.SampleID+"-*")
	if err != nil {
		return Result{Status: StatusCrash, Detail: "create work dir: " + err.Error()}
	}
	res := Result{WorkDir: workDir}

	framesDir := filepath.Join(workDir, contract.FramesDir)
	scenePath := filepath.Join(workDir, contract.SceneFile)
	if err := os.Mkdir(framesDir, 0o755); err != nil {
		res.Status, res.Detail = StatusCrash, "create frames dir: "+err.Error()
		return res
	}
	if err := writeScene(scenePath, spec); err != nil {
		res.Status, res.Detail = StatusCrash, "write scene: "+err.Error()
		return res
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append(append([]string{}, a.cfg.Args...), "--scene", scenePath, "--output_dir", framesDir)
	cmd := exec.CommandContext(runCtx, a.cfg.Binary, args...)
	cmd.Env = append(append(os.Environ(), a.cfg.Env...), "SCENEGEN_SAMPLE_ID="+spec.SampleID)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid: the whole group, so renderer children die too.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = a.cfg.WaitDelay

	stdout := &markerWriter{marker: contract.SuccessMarker}
	stderr := &tailBuffer{limit: stderrExcerptBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	res.StderrExcerpt = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		res.Status, res.Detail = StatusCanceled, "run canceled"
		return res
	case runCtx.Err() == context.DeadlineExceeded:
		res.Status, res.Detail = StatusTimeout, fmt.Sprintf("killed after %s", timeout)
		return res
	case runErr != nil:
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			res.Status, res.Detail = StatusCrash, fmt.Sprintf("renderer exited with code %d", exitErr.ExitCode())
		} else {
			res.Status, res.Detail = StatusCrash, "start renderer: "+runErr.Error()
		}
		return res
	case !stdout.Found():
		res.Status, res.Detail = StatusCrash, "renderer exited 0 without "+contract.SuccessMarker
		return res
	}

	frames, err := collectFrames(framesDir, spec.FrameCount)
	if err != nil {
		res.Status, res.Detail = StatusMalformed, err.Error()
		return res
	}
	res.Status, res.FramePaths = StatusSuccess, frames
	return res
}

// SceneContract converts a Spec into the renderer's scene.json content.
func SceneContract(spec scene.Spec) contract.Scene {
	sc := contract.Scene{
		Version:      contract.Version,
		SampleID:     spec.SampleID,
		Task:         string(spec.Kind),
		Resolution:   spec.Resolution,
		FPS:          spec.FPS,
		FrameCount:   spec.FrameCount,
		FramePattern: contract.FramePattern,
		Objects:      make([]contract.Object, len(spec.Objects)),
		Camera:       make([]contract.Pose, len(spec.Camera)),
	}
	for i, o := range spec.Objects {
		sc.Objects[i] = contract.Object{Path: o.LocalPath, Position: o.Transform.Position, Scale: o.Transform.Scale}
	}
	for i, p := range spec.Camera {
		sc.Camera[i] = contract.Pose{Position: p.Position, LookAt: p.LookAt, FOV: p.FOV}
	}
	return sc
}

func writeScene(path string, spec scene.Spec) error {
	b, err := json.MarshalIndent(SceneContract(spec), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// collectFrames checks that dir holds exactly frames 0..want-1, each a
// decodable PNG header, and returns their paths in order.
func collectFrames(dir string, want int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) != want {
		return nil, fmt.Errorf("renderer wrote %d frames, expected %d", len(names), want)
	}

	paths := make([]string, want)
	for i := range paths {
		name := contract.FrameName(i)
		if names[i] != name {
			return nil, fmt.Errorf("frame sequence gap: expected %s, found %s", name, names[i])
		}
		p := filepath.Join(dir, name)
		if err := checkPNG(p); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		paths[i] = p
	}
	return paths, nil
}

func checkPNG(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		return fmt.Errorf("not a png: %w", err)
	}
	return nil
}

// markerWriter watches a stream for a line containing marker.
type markerWriter struct {
	marker  string
	partial []byte
	found   bool
}

func (w *markerWriter) Write(p []byte) (int, error) {
	if w.found {
		return len(p), nil
	}
	data := append(w.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if strings.Contains(string(data[:i]), w.marker) {
			w.found = true
			w.partial = nil
			return len(p), nil
		}
		data = data[i+1:]
	}
	// Keep only enough of an unterminated line to match the marker later.
	if keep := 4 * len(w.marker); len(data) > keep && !bytes.Contains(data, []byte(w.marker)) {
		data = data[len(data)-keep:]
	}
	w.partial = append([]byte(nil), data...)
	return len(p), nil
}

// Found also accepts a marker on a final line without a newline.
func (w *markerWriter) Found() bool {
	return w.found || strings.Contains(string(w.partial), w.marker)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.limit:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
