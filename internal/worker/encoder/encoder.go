// Package encoder turns a directory of ordered PNG frames into a video file.
package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
)

// Request describes one encode. Frames must be named by Pattern inside
// FramesDir and numbered from zero.
type Request struct {
	FramesDir string
	Pattern   string
	FPS       int
	Size      int
	Output    string
}

// Encoder writes Request.Output or returns an error; it never leaves a
// partial file it claims is complete.
type Encoder interface {
	Encode(ctx context.Context, req Request) error
}

// FFmpeg drives the ffmpeg binary with an H.264 yuv420p profile that common
// players accept.
type FFmpeg struct {
	Binary  string
	CRF     int
	Preset  string
	Timeout time.Duration
	log     *logger.Logger
}

func NewFFmpeg(binary string, log *logger.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &FFmpeg{
		Binary:  binary,
		CRF:     18,
		Preset:  "medium",
		Timeout: 5 * time.Minute,
		log:     log.WithComponent("encoder"),
	}
}

// Args returns the ffmpeg argument list for req.
func (f *FFmpeg) Args(req Request) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", strconv.Itoa(req.FPS),
		"-start_number", "0",
		"-i", filepath.Join(req.FramesDir, req.Pattern),
		"-vf", fmt.Sprintf("scale=%d:%d:flags=lanczos", req.Size, req.Size),
		"-c:v", "libx264",
		"-preset", f.Preset,
		"-crf", strconv.Itoa(f.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		req.Output,
	}
}

func (f *FFmpeg) Encode(ctx context.Context, req Request) error {
	if req.FPS <= 0 || req.Size <= 0 {
		return errors.Validationf("encode: fps and size must be positive, got %d and %d", req.FPS, req.Size)
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.Binary, f.Args(req)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }
	cmd.WaitDelay = 5 * time.Second
	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(req.Output)
		if ctx.Err() != nil {
			return errors.WrapWithCode(ctx.Err(), errors.CodeCanceled, "encoder.ffmpeg", "encode interrupted")
		}
		return errors.Wrap(err, "encoder.ffmpeg", "ffmpeg failed").
			WithField("stderr", lastBytes(stderr.String(), 1000))
	}

	st, err := os.Stat(req.Output)
	if err != nil || st.Size() == 0 {
		return errors.Internalf("ffmpeg produced no output at %s", req.Output)
	}
	f.log.Debug("video encoded",
		"output", req.Output,
		"bytes", st.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
