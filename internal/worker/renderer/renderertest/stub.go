// Package renderertest provides a scripted stand-in for the renderer binary.
package renderertest

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Mode selects how the stub behaves.
type Mode string

const (
	ModeOK       Mode = "ok"
	ModeSleep    Mode = "sleep"
	ModeCrash    Mode = "crash"
	ModeNoMarker Mode = "nomarker"
	ModeShort    Mode = "short"
	ModeGap      Mode = "gap"
	ModeGarbage  Mode = "garbage"
)

// The script reads frame_count from scene.json, copies $STUB_PNG once per
// frame and prints the success marker. Each invocation appends one line to
// $STUB_LOG when set.
const script = `#!/bin/sh
scene=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --scene) scene="$2"; shift 2 ;;
    --output_dir) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
[ -n "$STUB_LOG" ] && echo "$SCENEGEN_SAMPLE_ID" >> "$STUB_LOG"
echo "stub renderer starting" >&2
case "$STUB_MODE" in
  sleep) sleep 30 ;;
  crash) echo "segfault in stub" >&2; exit 3 ;;
esac
n=$(grep -o '"frame_count": *[0-9]*' "$scene" | grep -o '[0-9]*$')
[ "$STUB_MODE" = "short" ] && n=$((n - 1))
i=0
while [ "$i" -lt "$n" ]; do
  cp "$STUB_PNG" "$out/$(printf 'frame_%05d.png' "$i")"
  i=$((i + 1))
done
if [ "$STUB_MODE" = "gap" ]; then
  rm "$out/frame_00001.png"
  cp "$STUB_PNG" "$out/frame_99999.png"
fi
[ "$STUB_MODE" = "garbage" ] && echo "not a png" > "$out/frame_00000.png"
[ "$STUB_MODE" = "nomarker" ] && exit 0
echo "RENDER_SUCCESS"
`

// Stub writes the stub renderer into a temp dir and returns its path.
func Stub(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-renderer.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub renderer: %v", err)
	}
	return path
}

// Env builds the extra environment for a stub invocation. log may be empty.
func Env(mode Mode, pngPath, log string) []string {
	env := []string{"STUB_MODE=" + string(mode), "STUB_PNG=" + pngPath}
	if log != "" {
		env = append(env, "STUB_LOG="+log)
	}
	return env
}

// WritePNG writes a size×size PNG into a temp dir and returns its path.
func WritePNG(t testing.TB, size int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}
