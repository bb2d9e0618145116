package resolver

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const glbHeaderSize = 12

// Verify runs the integrity check that matches path's extension.
func Verify(path string) error {
	return VerifyFormat(path, filepath.Ext(path))
}

// VerifyFormat checks path as a file of the given extension:
//   - .glb: "glTF" magic, container version 2, declared length == file size
//   - .gltf: JSON document with an "asset" object
//   - .obj: at least one vertex ("v ") line
//
// Any other extension only has to be non-empty.
func VerifyFormat(path, ext string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() == 0 {
		return fmt.Errorf("empty file")
	}

	switch strings.ToLower(ext) {
	case ".glb":
		return verifyGLB(f, st.Size())
	case ".gltf":
		return verifyGLTF(f)
	case ".obj":
		return verifyOBJ(f)
	default:
		return nil
	}
}

func verifyGLB(r io.Reader, size int64) error {
	var hdr [glbHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("short glb header: %w", err)
	}
	if !bytes.Equal(hdr[0:4], []byte("glTF")) {
		return fmt.Errorf("bad glb magic %q", hdr[0:4])
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != 2 {
		return fmt.Errorf("unsupported glb version %d", v)
	}
	if n := binary.LittleEndian.Uint32(hdr[8:12]); int64(n) != size {
		return fmt.Errorf("glb declares %d bytes, file has %d", n, size)
	}
	return nil
}

func verifyGLTF(r io.Reader) error {
	var doc struct {
		Asset *struct {
			Version string `json:"version"`
		} `json:"asset"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("gltf is not valid json: %w", err)
	}
	if doc.Asset == nil {
		return fmt.Errorf("gltf has no asset object")
	}
	return nil
}

func verifyOBJ(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimLeft(sc.Text(), " \t"), "v ") {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("obj has no vertices")
}
