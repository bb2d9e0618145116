package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"scenegen/internal/ports"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	srv, err := drive.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}
	return NewClient(srv, "folder-1")
}

func TestGetObjectByName(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files":
			gotQuery = r.URL.Query().Get("q")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]string{{"id": "file-42", "name": "abc.glb"}},
			})
		case r.URL.Path == "/files/file-42" && r.URL.Query().Get("alt") == "media":
			w.Header().Set("Content-Type", "model/gltf-binary")
			io.WriteString(w, "glTF-bytes")
		default:
			http.NotFound(w, r)
		}
	}))

	rc, info, err := client.GetObject(context.Background(), "glbs/abc.glb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	body, _ := io.ReadAll(rc)
	if string(body) != "glTF-bytes" {
		t.Errorf("unexpected body %q", body)
	}
	if info.ContentType != "model/gltf-binary" {
		t.Errorf("unexpected content type %q", info.ContentType)
	}
	if !strings.Contains(gotQuery, "name = 'abc.glb'") || !strings.Contains(gotQuery, "'folder-1' in parents") {
		t.Errorf("unexpected drive query %q", gotQuery)
	}
}

func TestGetObjectMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"files":[]}`)
	}))

	_, _, err := client.GetObject(context.Background(), "glbs/missing.glb")
	if !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestGetObjectByID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/raw-id" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "data")
	}))

	rc, _, err := client.GetObject(context.Background(), "id:raw-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc.Close()
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc.glb", "abc.glb"},
		{"it's.glb", `it\'s.glb`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := escapeQuery(tt.in); got != tt.want {
				t.Errorf("escapeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
