package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"scenegen/internal/ports"
)

// Client implements ports.StorageProvider over a Google Drive folder holding
// the object files. An object key is matched against the file name, using
// its last path element (glbs/abc.glb looks up "abc.glb"); a key of the form
// "id:<fileId>" downloads that file directly.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, ports.ObjectInfo, error) {
	fileID, err := c.lookup(ctx, objectKey)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	resp, err := c.srv.Files.Get(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusNotFound {
			return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s", ports.ErrObjectNotFound, objectKey)
		}
		return nil, ports.ObjectInfo{}, fmt.Errorf("gdrive download %s: %w", objectKey, err)
	}

	return resp.Body, ports.ObjectInfo{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func (c *Client) lookup(ctx context.Context, objectKey string) (string, error) {
	if id, ok := strings.CutPrefix(objectKey, "id:"); ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(path.Base(objectKey)))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(c.folderID))
	}

	list, err := c.srv.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(2).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive lookup %s: %w", objectKey, err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("%w: %s", ports.ErrObjectNotFound, objectKey)
	}
	return list.Files[0].Id, nil
}

// escapeQuery escapes a value for a Drive search query string literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
