// Package httpstore reads object files from a plain HTTP(S) mirror, such as
// a public Objaverse bucket, by joining the object key onto a base URL.
package httpstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scenegen/internal/ports"
)

// Store implements ports.StorageProvider over HTTP GET.
type Store struct {
	base   *url.URL
	client *http.Client
}

// New parses baseURL. A nil client gets one with a 5 minute timeout.
func New(baseURL string, client *http.Client) (*Store, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Store{base: u, client: client}, nil
}

func (s *Store) Provider() string { return "http" }

// URL returns the address an object key is fetched from.
func (s *Store) URL(objectKey string) string {
	return s.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(objectKey, "/")}).String()
}

func (s *Store) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, ports.ObjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(objectKey), nil)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ports.ObjectInfo{}, fmt.Errorf("http get %s: %w", objectKey, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s", ports.ErrObjectNotFound, objectKey)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, ports.ObjectInfo{}, fmt.Errorf("http get %s: status %d", objectKey, resp.StatusCode)
	}

	return resp.Body, ports.ObjectInfo{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}
