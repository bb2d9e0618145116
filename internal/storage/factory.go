// Package storage builds the asset store the resolver fetches object files
// from, selected by configuration.
package storage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"scenegen/internal/adapters/storage/gdrive"
	"scenegen/internal/adapters/storage/httpstore"
	"scenegen/internal/adapters/storage/localfs"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/ports"
)

// Provider is the store contract, named here so callers need not import ports.
type Provider = ports.StorageProvider

// Options selects and configures the asset store.
type Options struct {
	// Provider is one of localfs, http, gdrive. Empty means localfs.
	Provider  string `yaml:"provider"`
	LocalRoot string `yaml:"local_root"`
	BaseURL   string `yaml:"base_url"`

	GDriveClientID     string `yaml:"gdrive_client_id"`
	GDriveClientSecret string `yaml:"gdrive_client_secret"`
	GDriveRefreshToken string `yaml:"gdrive_refresh_token"`
	GDriveFolderID     string `yaml:"gdrive_folder_id"`
}

// NewProvider builds the configured asset store.
func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "localfs":
		if opts.LocalRoot == "" {
			return nil, errors.ValidationField("store.local_root", "localfs store needs a root directory")
		}
		return localfs.New(opts.LocalRoot), nil

	case "http", "https":
		if opts.BaseURL == "" {
			return nil, errors.ValidationField("store.base_url", "http store needs a base url")
		}
		s, err := httpstore.New(opts.BaseURL, nil)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "storage.http", "invalid store.base_url")
		}
		return s, nil

	case "gdrive":
		return newGDriveProvider(ctx, opts)

	default:
		return nil, errors.ValidationField("store.provider", fmt.Sprintf("unknown storage provider: %s", opts.Provider))
	}
}

func newGDriveProvider(ctx context.Context, opts Options) (Provider, error) {
	conf, err := opts.DriveOAuthConfig("")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.GDriveRefreshToken) == "" {
		return nil, errors.ValidationField("store.gdrive_refresh_token", "gdrive store needs store.gdrive_refresh_token")
	}

	tok := &oauth2.Token{RefreshToken: opts.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, opts.GDriveFolderID), nil
}
