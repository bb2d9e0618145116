package storage

import (
	"context"
	"testing"

	"scenegen/internal/pkg/errors"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		provider string
		field    string
	}{
		{"default is localfs", Options{LocalRoot: "/tmp/assets"}, "localfs", ""},
		{"localfs without root", Options{Provider: "localfs"}, "", "store.local_root"},
		{"http", Options{Provider: "http", BaseURL: "https://mirror.example.com"}, "http", ""},
		{"http without url", Options{Provider: "http"}, "", "store.base_url"},
		{"gdrive without credentials", Options{Provider: "gdrive"}, "", ""},
		{"unknown", Options{Provider: "s3"}, "", "store.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.opts)
			if tt.provider == "" {
				if err == nil {
					t.Fatalf("expected error, got provider %v", p.Provider())
				}
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				if tt.field != "" && errors.GetFields(err)["field"] != tt.field {
					t.Errorf("expected field %s, got %v", tt.field, errors.GetFields(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Provider() != tt.provider {
				t.Errorf("expected provider %s, got %s", tt.provider, p.Provider())
			}
		})
	}
}

func TestNewProviderGDrive(t *testing.T) {
	p, err := NewProvider(context.Background(), Options{
		Provider:           "gdrive",
		GDriveClientID:     "id",
		GDriveClientSecret: "secret",
		GDriveRefreshToken: "refresh",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Provider() != "gdrive" {
		t.Errorf("expected gdrive, got %s", p.Provider())
	}
}
