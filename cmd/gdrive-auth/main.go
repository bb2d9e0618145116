// gdrive-auth runs the OAuth consent flow once and prints the refresh token
// for store.gdrive_refresh_token. Client credentials come from the same
// config file and environment the generator reads. The token only grants
// read access to Drive.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"scenegen/internal/config"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/storage"
)

const consentTimeout = 3 * time.Minute

func main() {
	log := logger.NewDefault().WithComponent("gdrive-auth")

	cfg, err := config.Load(config.Env("SCENEGEN_CONFIG", ""))
	if err != nil {
		log.LogFatal("failed to load config", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), consentTimeout)
	defer cancel()

	token, err := authorize(ctx, cfg.Store, log)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}
	fmt.Fprintln(os.Stdout, token)
}

func authorize(ctx context.Context, opts storage.Options, log *logger.Logger) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "gdrive-auth", "listen for callback")
	}
	redirect := fmt.Sprintf("http://%s/callback", ln.Addr())

	consent, err := storage.NewConsent(opts, redirect)
	if err != nil {
		ln.Close()
		return "", err
	}

	r := chi.NewRouter()
	r.Get("/callback", consent.ServeHTTP)
	srv := &http.Server{Handler: r, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n\n%s\n\n", consent.URL())
	log.Info("waiting for authorization", "redirect", redirect, "timeout", consentTimeout.String())

	return consent.Wait(ctx)
}
