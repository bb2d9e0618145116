package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"scenegen/internal/pkg/errors"
)

// DriveOAuthConfig returns the read-only Drive OAuth client described by the
// gdrive_* options. redirectURL may be empty when no consent flow runs.
func (o Options) DriveOAuthConfig(redirectURL string) (*oauth2.Config, error) {
	if strings.TrimSpace(o.GDriveClientID) == "" {
		return nil, errors.ValidationField("store.gdrive_client_id", "gdrive store needs store.gdrive_client_id")
	}
	if strings.TrimSpace(o.GDriveClientSecret) == "" {
		return nil, errors.ValidationField("store.gdrive_client_secret", "gdrive store needs store.gdrive_client_secret")
	}
	return &oauth2.Config{
		ClientID:     o.GDriveClientID,
		ClientSecret: o.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveReadonlyScope},
		RedirectURL:  redirectURL,
	}, nil
}

type consentResult struct {
	code string
	err  error
}

// Consent is a single OAuth consent round trip that yields a Drive refresh
// token. It serves the redirect callback itself.
type Consent struct {
	conf   *oauth2.Config
	state  string
	result chan consentResult
}

func NewConsent(opts Options, redirectURL string) (*Consent, error) {
	conf, err := opts.DriveOAuthConfig(redirectURL)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "storage.consent", "generate state")
	}
	return &Consent{
		conf:   conf,
		state:  base64.RawURLEncoding.EncodeToString(b),
		result: make(chan consentResult, 1),
	}, nil
}

// URL is the page the user opens. prompt=consent with offline access makes
// Google issue a refresh token even for a previously authorized app.
func (c *Consent) URL() string {
	return c.conf.AuthCodeURL(c.state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ServeHTTP handles the redirect. Only the first callback is delivered.
func (c *Consent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var res consentResult
	switch {
	case q.Get("state") != c.state:
		res.err = errors.Validation("invalid state")
	case q.Get("error") != "":
		res.err = errors.Newf(errors.CodeBadRequest, "auth error: %s", q.Get("error"))
	case q.Get("code") == "":
		res.err = errors.Validation("missing code")
	default:
		res.code = q.Get("code")
	}

	if res.err != nil {
		http.Error(w, res.err.Error(), http.StatusBadRequest)
	} else {
		w.Write([]byte("Authorized. You can close this window and return to the terminal.\n"))
	}
	select {
	case c.result <- res:
	default:
	}
}

// Wait blocks until the callback has fired or ctx is done, then exchanges
// the code and returns the refresh token.
func (c *Consent) Wait(ctx context.Context) (string, error) {
	var res consentResult
	select {
	case res = <-c.result:
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "storage.consent", "timed out waiting for authorization")
	}
	if res.err != nil {
		return "", res.err
	}

	tok, err := c.conf.Exchange(ctx, res.code)
	if err != nil {
		return "", errors.Wrap(err, "storage.consent", "token exchange")
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return "", errors.New(errors.CodeConflict, "no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")
	}
	return tok.RefreshToken, nil
}
