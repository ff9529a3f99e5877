package firestoremetrics

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const monitoringReadScope = "https://www.googleapis.com/auth/monitoring.read"

// TokenProvider yields a bearer token for the Monitoring API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider wraps a pre-acquired bearer token.
type StaticTokenProvider string

func (t StaticTokenProvider) Token(context.Context) (string, error) {
	return string(t), nil
}

// googleTokenProvider mints tokens from a service account key and memoizes
// the last one until it expires or Refresh drops it. Single-threaded access
// assumed; there is no locking.
type googleTokenProvider struct {
	credsJSON []byte
	projectID string
	cached    *oauth2.Token
}

func newGoogleTokenProvider(ctx context.Context, credsJSON []byte) (*googleTokenProvider, error) {
	creds, err := google.CredentialsFromJSON(ctx, credsJSON, monitoringReadScope)
	if err != nil {
		return nil, errors.Wrap(err, "load service account credentials")
	}
	return &googleTokenProvider{credsJSON: credsJSON, projectID: creds.ProjectID}, nil
}

func newGoogleTokenProviderFromFile(ctx context.Context, path string) (*googleTokenProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials file %s", path)
	}
	return newGoogleTokenProvider(ctx, data)
}

func (p *googleTokenProvider) Token(ctx context.Context) (string, error) {
	if p.cached != nil && p.cached.Valid() {
		return p.cached.AccessToken, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, p.credsJSON, monitoringReadScope)
	if err != nil {
		return "", errors.Wrap(err, "load service account credentials")
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return "", errors.Wrap(err, "acquire access token")
	}
	p.cached = tok
	return tok.AccessToken, nil
}

// Refresh drops the memoized token so the next Token call mints a new one.
func (p *googleTokenProvider) Refresh() {
	p.cached = nil
}
