// Package credentials parses and loads Google service account keys.
//
// Keys are parsed as plain JSON into a fixed set of fields. Unknown fields,
// trailing data and anything that is not a service account are rejected, and
// the private key must be a PEM-encoded RSA key. Nothing in an uploaded key
// is ever evaluated.
package credentials

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrInvalidCredentials marks a key that failed strict parsing or validation.
var ErrInvalidCredentials = errors.New("invalid service account credentials")

// MaxKeySize bounds the accepted key document.
const MaxKeySize = 64 << 10

// ServiceAccount is a parsed service account key.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain"`
}

// Parse strictly decodes a service account key.
func Parse(data []byte) (*ServiceAccount, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidCredentials)
	}
	if len(data) > MaxKeySize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrInvalidCredentials, MaxKeySize)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var sa ServiceAccount
	if err := dec.Decode(&sa); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after key document", ErrInvalidCredentials)
	}
	if err := sa.validate(); err != nil {
		return nil, err
	}
	return &sa, nil
}

func (sa *ServiceAccount) validate() error {
	if sa.Type != "service_account" {
		return fmt.Errorf("%w: type must be service_account, got %q", ErrInvalidCredentials, sa.Type)
	}
	if sa.ClientEmail == "" {
		return fmt.Errorf("%w: client_email is required", ErrInvalidCredentials)
	}
	if sa.PrivateKey == "" {
		return fmt.Errorf("%w: private_key is required", ErrInvalidCredentials)
	}
	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return fmt.Errorf("%w: private_key is not PEM encoded", ErrInvalidCredentials)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if _, ok := key.(*rsa.PrivateKey); !ok {
			return fmt.Errorf("%w: private_key is not an RSA key", ErrInvalidCredentials)
		}
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return fmt.Errorf("%w: private_key cannot be parsed", ErrInvalidCredentials)
	}
	return nil
}

// String never includes key material.
func (sa *ServiceAccount) String() string {
	return fmt.Sprintf("service_account(%s, project=%s, key_id=%s)", sa.ClientEmail, sa.ProjectID, sa.PrivateKeyID)
}

// JSON re-encodes the validated fields. Only these bytes are handed to the
// token library, never the raw upload.
func (sa *ServiceAccount) JSON() []byte {
	data, _ := json.Marshal(sa)
	return data
}

// TokenSource returns a JWT-bearer token source for the given scopes.
func (sa *ServiceAccount) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(sa.JSON(), scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return cfg.TokenSource(ctx), nil
}

// HTTPClient returns a client that authorizes every request with a fresh
// access token. base, when non-nil, carries the token requests and is the
// transport underneath the authorizing one.
func (sa *ServiceAccount) HTTPClient(ctx context.Context, base *http.Client, scopes ...string) (*http.Client, error) {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	ts, err := sa.TokenSource(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, ts)
	if base != nil {
		client.Timeout = base.Timeout
	}
	return client, nil
}
