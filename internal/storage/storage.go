// Package storage archives generated reports on local disk or S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/awsutil"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: object not found")

// Archive stores report blobs under slash-separated keys.
type Archive interface {
	// Put stores data and returns a locator (file path or s3:// URL).
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the archive selected by cfg.Type.
func New(ctx context.Context, cfg config.ReportsConfig, awsCfg config.AWSConfig) (Archive, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocal(filepath.Join(cfg.LocalPath, cfg.S3Prefix))
	case "s3":
		client, err := awsutil.NewS3Client(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("initializing S3 archive: %w", err)
		}
		return NewAWSStorage(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown reports storage type %q", cfg.Type)
	}
}

// cleanKey rejects keys that would escape the archive root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)[1:]
	if k == "" || k != strings.TrimPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return k, nil
}

// Local writes blobs below a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	p := filepath.Join(l.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	return p, nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(k)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Discard drops everything; Get always misses.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte, string) (string, error) { return "", nil }
func (Discard) Get(context.Context, string) ([]byte, error)                 { return nil, ErrNotFound }
