package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

// ErrNoCredentials is returned when no source yields a key.
var ErrNoCredentials = errors.New("no service account credentials configured")

// Source yields raw key bytes. A source with nothing configured returns
// (nil, nil) so the next source is tried.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
}

// Bytes is a key supplied in memory, typically an upload.
type Bytes []byte

func (b Bytes) Name() string                             { return "upload" }
func (b Bytes) Load(ctx context.Context) ([]byte, error) { return b, nil }

// File reads a key from disk.
type File string

func (f File) Name() string { return "file" }

func (f File) Load(ctx context.Context) ([]byte, error) {
	if f == "" {
		return nil, nil
	}
	fh, err := os.Open(string(f))
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer fh.Close()
	return readLimited(fh)
}

// Env holds a key taken from an environment variable.
type Env string

func (e Env) Name() string                             { return "env" }
func (e Env) Load(ctx context.Context) ([]byte, error) { return []byte(e), nil }

// S3GetObjectAPI is the slice of the S3 client the secret store needs.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Object reads a key stored as an S3 object.
type S3Object struct {
	Client S3GetObjectAPI
	Bucket string
	Key    string
}

func (s S3Object) Name() string { return "s3" }

func (s S3Object) Load(ctx context.Context) ([]byte, error) {
	if s.Client == nil || s.Bucket == "" || s.Key == "" {
		return nil, nil
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	defer out.Body.Close()
	return readLimited(out.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxKeySize+1))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Resolve parses the key from the first source that yields one. A source
// that yields an invalid key stops the search; it does not fall through.
func Resolve(ctx context.Context, sources ...Source) (*ServiceAccount, error) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		data, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s credentials: %w", src.Name(), err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		sa, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s credentials: %w", src.Name(), err)
		}
		logger.Debug("credentials resolved", "source", src.Name(), "client_email", sa.ClientEmail)
		return sa, nil
	}
	return nil, ErrNoCredentials
}
