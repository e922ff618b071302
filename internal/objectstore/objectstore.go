// Package objectstore persists screenshot bytes and returns references to them.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// Store writes objects and returns a reference usable by downstream readers.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Key builds the object key for one screenshot of a page in a run.
func Key(runID, pageURL, variant string) string {
	sum := sha1.Sum([]byte(pageURL)) //nolint:gosec
	return fmt.Sprintf("runs/%s/%s-%s.png", runID, hex.EncodeToString(sum[:])[:12], variant)
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket string
	Region string
	Prefix string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
}

// S3Store writes objects to an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store loads the default AWS credential chain and creates an S3Store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("objectstore: s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, eris.Wrap(err, "objectstore: load aws config")
	}
	return NewS3StoreFromConfig(awsCfg, cfg), nil
}

// NewS3StoreFromConfig creates an S3Store from an existing aws.Config.
func NewS3StoreFromConfig(awsCfg aws.Config, cfg S3Config) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
}

// Put uploads data and returns an s3:// reference.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", eris.Wrapf(err, "objectstore: put s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// FSStore writes objects under a local directory.
type FSStore struct {
	root string
}

// NewFSStore creates an FSStore rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "objectstore: resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, eris.Wrapf(err, "objectstore: create %s", abs)
	}
	return &FSStore{root: abs}, nil
}

// Put writes data to root/key and returns a file:// reference.
func (f *FSStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "objectstore: put")
	}
	clean := filepath.Clean("/" + key)
	path := filepath.Join(f.root, clean)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "objectstore: mkdir for %s", key)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // screenshots are not secret
		return "", eris.Wrapf(err, "objectstore: write %s", key)
	}
	return "file://" + filepath.ToSlash(path), nil
}
