package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the S3-compatible storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store is an S3-compatible blob store backed by MinIO. Refs are object
// paths within a single bucket; callers treat them as opaque.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the MinIO server and creates the bucket if it is missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads src under subdir and returns the object ref.
func (s *Store) Put(ctx context.Context, subdir, filename string, src io.Reader) (string, error) {
	ref := path.Join(subdir, filename)
	_, err := s.client.PutObject(ctx, s.bucket, ref, src, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("storage: put %q: %w", ref, err)
	}
	return ref, nil
}

// Get returns a reader over the object's bytes.
func (s *Store) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get %q: %w", ref, err)
	}
	return obj, nil
}

// Healthy reports whether the bucket is reachable.
func (s *Store) Healthy(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
