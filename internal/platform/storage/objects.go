// Package storage wraps Cloud Storage for avatar uploads and dataset reads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const publicHost = "https://storage.googleapis.com"

// ErrObjectNotFound is returned when a read targets a missing object.
var ErrObjectNotFound = errors.New("storage: object not found")

// Objects reads and writes whole objects.
type Objects interface {
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCS implements Objects with a Cloud Storage client.
type GCS struct {
	client *gcs.Client
}

// NewGCS wraps client.
func NewGCS(client *gcs.Client) (*GCS, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalize %s/%s: %w", bucket, object, err)
	}
	return nil
}

func (g *GCS) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, object)
		}
		return nil, fmt.Errorf("storage: open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ParseURI splits gs://bucket/object.
func ParseURI(uri string) (bucket, object string, err error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", "", fmt.Errorf("storage: invalid uri %q: %w", uri, err)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "gs" || u.Host == "" || object == "" {
		return "", "", fmt.Errorf("storage: %q is not a gs://bucket/object uri", uri)
	}
	return u.Host, object, nil
}

// PublicURL is the HTTPS URL of an object in a publicly readable bucket.
func PublicURL(bucket, object string) string {
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return publicHost + "/" + bucket + "/" + strings.Join(segments, "/")
}
