package storage

import (
	"context"
	"errors"
	"strings"
)

// Upload describes one image to persist.
type Upload struct {
	Purpose     Purpose
	UserID      string
	UploadID    string
	ContentType string
	Data        []byte
}

// Uploader writes media into a single bucket and returns public URLs.
type Uploader struct {
	objects Objects
	bucket  string
}

// NewUploader binds objects to bucket.
func NewUploader(objects Objects, bucket string) (*Uploader, error) {
	bucket = strings.TrimSpace(bucket)
	if objects == nil {
		return nil, errors.New("storage uploader: objects is required")
	}
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	return &Uploader{objects: objects, bucket: bucket}, nil
}

// Put stores upload and returns its public URL.
func (u *Uploader) Put(ctx context.Context, upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", errors.New("storage uploader: empty payload")
	}
	object, err := BuildObjectPath(upload.Purpose, PathParams{
		UserID:   upload.UserID,
		UploadID: upload.UploadID,
		FileName: FileNameFor(upload.ContentType),
	})
	if err != nil {
		return "", err
	}
	if err := u.objects.Write(ctx, u.bucket, object, upload.ContentType, upload.Data); err != nil {
		return "", err
	}
	return PublicURL(u.bucket, object), nil
}
