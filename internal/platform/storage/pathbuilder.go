package storage

import (
	"fmt"
	"strings"
)

// Purpose selects the object layout inside the media bucket.
type Purpose string

const (
	PurposeAvatar    Purpose = "avatar"
	PurposeScanImage Purpose = "scan"
)

// PathParams identify the object being written.
type PathParams struct {
	UserID   string
	UploadID string
	FileName string
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

// BuildObjectPath returns the object key for purpose.
//
//	avatar: avatars/{userID}/{uploadID}/{fileName}
//	scan:   scans/{userID}/{uploadID}/{fileName}
func BuildObjectPath(purpose Purpose, params PathParams) (string, error) {
	var prefix string
	switch purpose {
	case PurposeAvatar:
		prefix = "avatars"
	case PurposeScanImage:
		prefix = "scans"
	default:
		return "", fmt.Errorf("storage: unsupported purpose %q", purpose)
	}
	userID, err := validateSegment("userID", params.UserID)
	if err != nil {
		return "", err
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{prefix, userID, uploadID, fileName}, "/"), nil
}

// FileNameFor derives a stable file name from a content type, e.g. "original.png".
func FileNameFor(contentType string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
	if ext, ok := extensions[strings.TrimSpace(base)]; ok {
		return "original" + ext
	}
	return "original"
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
