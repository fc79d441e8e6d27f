// Package media stores request photos and returns the public URLs saved on
// service requests.
//
// Objects are content addressed: the key is requests/<sha256>.<ext>, so
// uploading the same bytes twice yields the same URL and deleting a URL
// removes exactly one object.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"mime"
	"strings"
)

// Store uploads and deletes media objects.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, url string) error
}

var (
	// ErrUnsupportedType is returned for content types other than image/*.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTooLarge is returned when data exceeds the configured size cap.
	ErrTooLarge = errors.New("media too large")
	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("media is empty")
	// ErrForeignURL is returned by Delete for URLs this store did not issue.
	ErrForeignURL = errors.New("url not owned by this store")
)

const keyPrefix = "requests/"

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
	"image/heic": "heic",
}

// Key validates an upload and derives its object key.
func Key(data []byte, contentType string, maxBytes int64) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "", ErrUnsupportedType
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", ErrTooLarge
	}
	ext, ok := extensions[mt]
	if !ok {
		ext = strings.TrimPrefix(mt, "image/")
		if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
			ext = strings.TrimPrefix(exts[0], ".")
		}
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]) + "." + ext, nil
}

// keyFromURL strips base from url and returns the object key.
func keyFromURL(base, url string) (string, error) {
	key, ok := strings.CutPrefix(url, base+"/")
	if !ok || !strings.HasPrefix(key, keyPrefix) || strings.Contains(key, "..") {
		return "", ErrForeignURL
	}
	return key, nil
}
