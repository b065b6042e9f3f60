package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// SniffLen is how many leading bytes DetectImageType looks at.
const SniffLen = 512

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrForeignURL = errors.New("url does not belong to this store")
	ErrNotAnImage = errors.New("content is not a supported image")
)

// imageTypes are the accepted upload content types and the extension each is stored with.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs the content type from the first bytes of an upload. Only the
// types in imageTypes are accepted, whatever the client claimed.
func DetectImageType(head []byte) (contentType, ext string, err error) {
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	contentType = http.DetectContentType(head)
	ext, ok := imageTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: [%s]", ErrNotAnImage, contentType)
	}
	return contentType, ext, nil
}

func isImageExt(ext string) bool {
	for _, e := range imageTypes {
		if e == ext {
			return true
		}
	}
	return false
}

// Store keeps image bytes and hands out public URLs for them.
type Store interface {
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// ObjectKey builds the key of an uploaded UMKM image. The client filename only names the
// object; ext comes from DetectImageType. A short random suffix keeps uploads of equally
// named files apart.
func ObjectKey(umkmID, filename, ext string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "image"
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, base)
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("umkm/%s/%s-%s%s", umkmID, base, uuid.NewString()[:8], ext)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || path.Clean(key) != key {
		return fmt.Errorf("%w: [%s]", ErrInvalidKey, key)
	}
	return nil
}

func joinURL(baseURL, key string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + key
}

// keyFromURL returns the object key of a url previously returned by Put.
func keyFromURL(baseURL, url string) (string, error) {
	prefix := strings.TrimSuffix(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: [%s]", ErrForeignURL, url)
	}
	key := strings.TrimPrefix(url, prefix)
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
