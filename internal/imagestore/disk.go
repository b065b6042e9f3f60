package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const DiskFilesPathPrefix = "/files/"

var _ Store = (*DiskStore)(nil)

// DiskStore keeps images under a local root directory, served by Handler.
type DiskStore struct {
	rootPath string
	baseURL  string
}

func NewDiskStore(rootPath, baseURL string) (*DiskStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if baseURL == "" {
		return nil, errors.New("base url cannot be empty")
	}

	exists, err := pkg.PathExists(rootPath, true)
	if err != nil {
		return nil, fmt.Errorf("check images root dir: %w", err)
	}
	if !exists {
		if err := os.MkdirAll(rootPath, 0o755); err != nil {
			return nil, fmt.Errorf("create images root dir: %w", err)
		}
		log.Debugf("disk store: created images root dir [%s]", rootPath)
	}

	return &DiskStore{
		rootPath: rootPath,
		baseURL:  baseURL,
	}, nil
}

func (ds *DiskStore) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.put")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("file.key", key))
	span.SetAttributes(attribute.Int64("file.size", size))

	if err := validateKey(key); err != nil {
		return "", err
	}

	filePath := filepath.Join(ds.rootPath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filePath)
		return "", fmt.Errorf("write image file: %w", err)
	}

	log.Debugf("disk store: saved [%s], %d bytes, type [%s]", key, written, contentType)

	return joinURL(ds.baseURL, key), nil
}

// Delete removes the file behind url. A file already gone is not an error.
func (ds *DiskStore) Delete(ctx context.Context, url string) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	key, err := keyFromURL(ds.baseURL, url)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(ds.rootPath, filepath.FromSlash(key))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image file: %w", err)
	}

	log.Debugf("disk store: removed [%s]", key)
	return nil
}

// Handler serves stored images; mount it under DiskFilesPathPrefix.
// Only image extensions are served, and never as active content.
func (ds *DiskStore) Handler() http.Handler {
	fileServer := http.FileServer(noDirListingFS{http.Dir(ds.rootPath)})
	return http.StripPrefix(DiskFilesPathPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isImageExt(strings.ToLower(path.Ext(r.URL.Path))) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		w.Header().Set("Content-Disposition", "inline")
		fileServer.ServeHTTP(w, r)
	}))
}

type noDirListingFS struct {
	fs http.FileSystem
}

func (nfs noDirListingFS) Open(name string) (http.File, error) {
	f, err := nfs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
