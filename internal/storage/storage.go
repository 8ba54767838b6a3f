// Package storage holds uploaded objects such as avatars behind a small
// bucket-like interface. Disk is the only backend; it writes under a root
// directory and serves the files over HTTP.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sakif/opsdash/internal/apperror"
)

// UploadOptions control how an object is written.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	// Upsert replaces an existing object. Without it an existing path is
	// an ErrConflict.
	Upsert bool
}

// ObjectStore is a flat namespace of slash-separated object paths.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, body io.Reader, opts UploadOptions) error
	// Remove deletes the given paths. Missing objects are not an error.
	Remove(ctx context.Context, objectPaths ...string) error
	PublicURL(objectPath string) string
}

var _ ObjectStore = (*Disk)(nil)

// Disk stores objects as files below root.
type Disk struct {
	root    string
	baseURL string
}

// NewDisk creates root if needed. baseURL is what PublicURL prefixes,
// e.g. "http://localhost:8080/storage".
func NewDisk(root, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %s: %w", root, err)
	}
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// resolve maps an object path onto the filesystem, refusing anything that
// would escape root.
func (d *Disk) resolve(objectPath string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(objectPath, "/"))
	if objectPath == "" || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", apperror.ValidationFailed("path", fmt.Sprintf("invalid object path %q", objectPath))
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// Upload writes to a temp file in the target directory and renames it
// into place, so readers never see a partial object.
func (d *Disk) Upload(ctx context.Context, objectPath string, body io.Reader, opts UploadOptions) error {
	dst, err := d.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !opts.Upsert {
		if _, err := os.Stat(dst); err == nil {
			return apperror.Conflict("object", objectPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: creating directory for %s: %w", objectPath, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: writing %s: %w", objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: closing %s: %w", objectPath, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storage: moving %s into place: %w", objectPath, err)
	}
	return nil
}

func (d *Disk) Remove(ctx context.Context, objectPaths ...string) error {
	var errs []error
	for _, p := range objectPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := d.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("storage: removing %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Disk) PublicURL(objectPath string) string {
	return d.baseURL + "/" + strings.TrimPrefix(objectPath, "/")
}

// Handler serves stored objects read-only. Mount it under the path prefix
// of baseURL with the prefix stripped.
func (d *Disk) Handler() http.Handler {
	fileServer := http.FileServer(http.Dir(d.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No directory listings.
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
