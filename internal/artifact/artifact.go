// Package artifact opens the distributable bundle, either a zip archive or
// an unpacked directory, as a read-only fs.FS.
package artifact

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is an opened bundle.
type Artifact struct {
	// Name is the base name without extension, e.g. "shop" for shop.zip.
	Name string
	// Path is the absolute file-system location.
	Path string
	// FS exposes the bundle contents.
	FS fs.FS

	closer io.Closer
}

// Open opens the artifact at path. An empty path means the running
// executable, which may carry the bundle as an appended zip archive.
func Open(path string) (*Artifact, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	a := &Artifact{Name: BaseName(abs), Path: abs}
	if info.IsDir() {
		a.FS = os.DirFS(abs)
		return a, nil
	}

	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s as zip archive: %w", abs, err)
	}
	a.FS = zr
	a.closer = zr
	return a, nil
}

// New wraps an existing file system, e.g. an in-memory test bundle.
func New(name string, fsys fs.FS) *Artifact {
	return &Artifact{Name: name, FS: fsys}
}

// BaseName strips directories and the final extension from path.
func BaseName(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile reads a resource, returning fs.ErrNotExist when a is nil.
func (a *Artifact) ReadFile(name string) ([]byte, error) {
	if a == nil || a.FS == nil {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(a.FS, name)
}

// Exists reports whether name is present.
func (a *Artifact) Exists(name string) bool {
	if a == nil || a.FS == nil {
		return false
	}
	_, err := fs.Stat(a.FS, name)
	return err == nil
}

// FileSystem returns the contents, or nil for a nil artifact.
func (a *Artifact) FileSystem() fs.FS {
	if a == nil {
		return nil
	}
	return a.FS
}

// Close releases the underlying archive.
func (a *Artifact) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	if errors.Is(err, fs.ErrClosed) {
		return nil
	}
	return err
}
