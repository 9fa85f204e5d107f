package isolation

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/sirosfoundation/go-bundle-host/internal/modules"
)

// BuildShared builds the shared layer from the common libraries under
// modules.SharedPath. A missing directory gives an empty shared layer; an
// unreadable archive is an error.
func BuildShared(artifactFS fs.FS, base *Layer) (*Layer, error) {
	if base == nil {
		base = Base(nil)
	}
	l := &Layer{name: "Shared", parent: base, role: roleShared}
	if artifactFS == nil {
		return l, nil
	}

	archives, err := openArchives(artifactFS, modules.SharedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build shared layer: %w", err)
	}
	l.entries = archives
	return l, nil
}

// BuildModule builds the private layer of one module from its classes
// directory and its library archives. The parent must be the shared layer.
func BuildModule(kind modules.Kind, artifactFS fs.FS, modulePath string, shared *Layer) (*Layer, error) {
	if shared == nil || !shared.IsShared() {
		return nil, ErrNotShared
	}
	if artifactFS == nil {
		return nil, fmt.Errorf("failed to build %s layer: no artifact", kind.Title())
	}

	l := &Layer{name: kind.Title(), parent: shared, role: roleModule}

	classes := path.Join(modulePath, modules.ClassesDir)
	if info, err := fs.Stat(artifactFS, classes); err == nil && info.IsDir() {
		sub, err := fs.Sub(artifactFS, classes)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s layer: %w", kind.Title(), err)
		}
		l.entries = append(l.entries, Entry{Name: classes, FS: sub})
	}

	archives, err := openArchives(artifactFS, path.Join(modulePath, modules.LibDir))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s layer: %w", kind.Title(), err)
	}
	l.entries = append(l.entries, archives...)
	return l, nil
}

// openArchives opens every *.jar and *.zip in dir, sorted by name.
func openArchives(artifactFS fs.FS, dir string) ([]Entry, error) {
	dirEntries, err := fs.ReadDir(artifactFS, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() || !isArchive(de.Name()) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		e, err := openArchive(artifactFS, path.Join(dir, name))
		if err != nil {
			closeEntries(entries)
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// openArchive reads the archive's central directory in place when the file
// supports random access (an unpacked artifact on disk) and keeps the file
// open until the layer is closed. Archives nested in a zipped artifact are
// read into memory.
func openArchive(artifactFS fs.FS, p string) (Entry, error) {
	f, err := artifactFS.Open(p)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s: %w", p, err)
	}

	if ra, ok := f.(io.ReaderAt); ok {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return Entry{}, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		zr, err := zip.NewReader(ra, info.Size())
		if err != nil {
			_ = f.Close()
			return Entry{}, fmt.Errorf("failed to open %s: %w", p, err)
		}
		return Entry{Name: p, FS: zr, closer: f}, nil
	}

	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s: %w", p, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return Entry{Name: p, FS: zr}, nil
}

func isArchive(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".jar" || ext == ".zip"
}
