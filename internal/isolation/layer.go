// Package isolation builds the layered lookup hierarchy that keeps modules
// apart: one base layer over the host's own resources, exactly one shared
// layer over the common libraries, and one private layer per module whose
// parent is always the shared layer.
//
// A layer resolves a name against its own entries first, in order, and only
// then asks its parent. A module therefore sees its own copy of a resource
// before the shared copy, while everything it does not carry itself comes
// from the single shared layer.
package isolation

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

//go:embed host
var hostResources embed.FS

// Layer is one level of the lookup hierarchy. It implements fs.FS and is
// read-only once built.
type Layer struct {
	name    string
	parent  *Layer // not owned
	entries []Entry
	role    role
}

type role int

const (
	roleBase role = iota
	roleShared
	roleModule
)

// Entry is one library entry: a classes directory or an opened archive.
type Entry struct {
	Name string
	FS   fs.FS

	closer io.Closer
}

// Origin says where a name was resolved.
type Origin struct {
	Layer string `json:"layer"`
	Entry string `json:"entry"`
}

// ErrNotShared is returned when a module layer is parented on anything but
// the shared layer.
var ErrNotShared = errors.New("module layers must be parented on the shared layer")

// HostResources returns the resources embedded in the host binary.
func HostResources() fs.FS {
	sub, err := fs.Sub(hostResources, "host")
	if err != nil {
		panic(err)
	}
	return sub
}

// Base returns the root layer over the host's own resources. fsys may be
// nil for an empty base.
func Base(fsys fs.FS) *Layer {
	l := &Layer{name: "Base", role: roleBase}
	if fsys != nil {
		l.entries = []Entry{{Name: "host", FS: fsys}}
	}
	return l
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Parent returns the parent layer, nil for the base layer.
func (l *Layer) Parent() *Layer { return l.parent }

// IsShared reports whether l is the shared layer.
func (l *Layer) IsShared() bool { return l.role == roleShared }

// EntryNames lists the layer's own entries in lookup order.
func (l *Layer) EntryNames() []string {
	names := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		names = append(names, e.Name)
	}
	return names
}

// Chain returns the layer names from l up to the base layer.
func (l *Layer) Chain() []string {
	var chain []string
	for cur := l; cur != nil; cur = cur.parent {
		chain = append(chain, cur.name)
	}
	return chain
}

// Open implements fs.FS.
func (l *Layer) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	var firstErr error
	for cur := l; cur != nil; cur = cur.parent {
		for _, e := range cur.entries {
			f, err := e.FS.Open(name)
			if err == nil {
				return f, nil
			}
			if !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Resolve reports which layer and entry would serve name.
func (l *Layer) Resolve(name string) (Origin, error) {
	if !fs.ValidPath(name) {
		return Origin{}, &fs.PathError{Op: "resolve", Path: name, Err: fs.ErrInvalid}
	}
	for cur := l; cur != nil; cur = cur.parent {
		for _, e := range cur.entries {
			if _, err := fs.Stat(e.FS, name); err == nil {
				return Origin{Layer: cur.name, Entry: e.Name}, nil
			}
		}
	}
	return Origin{}, &fs.PathError{Op: "resolve", Path: name, Err: fs.ErrNotExist}
}

// Close releases the archive files held by the layer's own entries. The
// parent is not closed. Lookups through l only reach the parent afterwards.
func (l *Layer) Close() error {
	if l == nil {
		return nil
	}
	err := closeEntries(l.entries)
	l.entries = nil
	return err
}

func closeEntries(entries []Entry) error {
	var errs []error
	for _, e := range entries {
		if e.closer != nil {
			errs = append(errs, e.closer.Close())
		}
	}
	return errors.Join(errs...)
}

func (l *Layer) String() string {
	return fmt.Sprintf("%s%v", l.name, l.EntryNames())
}
