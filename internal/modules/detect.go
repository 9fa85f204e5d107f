package modules

import (
	"io/fs"
)

// Descriptor describes one module kind in one artifact.
type Descriptor struct {
	Kind        Kind   `json:"kind"`
	Present     bool   `json:"present"`
	Path        string `json:"path"`
	ContextPath string `json:"contextPath,omitempty"`
}

// WithContextPath returns a copy of d with the resolved context path set.
func (d Descriptor) WithContextPath(contextPath string) Descriptor {
	d.ContextPath = contextPath
	return d
}

// Detect reports, for every kind in deployment order, whether its marker
// resource exists in fsys. A nil or unreadable fsys reports every kind
// absent.
func Detect(fsys fs.FS) []Descriptor {
	descs := make([]Descriptor, 0, len(ValidKinds))
	for _, kind := range ValidKinds {
		descs = append(descs, Descriptor{
			Kind:    kind,
			Present: hasMarker(fsys, kind),
			Path:    kind.Path(),
		})
	}
	return descs
}

func hasMarker(fsys fs.FS, kind Kind) bool {
	if fsys == nil {
		return false
	}
	_, err := fs.Stat(fsys, kind.Marker())
	return err == nil
}

// Present returns the kinds that were detected, in deployment order.
func Present(descs []Descriptor) []Kind {
	var kinds []Kind
	for _, d := range descs {
		if d.Present {
			kinds = append(kinds, d.Kind)
		}
	}
	return kinds
}

// Has reports whether kind is present in descs.
func Has(descs []Descriptor, kind Kind) bool {
	for _, d := range descs {
		if d.Kind == kind {
			return d.Present
		}
	}
	return false
}

// IsBundle reports whether more than one server-side module shares the
// artifact. The front-end bundle always has its own path and is not counted.
func IsBundle(descs []Descriptor) bool {
	n := 0
	for _, d := range descs {
		if d.Present && d.Kind.Servlet() {
			n++
		}
	}
	return n > 1
}

// PropertiesPath returns the properties resource that names the default
// port: the Web module's when bundled or present, else Core's, else
// Portal's.
func PropertiesPath(descs []Descriptor) (string, bool) {
	switch {
	case IsBundle(descs) || Has(descs, Web):
		return WebPath + "/" + PropertiesFile, true
	case Has(descs, Core):
		return CorePath + "/" + PropertiesFile, true
	case Has(descs, Portal):
		return PortalPath + "/" + PropertiesFile, true
	}
	return "", false
}
