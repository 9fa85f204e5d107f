// Package modules knows the four module kinds an artifact may bundle, where
// each one lives inside the artifact and how to tell whether it is there.
package modules

import (
	"fmt"
)

// Kind is one of the fixed module kinds.
type Kind string

const (
	Core   Kind = "core"
	Web    Kind = "web"
	Portal Kind = "portal"
	Front  Kind = "front"
)

// ValidKinds lists all kinds in deployment order.
var ValidKinds = []Kind{Core, Web, Portal, Front}

// Kinds returns the kinds in deployment order.
func Kinds() []Kind {
	kinds := make([]Kind, len(ValidKinds))
	copy(kinds, ValidKinds)
	return kinds
}

// IsValid checks if a kind string is valid
func (k Kind) IsValid() bool {
	for _, valid := range ValidKinds {
		if k == valid {
			return true
		}
	}
	return false
}

// ParseKind parses a kind name, returning an error if invalid
func ParseKind(s string) (Kind, error) {
	kind := Kind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid module kind %q, valid kinds: %v", s, ValidKinds)
	}
	return kind, nil
}

// Title is the display name used for layer names and log messages.
func (k Kind) Title() string {
	switch k {
	case Core:
		return "Core"
	case Web:
		return "Web"
	case Portal:
		return "Portal"
	case Front:
		return "Front"
	}
	return string(k)
}

// Path returns the module directory inside the artifact.
func (k Kind) Path() string {
	switch k {
	case Core:
		return CorePath
	case Web:
		return WebPath
	case Portal:
		return PortalPath
	case Front:
		return FrontPath
	}
	return ""
}

// Marker returns the resource whose presence means the module is bundled.
func (k Kind) Marker() string {
	if k == Front {
		return FrontPath + "/" + FrontIndex
	}
	return k.Path() + "/" + ClassesDir
}

// Servlet reports whether the module is a server-side application (as
// opposed to the static front-end bundle).
func (k Kind) Servlet() bool {
	return k != Front
}
