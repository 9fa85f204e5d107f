// Package contextpath derives the URL prefix each module is served under.
//
// The rules differ per module kind and between a single-module artifact and
// a bundle of several server-side modules; they are kept as an explicit
// table rather than a single formula because existing deployments rely on
// the exact prefixes.
package contextpath

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirosfoundation/go-bundle-host/internal/modules"
)

// Root is the root context path.
const Root = "/"

// ErrCollision is returned when two modules would share a context path.
var ErrCollision = errors.New("context path collision")

// Overrides holds explicitly configured, already normalized paths. Empty
// fields mean "derive".
type Overrides struct {
	Context string
	Front   string
	Portal  string
}

// Normalize turns a configured context name into a context path: "" stays
// unset, "/" is the root, anything else gets forward slashes, exactly one
// leading slash and no trailing slash.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := path.Clean("/" + name)
	return cleaned
}

// Base returns the base context path: the override when set, else "/" plus
// the artifact name, else the root.
func Base(override, artifactName string) string {
	if p := Normalize(override); p != "" {
		return p
	}
	if artifactName != "" {
		return Normalize(artifactName)
	}
	return Root
}

// Suffixed appends "-suffix" to base; the root becomes "/app-suffix".
func Suffixed(base, suffix string) string {
	if base == Root {
		return Root + "app-" + suffix
	}
	return base + "-" + suffix
}

// Resolve returns the context path of kind.
func Resolve(kind modules.Kind, base string, o Overrides, bundled bool) string {
	switch kind {
	case modules.Core:
		if bundled {
			return Suffixed(base, "core")
		}
		return base
	case modules.Web:
		return base
	case modules.Portal:
		if bundled {
			if o.Portal != "" {
				return o.Portal
			}
			return Suffixed(base, "portal")
		}
		return base
	case modules.Front:
		if o.Front != "" {
			return o.Front
		}
		return Suffixed(base, "front")
	}
	return base
}

// JoinSlash returns p with a trailing separator; the root stays "/".
func JoinSlash(p string) string {
	if p == Root {
		return Root
	}
	return p + "/"
}

// APIURL returns the REST endpoint below base.
func APIURL(base string) string {
	if base == Root {
		return "/rest/"
	}
	return base + "/rest/"
}

// Distinct checks that no two modules share a context path.
func Distinct(paths map[modules.Kind]string) error {
	owners := make(map[string]modules.Kind, len(paths))
	kinds := make([]modules.Kind, 0, len(paths))
	for k := range paths {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return order(kinds[i]) < order(kinds[j]) })

	for _, k := range kinds {
		p := paths[k]
		if other, ok := owners[p]; ok {
			return fmt.Errorf("%w: %s and %s both resolve to %q", ErrCollision, other.Title(), k.Title(), p)
		}
		owners[p] = k
	}
	return nil
}

func order(k modules.Kind) int {
	for i, v := range modules.ValidKinds {
		if v == k {
			return i
		}
	}
	return len(modules.ValidKinds)
}
