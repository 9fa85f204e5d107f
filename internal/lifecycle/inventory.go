package lifecycle

import (
	"github.com/sirosfoundation/go-bundle-host/pkg/config"
)

// Inventory describes what this host deployed.
type Inventory struct {
	Artifact string                `json:"artifact"`
	BasePath string                `json:"base_path"`
	Bundle   bool                  `json:"bundle"`
	Port     int                   `json:"port"`
	State    string                `json:"state"`
	AppHome  string                `json:"app_home"`
	Frontend config.FrontendConfig `json:"frontend"`
	Modules  []UnitInfo            `json:"modules"`
}

// UnitInfo describes one deployed unit.
type UnitInfo struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	ContextPath string   `json:"context_path"`
	Path        string   `json:"path"`
	Layers      []string `json:"layers"`
	Entries     []string `json:"entries"`
	Environment []string `json:"environment,omitempty"`
}

func (c *Controller) inventory() any {
	inv := Inventory{
		BasePath: c.basePath,
		Bundle:   c.bundled,
		Port:     c.port,
		State:    c.State().String(),
		AppHome:  c.runtime.AppHome,
		Frontend: c.runtime.Frontend,
	}
	if c.opts.Artifact != nil {
		inv.Artifact = c.opts.Artifact.Name
	}
	for _, u := range c.Units() {
		inv.Modules = append(inv.Modules, UnitInfo{
			ID:          u.ID,
			Kind:        string(u.Descriptor.Kind),
			ContextPath: u.ContextPath(),
			Path:        u.Descriptor.Path,
			Layers:      u.Layer.Chain(),
			Entries:     u.Layer.EntryNames(),
			Environment: u.Environment.Names(),
		})
	}
	return inv
}
