// Package assembler binds a detected module, its isolation layer and its
// resource base into a DeployedUnit that the server can mount.
package assembler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-bundle-host/internal/contextpath"
	"github.com/sirosfoundation/go-bundle-host/internal/isolation"
	"github.com/sirosfoundation/go-bundle-host/internal/modules"
	"github.com/sirosfoundation/go-bundle-host/pkg/config"
	"github.com/sirosfoundation/go-bundle-host/pkg/middleware"
)

// ResourceResolutionError means a module's resource base could not be
// located inside the artifact.
type ResourceResolutionError struct {
	Kind modules.Kind
	Path string
	Err  error
}

func (e *ResourceResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve resource base of %s module at %q: %v", e.Kind.Title(), e.Path, e.Err)
}

func (e *ResourceResolutionError) Unwrap() error { return e.Err }

// DeployedUnit is one assembled module, ready to be mounted at its context
// path. It lives as long as the server.
type DeployedUnit struct {
	ID          string
	Descriptor  modules.Descriptor
	Layer       *isolation.Layer
	Resources   fs.FS
	Environment *config.Environment

	handler http.Handler
}

// Name returns the module display name.
func (u *DeployedUnit) Name() string { return u.Descriptor.Kind.Title() }

// ContextPath returns the URL prefix the unit is mounted under.
func (u *DeployedUnit) ContextPath() string { return u.Descriptor.ContextPath }

// Handler serves requests whose path is relative to the context path.
func (u *DeployedUnit) Handler() http.Handler { return u.handler }

// Options configures an Assembler.
type Options struct {
	ArtifactFS fs.FS
	// BasePath is the resolved base context path; the Front module derives
	// the published API URL from it.
	BasePath    string
	Config      *config.Config
	Runtime     *config.Runtime
	Environment *config.Environment
	Metrics     *middleware.Metrics
	Logger      *zap.Logger
}

// Assembler creates DeployedUnits.
type Assembler struct {
	opts Options
}

// New creates an Assembler.
func New(opts Options) *Assembler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Runtime == nil {
		opts.Runtime = &config.Runtime{}
	}
	if opts.BasePath == "" {
		opts.BasePath = contextpath.Root
	}
	return &Assembler{opts: opts}
}

// Assemble builds the unit for desc. desc.ContextPath must already be
// resolved. For the Front module it also publishes the front-end base URL
// and API URL into the runtime configuration.
func (a *Assembler) Assemble(desc modules.Descriptor, layer *isolation.Layer) (*DeployedUnit, error) {
	if !desc.Present {
		return nil, &ResourceResolutionError{Kind: desc.Kind, Path: desc.Path, Err: errors.New("module not present")}
	}
	if layer == nil {
		return nil, fmt.Errorf("assemble %s: no isolation layer", desc.Kind.Title())
	}

	resources, err := a.resourceBase(desc)
	if err != nil {
		return nil, err
	}

	unit := &DeployedUnit{
		ID:         uuid.NewString(),
		Descriptor: desc,
		Layer:      layer,
		Resources:  resources,
	}

	if desc.Kind.Servlet() {
		unit.Environment = a.opts.Environment
	} else {
		a.publishFrontend(desc.ContextPath)
	}

	unit.handler = a.buildHandler(unit)

	a.opts.Logger.Info("Module assembled",
		zap.String("module", unit.Name()),
		zap.String("context_path", unit.ContextPath()),
		zap.Strings("layers", layer.Chain()),
		zap.Strings("entries", layer.EntryNames()),
	)
	return unit, nil
}

func (a *Assembler) resourceBase(desc modules.Descriptor) (fs.FS, error) {
	if a.opts.ArtifactFS == nil {
		return nil, &ResourceResolutionError{Kind: desc.Kind, Path: desc.Path, Err: fs.ErrNotExist}
	}
	info, err := fs.Stat(a.opts.ArtifactFS, desc.Path)
	if err != nil {
		return nil, &ResourceResolutionError{Kind: desc.Kind, Path: desc.Path, Err: err}
	}
	if !info.IsDir() {
		return nil, &ResourceResolutionError{Kind: desc.Kind, Path: desc.Path, Err: errors.New("not a directory")}
	}
	sub, err := fs.Sub(a.opts.ArtifactFS, desc.Path)
	if err != nil {
		return nil, &ResourceResolutionError{Kind: desc.Kind, Path: desc.Path, Err: err}
	}
	return sub, nil
}

func (a *Assembler) publishFrontend(frontPath string) {
	rt := a.opts.Runtime
	rt.Frontend.BaseURL = contextpath.JoinSlash(frontPath)
	rt.Frontend.APIURL = contextpath.APIURL(a.opts.BasePath)
	a.opts.Logger.Info("Published front-end URLs",
		zap.String("base_url", rt.Frontend.BaseURL),
		zap.String("api_url", rt.Frontend.APIURL),
	)
}
