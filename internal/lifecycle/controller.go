// Package lifecycle sequences the host: it detects the bundled modules,
// builds their isolation layers, assembles and mounts them, starts the
// server and the stop monitor, and shuts everything down again.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-bundle-host/internal/artifact"
	"github.com/sirosfoundation/go-bundle-host/internal/assembler"
	"github.com/sirosfoundation/go-bundle-host/internal/contextpath"
	"github.com/sirosfoundation/go-bundle-host/internal/isolation"
	"github.com/sirosfoundation/go-bundle-host/internal/modules"
	"github.com/sirosfoundation/go-bundle-host/internal/server"
	"github.com/sirosfoundation/go-bundle-host/internal/shutdown"
	"github.com/sirosfoundation/go-bundle-host/pkg/config"
	"github.com/sirosfoundation/go-bundle-host/pkg/middleware"
)

// ErrAlreadyRun is returned when Run is called twice.
var ErrAlreadyRun = errors.New("controller already started")

// Options configures a Controller.
type Options struct {
	Config *config.Config
	// Artifact may be nil when it could not be opened; nothing is deployed then.
	Artifact    *artifact.Artifact
	Environment *config.Environment
	// HostResources back the base layer; nil uses the embedded host resources.
	HostResources fs.FS
	// Registry collects metrics; nil creates a private registry.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Controller runs one host instance. A Controller is single use.
type Controller struct {
	cfg    *config.Config
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	descriptors []modules.Descriptor
	basePath    string
	bundled     bool
	port        int
	units       []*assembler.DeployedUnit

	runtime *config.Runtime
	metrics *middleware.Metrics
	manager *server.Manager
	monitor *shutdown.Monitor
	layers  []*isolation.Layer

	stopOnce      sync.Once
	stopRequested chan struct{}
	done          chan struct{}
}

// New creates a Controller in the Created state.
func New(opts Options) *Controller {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HostResources == nil {
		opts.HostResources = isolation.HostResources()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Controller{
		cfg:           opts.Config,
		opts:          opts,
		logger:        opts.Logger,
		state:         Created,
		runtime:       config.NewRuntime(opts.Config),
		stopRequested: make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(to State) error {
	c.mu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("invalid lifecycle transition %s -> %s", from, to)
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Debug("Lifecycle transition", zap.String("from", from.String()), zap.String("to", to.String()))
	if to.Terminal() {
		close(c.done)
	}
	return nil
}

func (c *Controller) fail(err error) error {
	if serr := c.setState(Failed); serr != nil {
		c.logger.Error("Lifecycle transition failed", zap.Error(serr))
	}
	c.logger.Error("Host failed to start", zap.Error(err))
	return err
}

// Done is closed when the controller reaches Stopped or Failed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Runtime returns the published runtime values.
func (c *Controller) Runtime() *config.Runtime {
	return c.runtime
}

// Units returns the deployed units in deployment order.
func (c *Controller) Units() []*assembler.DeployedUnit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*assembler.DeployedUnit, len(c.units))
	copy(out, c.units)
	return out
}

// Descriptors returns the detection result with resolved context paths.
func (c *Controller) Descriptors() []modules.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]modules.Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// HTTPAddr returns the bound HTTP address once running.
func (c *Controller) HTTPAddr() net.Addr {
	if c.manager == nil {
		return nil
	}
	return c.manager.HTTPAddr()
}

// StopAddr returns the bound stop monitor address, nil when disabled.
func (c *Controller) StopAddr() net.Addr {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Addr()
}

// Stop requests a shutdown and waits until the controller has stopped or
// ctx is done. It is also the stop monitor's hook.
func (c *Controller) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopRequested) })
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run configures and starts the host, then blocks until ctx is cancelled,
// a stop command arrives or the server fails.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.setState(Configuring); err != nil {
		return ErrAlreadyRun
	}

	if err := c.configure(); err != nil {
		return c.fail(err)
	}
	defer c.closeLayers()

	if err := c.setState(Starting); err != nil {
		return c.fail(err)
	}

	if err := c.deploy(); err != nil {
		return c.fail(err)
	}

	if err := c.start(ctx); err != nil {
		return c.fail(err)
	}

	if err := c.setState(Running); err != nil {
		return c.fail(err)
	}
	c.logger.Info("Host running",
		zap.Int("port", c.port),
		zap.String("context_path", c.basePath),
		zap.Int("modules", len(c.units)))

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("Shutdown requested by context")
	case <-c.stopRequested:
		c.logger.Info("Shutdown requested")
	case <-c.manager.Done():
		runErr = c.manager.Err()
		if runErr == nil {
			runErr = errors.New("server stopped unexpectedly")
		}
	}

	c.shutdown()
	return runErr
}

// Layout is the outcome of module detection and context path resolution.
type Layout struct {
	// Descriptors holds one entry per kind; present ones carry their path.
	Descriptors []modules.Descriptor
	BasePath    string
	Bundled     bool
}

// ResolveLayout detects the modules in art and resolves their context paths
// from the overrides in paths. It fails when two present modules would be
// served under the same path. A nil artifact yields no present modules.
func ResolveLayout(art *artifact.Artifact, paths config.PathsConfig) (*Layout, error) {
	descs := modules.Detect(art.FileSystem())
	bundled := modules.IsBundle(descs)

	var name string
	if art != nil {
		name = art.Name
	}
	base := contextpath.Base(paths.Context, name)
	overrides := contextpath.Overrides{
		Context: contextpath.Normalize(paths.Context),
		Front:   contextpath.Normalize(paths.Front),
		Portal:  contextpath.Normalize(paths.Portal),
	}

	resolved := make(map[modules.Kind]string)
	for i, d := range descs {
		if !d.Present {
			continue
		}
		p := contextpath.Resolve(d.Kind, base, overrides, bundled)
		descs[i] = d.WithContextPath(p)
		resolved[d.Kind] = p
	}
	if err := contextpath.Distinct(resolved); err != nil {
		return nil, fmt.Errorf("invalid context paths: %w", err)
	}

	return &Layout{Descriptors: descs, BasePath: base, Bundled: bundled}, nil
}

// configure detects modules and resolves ports and context paths.
func (c *Controller) configure() error {
	fsys := c.opts.Artifact.FileSystem()
	if fsys == nil {
		c.logger.Warn("No artifact available, no modules will be deployed")
	}

	layout, err := ResolveLayout(c.opts.Artifact, c.cfg.Paths)
	if err != nil {
		return err
	}
	for _, d := range layout.Descriptors {
		c.logger.Debug("Module detection", zap.String("module", d.Kind.Title()), zap.Bool("present", d.Present))
	}

	port := c.cfg.Server.Port
	if port == 0 && !c.cfg.Server.PortExplicit {
		port = defaultPort(fsys, layout.Descriptors, c.logger)
	}

	c.mu.Lock()
	c.descriptors = layout.Descriptors
	c.bundled = layout.Bundled
	c.basePath = layout.BasePath
	c.port = port
	c.mu.Unlock()
	return nil
}

// defaultPort reads the bundled properties resource, falling back to
// config.DefaultPort.
func defaultPort(fsys fs.FS, descs []modules.Descriptor, logger *zap.Logger) int {
	name, ok := modules.PropertiesPath(descs)
	if !ok || fsys == nil {
		return config.DefaultPort
	}
	props, err := config.ReadProperties(fsys, name)
	if err != nil {
		logger.Warn("Error while reading port, using default port", zap.String("resource", name), zap.Error(err))
		return config.DefaultPort
	}
	port, ok, err := config.PortFromProperties(props)
	if err != nil {
		logger.Warn("Error while parsing port, using default port", zap.String("resource", name), zap.Error(err))
		return config.DefaultPort
	}
	if !ok {
		return config.DefaultPort
	}
	return port
}

// deploy builds the layers and assembles every present module in order.
func (c *Controller) deploy() error {
	server.ConfigureGin(c.cfg.Logging.Level)

	fsys := c.opts.Artifact.FileSystem()
	scfg := server.NewServerConfig(c.cfg, c.port)
	if c.cfg.Metrics.Enabled {
		c.metrics = middleware.NewMetrics(c.opts.Registry)
		scfg.Gatherer = c.opts.Registry
	}
	scfg.State = func() string { return c.State().String() }
	scfg.Inventory = c.inventory
	c.manager = server.NewManager(scfg, c.logger)

	base := isolation.Base(c.opts.HostResources)
	shared, err := isolation.BuildShared(fsys, base)
	if err != nil {
		return err
	}
	c.layers = append(c.layers, shared)

	asm := assembler.New(assembler.Options{
		ArtifactFS:  fsys,
		BasePath:    c.basePath,
		Config:      c.cfg,
		Runtime:     c.runtime,
		Environment: c.opts.Environment,
		Metrics:     c.metrics,
		Logger:      c.logger,
	})

	present := modules.Present(c.descriptors)
	only := len(present) == 1

	var units []*assembler.DeployedUnit
	for _, desc := range c.descriptors {
		if !desc.Present {
			continue
		}

		layer, err := isolation.BuildModule(desc.Kind, fsys, desc.Path, shared)
		if err != nil {
			if only {
				return err
			}
			c.logger.Error("Skipping module", zap.String("module", desc.Kind.Title()), zap.Error(err))
			continue
		}
		c.layers = append(c.layers, layer)

		unit, err := asm.Assemble(desc, layer)
		if err != nil {
			var rre *assembler.ResourceResolutionError
			if errors.As(err, &rre) {
				c.logger.Error("Skipping module, resources not found", zap.String("module", desc.Kind.Title()), zap.Error(err))
				continue
			}
			return err
		}

		if err := c.manager.AddProvider(unit); err != nil {
			return err
		}
		units = append(units, unit)
	}

	if len(units) == 0 {
		c.logger.Warn("No modules deployed")
	}
	if c.metrics != nil {
		c.metrics.ModulesDeployed.Set(float64(len(units)))
	}

	c.mu.Lock()
	c.units = units
	c.mu.Unlock()
	return nil
}

// start launches the server and, when configured, the stop monitor.
func (c *Controller) start(ctx context.Context) error {
	if err := c.manager.Start(ctx); err != nil {
		return err
	}

	if !c.cfg.Shutdown.Enabled() {
		return nil
	}

	c.monitor = shutdown.NewMonitor(shutdown.MonitorConfig{
		Port:        c.cfg.Shutdown.Port,
		Key:         c.cfg.Shutdown.Key,
		StopTimeout: c.shutdownTimeout() + 5*time.Second,
	}, c.Stop, c.logger)
	if err := c.monitor.Start(); err != nil {
		c.monitor = nil
		c.stopServer()
		return err
	}
	return nil
}

// closeLayers releases the archives held open by the isolation layers once
// nothing serves from them any more.
func (c *Controller) closeLayers() {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if err := c.layers[i].Close(); err != nil {
			c.logger.Warn("Failed to close isolation layer", zap.String("layer", c.layers[i].Name()), zap.Error(err))
		}
	}
	c.layers = nil
}

func (c *Controller) shutdownTimeout() time.Duration {
	if c.cfg.Server.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.cfg.Server.ShutdownTimeout) * time.Second
}

func (c *Controller) stopServer() {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout())
	defer cancel()
	if err := c.manager.Shutdown(ctx); err != nil {
		c.logger.Error("Server forced to shutdown", zap.Error(err))
	}
}

// shutdown moves Running → Stopping → Stopped. The monitor is closed last
// so a pending stop command can still be acknowledged.
func (c *Controller) shutdown() {
	if err := c.setState(Stopping); err != nil {
		c.logger.Error("Lifecycle transition failed", zap.Error(err))
	}

	c.stopServer()

	if err := c.setState(Stopped); err != nil {
		c.logger.Error("Lifecycle transition failed", zap.Error(err))
	}

	if c.monitor != nil {
		if err := c.monitor.Close(); err != nil {
			c.logger.Warn("Stop monitor close failed", zap.Error(err))
		}
	}
	c.logger.Info("Host stopped")
}
