// Package cli turns process arguments into a host configuration and either
// runs the host or acts as a client of a running host's stop monitor.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-bundle-host/internal/artifact"
	"github.com/sirosfoundation/go-bundle-host/internal/lifecycle"
	"github.com/sirosfoundation/go-bundle-host/internal/modules"
	"github.com/sirosfoundation/go-bundle-host/internal/shutdown"
	"github.com/sirosfoundation/go-bundle-host/pkg/config"
	"github.com/sirosfoundation/go-bundle-host/pkg/logging"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// SetVersion records build information printed in the help text and logs.
func SetVersion(v, built string) {
	version = v
	buildTime = built
}

// RunFunc runs a configured host until it stops.
type RunFunc func(ctx context.Context, opts lifecycle.Options) error

// App is the command line front end.
type App struct {
	Stdout io.Writer
	// Program is shown in the usage line.
	Program string
	// Run starts the host. Nil uses the lifecycle controller.
	Run RunFunc
}

// New returns an App writing to stdout.
func New(stdout io.Writer) *App {
	return &App{
		Stdout:  stdout,
		Program: filepath.Base(os.Args[0]),
		Run:     runController,
	}
}

// Execute parses args and runs the host with a default App.
func Execute(ctx context.Context, args []string, stdout io.Writer) int {
	return New(stdout).Execute(ctx, args)
}

type options struct {
	port              string
	contextName       string
	frontContextName  string
	portalContextName string
	envPath           string
	confPath          string
	stopPort          string
	stopKey           string
	artifact          string
	stop              bool
	help              bool
}

func (a *App) flagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet(a.Program, flag.ContinueOnError)
	fs.SetOutput(a.Stdout)
	fs.StringVar(&o.port, "port", "", "server port")
	fs.StringVar(&o.contextName, "contextName", "", "application context name")
	fs.StringVar(&o.frontContextName, "frontContextName", "", "front application context name")
	fs.StringVar(&o.portalContextName, "portalContextName", "", "portal application context name for single artifact application")
	fs.StringVar(&o.envPath, "jettyEnvPath", "", "environment resource descriptor path")
	fs.StringVar(&o.confPath, "jettyConfPath", "", "server configuration descriptor path")
	fs.StringVar(&o.stopPort, "stopPort", "", "port number on which this server waits for a shutdown command")
	fs.StringVar(&o.stopKey, "stopKey", "", "secret key on startup which must also be present on the shutdown command")
	fs.StringVar(&o.artifact, "artifact", "", "bundle archive or directory (default: this executable)")
	fs.BoolVar(&o.stop, "stop", false, "stop server")
	fs.BoolVar(&o.help, "help", false, "print help information")
	fs.Usage = func() { a.printHelp(fs) }
	return fs
}

func (a *App) printHelp(fs *flag.FlagSet) {
	fmt.Fprintf(a.Stdout, "usage: %s [options]\n", a.Program)
	fmt.Fprintf(a.Stdout, "bundle host %s (built %s)\n\n", version, buildTime)
	fs.PrintDefaults()
}

func (a *App) usageError(fs *flag.FlagSet, msg string) int {
	fmt.Fprintln(a.Stdout, msg)
	a.printHelp(fs)
	return ExitUsage
}

// Execute parses args and either stops a running host or starts one.
func (a *App) Execute(ctx context.Context, args []string) int {
	var o options
	fs := a.flagSet(&o)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	if o.help {
		a.printHelp(fs)
		return ExitOK
	}

	stopPort := -1
	if o.stopPort != "" {
		p, err := strconv.Atoi(o.stopPort)
		if err != nil {
			return a.usageError(fs, "stop port has to be number")
		}
		stopPort = p
	}

	if o.stop {
		if stopPort <= 0 {
			return a.usageError(fs, "stop port has to be a positive number")
		}
		return a.stop(ctx, stopPort, o.stopKey)
	}

	var port int
	if o.port != "" {
		p, err := strconv.Atoi(o.port)
		if err != nil {
			return a.usageError(fs, "port has to be number")
		}
		port = p
	}

	if o.envPath != "" && !fileExists(o.envPath) {
		return a.usageError(fs, "jettyEnvPath should point to an existing file")
	}
	if o.confPath != "" && !fileExists(o.confPath) {
		return a.usageError(fs, "jettyConfPath should point to an existing file")
	}

	artifactPath := o.artifact
	if artifactPath == "" {
		artifactPath = os.Getenv(config.EnvPrefix + "_ARTIFACT_PATH")
	}
	art, artErr := artifact.Open(artifactPath)
	defer func() { _ = art.Close() }()

	descriptor, err := readDescriptor(o.confPath, art)
	if err != nil {
		return a.usageError(fs, err.Error())
	}

	cfg, err := config.Load(descriptor)
	if err != nil {
		return a.usageError(fs, err.Error())
	}

	if o.port != "" {
		cfg.Server.Port = port
		cfg.Server.PortExplicit = true
	}
	if o.stopPort != "" {
		cfg.Shutdown.Port = stopPort
	}
	if o.stopKey != "" {
		cfg.Shutdown.Key = o.stopKey
	}
	if cfg.Shutdown.Key == "" {
		cfg.Shutdown.Key = config.DefaultStopKey
	}
	if o.contextName != "" {
		cfg.Paths.Context = o.contextName
	}
	if o.frontContextName != "" {
		cfg.Paths.Front = o.frontContextName
	}
	if o.portalContextName != "" {
		cfg.Paths.Portal = o.portalContextName
	}
	cfg.Artifact.Path = artifactPath
	cfg.EnvPath = o.envPath
	cfg.ConfPath = o.confPath

	if err := cfg.Validate(); err != nil {
		return a.usageError(fs, fmt.Sprintf("invalid configuration: %v", err))
	}

	if _, err := lifecycle.ResolveLayout(art, cfg.Paths); err != nil {
		return a.usageError(fs, fmt.Sprintf("invalid configuration: %v", err))
	}

	var env *config.Environment
	if cfg.EnvPath != "" {
		env, err = config.LoadEnvironment(cfg.EnvPath)
		if err != nil {
			return a.usageError(fs, err.Error())
		}
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(a.Stdout, "failed to initialize logger: %v\n", err)
		return ExitUsage
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bundle host",
		zap.String("version", version),
		zap.String("build_time", buildTime))
	if artErr != nil {
		logger.Warn("Could not open artifact, no modules will be detected", zap.Error(artErr))
	}

	run := a.Run
	if run == nil {
		run = runController
	}
	err = run(ctx, lifecycle.Options{
		Config:      cfg,
		Artifact:    art,
		Environment: env,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(a.Stdout, "server failed: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func runController(ctx context.Context, opts lifecycle.Options) error {
	return lifecycle.New(opts).Run(ctx)
}

// readDescriptor returns the named server descriptor, else the one bundled
// in the artifact, else nil.
func readDescriptor(path string, art *artifact.Artifact) ([]byte, error) {
	if path != "" {
		return config.ReadDescriptor(path)
	}
	if !art.Exists(modules.ServerDescriptor) {
		return nil, nil
	}
	data, err := art.ReadFile(modules.ServerDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundled server descriptor: %w", err)
	}
	return data, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// stop runs the client side of the stop handshake and reports the outcome.
func (a *App) stop(ctx context.Context, port int, key string) int {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(a.Stdout, err)
		return ExitUsage
	}
	if key == "" {
		key = cfg.Shutdown.Key
	}
	timeout := cfg.Shutdown.StopTimeout()
	if timeout <= 0 {
		timeout = config.DefaultStopTimeout * time.Second
	}

	client := shutdown.NewClient(port, key, timeout)
	fmt.Fprintf(a.Stdout, "Waiting %d seconds for server to stop\n", int(timeout.Seconds()))

	res, err := client.Stop(ctx)
	if err != nil {
		fmt.Fprintf(a.Stdout, "Stop failed: %v\n", err)
		return ExitFailure
	}
	for _, line := range res.Lines {
		fmt.Fprintf(a.Stdout, "Received %q\n", line)
	}
	switch {
	case res.Acknowledged:
		fmt.Fprintln(a.Stdout, "Server reports itself as Stopped")
	case res.TimedOut:
		fmt.Fprintln(a.Stdout, "Timed out waiting for stop confirmation")
	}
	return ExitOK
}
