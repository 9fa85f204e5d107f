package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-bundle-host/internal/lifecycle"
	"github.com/sirosfoundation/go-bundle-host/internal/shutdown"
)

type recorder struct {
	called bool
	opts   lifecycle.Options
	err    error
}

func (r *recorder) run(ctx context.Context, opts lifecycle.Options) error {
	r.called = true
	r.opts = opts
	return r.err
}

func newTestApp() (*App, *bytes.Buffer, *recorder) {
	out := &bytes.Buffer{}
	rec := &recorder{}
	return &App{Stdout: out, Program: "bundle-host", Run: rec.run}, out, rec
}

func artifactDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "LIB-INF", "app", "WEB-INF", "classes"), 0o755))
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExecute_Help(t *testing.T) {
	app, out, rec := newTestApp()

	assert.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-help"}))
	assert.Contains(t, out.String(), "usage: bundle-host")
	assert.Contains(t, out.String(), "-jettyEnvPath")
	assert.False(t, rec.called)
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing env file", []string{"-jettyEnvPath", "/does/not/exist.yaml"}, "jettyEnvPath should point to an existing file"},
		{"missing conf file", []string{"-jettyConfPath", "/does/not/exist.yaml"}, "jettyConfPath should point to an existing file"},
		{"port not a number", []string{"-port", "eighty"}, "port has to be number"},
		{"stop port not a number", []string{"-stopPort", "x"}, "stop port has to be number"},
		{"stop without port", []string{"-stop"}, "stop port has to be a positive number"},
		{"stop with zero port", []string{"-stop", "-stopPort", "0"}, "stop port has to be a positive number"},
		{"port out of range", []string{"-port", "70000"}, "invalid configuration"},
		{"unknown flag", []string{"-verbose"}, "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, out, rec := newTestApp()
			args := append([]string{"-artifact", artifactDir(t)}, tt.args...)

			assert.Equal(t, ExitUsage, app.Execute(context.Background(), args))
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), "usage: bundle-host")
			assert.False(t, rec.called, "the host must not be started")
		})
	}
}

func TestExecute_StartsHost(t *testing.T) {
	app, _, rec := newTestApp()
	env := writeFile(t, "env.yaml", "resources:\n  - name: jdbc/Main\n    type: datasource\n")
	dir := artifactDir(t)

	code := app.Execute(context.Background(), []string{
		"-artifact", dir,
		"-port", "9000",
		"-contextName", "store",
		"-frontContextName", "ui",
		"-portalContextName", "portal",
		"-stopPort", "9001",
		"-stopKey", "K",
		"-jettyEnvPath", env,
	})
	require.Equal(t, ExitOK, code)
	require.True(t, rec.called)

	cfg := rec.opts.Config
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 9001, cfg.Shutdown.Port)
	assert.Equal(t, "K", cfg.Shutdown.Key)
	assert.Equal(t, "store", cfg.Paths.Context)
	assert.Equal(t, "ui", cfg.Paths.Front)
	assert.Equal(t, "portal", cfg.Paths.Portal)
	assert.Equal(t, env, cfg.EnvPath)

	require.NotNil(t, rec.opts.Artifact)
	assert.Equal(t, "shop", rec.opts.Artifact.Name)
	assert.Equal(t, []string{"jdbc/Main"}, rec.opts.Environment.Names())
	assert.NotNil(t, rec.opts.Logger)
}

func TestExecute_Defaults(t *testing.T) {
	app, _, rec := newTestApp()

	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", artifactDir(t)}))
	cfg := rec.opts.Config
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, -1, cfg.Shutdown.Port)
	assert.Equal(t, "SHUTDOWN", cfg.Shutdown.Key)
	assert.Nil(t, rec.opts.Environment)
}

func TestExecute_IgnoresUnprefixedEnvironment(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("KEY", "leaked")
	t.Setenv("CONTEXT", "oops")

	app, out, rec := newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", artifactDir(t)}), out.String())
	cfg := rec.opts.Config
	assert.Equal(t, 0, cfg.Server.Port)
	assert.False(t, cfg.Shutdown.Enabled())
	assert.Equal(t, "SHUTDOWN", cfg.Shutdown.Key)
	assert.Empty(t, cfg.Paths.Context)

	app, _, rec = newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", artifactDir(t), "-port", "8080"}))
	assert.Equal(t, 8080, rec.opts.Config.Server.Port)
	assert.Equal(t, -1, rec.opts.Config.Shutdown.Port)
}

func TestExecute_ExplicitZeroPort(t *testing.T) {
	app, _, rec := newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", artifactDir(t), "-port", "0"}))
	assert.Equal(t, 0, rec.opts.Config.Server.Port)
	assert.True(t, rec.opts.Config.Server.PortExplicit)

	app, _, rec = newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", artifactDir(t)}))
	assert.False(t, rec.opts.Config.Server.PortExplicit)
}

func TestExecute_ContextPathCollision(t *testing.T) {
	dir := artifactDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "LIB-INF", "app-front"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LIB-INF", "app-front", "index.html"), []byte("front"), 0o600))

	app, out, rec := newTestApp()
	code := app.Execute(context.Background(), []string{"-artifact", dir, "-frontContextName", "shop"})

	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, out.String(), "invalid configuration")
	assert.Contains(t, out.String(), "usage: bundle-host")
	assert.False(t, rec.called)
}

func TestExecute_BundledDescriptor(t *testing.T) {
	dir := artifactDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.yaml"), []byte("server:\n  port: 7000\nlogging:\n  level: warn\n"), 0o600))

	app, _, rec := newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", dir}))
	assert.Equal(t, 7000, rec.opts.Config.Server.Port)
	assert.Equal(t, "warn", rec.opts.Config.Logging.Level)

	// An explicit descriptor replaces the bundled one and flags win over both.
	conf := writeFile(t, "server.yaml", "server:\n  port: 7100\n")
	app, _, rec = newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", dir, "-jettyConfPath", conf}))
	assert.Equal(t, 7100, rec.opts.Config.Server.Port)
	assert.Equal(t, "info", rec.opts.Config.Logging.Level)

	app, _, rec = newTestApp()
	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", dir, "-jettyConfPath", conf, "-port", "7200"}))
	assert.Equal(t, 7200, rec.opts.Config.Server.Port)
}

func TestExecute_InvalidEnvironmentDescriptor(t *testing.T) {
	app, out, rec := newTestApp()
	env := writeFile(t, "env.yaml", "resources:\n  - type: datasource\n")

	assert.Equal(t, ExitUsage, app.Execute(context.Background(), []string{"-artifact", artifactDir(t), "-jettyEnvPath", env}))
	assert.Contains(t, out.String(), "no name")
	assert.False(t, rec.called)
}

func TestExecute_UnreadableArtifactStillStarts(t *testing.T) {
	app, _, rec := newTestApp()
	missing := filepath.Join(t.TempDir(), "missing.zip")

	require.Equal(t, ExitOK, app.Execute(context.Background(), []string{"-artifact", missing}))
	assert.Nil(t, rec.opts.Artifact)
}

func TestExecute_RunFailure(t *testing.T) {
	app, out, rec := newTestApp()
	rec.err = errors.New("bind: address already in use")

	assert.Equal(t, ExitFailure, app.Execute(context.Background(), []string{"-artifact", artifactDir(t)}))
	assert.Contains(t, out.String(), "address already in use")
}

func TestExecute_Stop(t *testing.T) {
	stopped := make(chan struct{})
	m := shutdown.NewMonitor(shutdown.MonitorConfig{Key: "K"}, func(ctx context.Context) error {
		close(stopped)
		return nil
	}, zap.NewNop())
	require.NoError(t, m.Start())
	defer func() { _ = m.Close() }()
	port := m.Addr().(*net.TCPAddr).Port

	app, out, rec := newTestApp()
	code := app.Execute(context.Background(), []string{"-stop", "-stopPort", strconv.Itoa(port), "-stopKey", "K"})

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), `Received "Stopped"`)
	assert.Contains(t, out.String(), "Server reports itself as Stopped")
	assert.False(t, rec.called)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop hook was not called")
	}
}

func TestExecute_StopIgnoresUnprefixedKey(t *testing.T) {
	t.Setenv("KEY", "leaked")
	m := shutdown.NewMonitor(shutdown.MonitorConfig{Key: "SHUTDOWN"}, func(ctx context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, m.Start())
	defer func() { _ = m.Close() }()

	app, out, _ := newTestApp()
	code := app.Execute(context.Background(), []string{"-stop", "-stopPort", strconv.Itoa(m.Addr().(*net.TCPAddr).Port)})

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "Server reports itself as Stopped")
}

func TestExecute_StopWrongKey(t *testing.T) {
	m := shutdown.NewMonitor(shutdown.MonitorConfig{Key: "K"}, nil, zap.NewNop())
	require.NoError(t, m.Start())
	defer func() { _ = m.Close() }()

	app, out, _ := newTestApp()
	code := app.Execute(context.Background(), []string{"-stop", "-stopPort", strconv.Itoa(m.Addr().(*net.TCPAddr).Port)})

	assert.Equal(t, ExitOK, code)
	assert.NotContains(t, out.String(), "Stopped")
}

func TestExecute_StopConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	app, out, _ := newTestApp()
	assert.Equal(t, ExitFailure, app.Execute(context.Background(), []string{"-stop", "-stopPort", strconv.Itoa(port)}))
	assert.Contains(t, out.String(), "Stop failed")
}
