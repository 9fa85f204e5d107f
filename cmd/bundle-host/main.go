package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirosfoundation/go-bundle-host/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cli.SetVersion(version, buildTime)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}
