// Package main provides the bundle-admin CLI tool for inspecting and
// stopping a running bundle host.
package main

import (
	"os"

	"github.com/sirosfoundation/go-bundle-host/cmd/bundle-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
