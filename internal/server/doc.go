// Package server runs the HTTP side of the host.
//
// Architecture:
//   - Provider: a deployed module contributes one handler mounted at its
//     context path
//   - Manager: dispatches each request to the provider with the longest
//     matching context path on one shared listener
//   - Admin server: optional second port with status, metrics and the
//     module inventory (bearer token protected)
//
// Usage:
//
//	mgr := server.NewManager(&server.ServerConfig{
//	    HTTPAddress: "0.0.0.0",
//	    HTTPPort:    8080,
//	    AdminPort:   8081,
//	}, logger)
//
//	mgr.AddProvider(coreUnit) // "/shop-core"
//	mgr.AddProvider(webUnit)  // "/shop"
//
//	if err := mgr.Start(ctx); err != nil { ... }
//	<-mgr.Done()
package server
