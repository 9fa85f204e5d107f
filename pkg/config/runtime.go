package config

import (
	"os"
)

// Runtime carries the values the host publishes to its modules while they
// are assembled. It is written before the server starts serving and is
// read-only afterwards, so it needs no locking.
type Runtime struct {
	AppHome  string         `json:"appHome"`
	Frontend FrontendConfig `json:"frontend"`
}

// FrontendConfig tells the front-end bundle where it is served from and
// where the REST API lives.
type FrontendConfig struct {
	BaseURL string `json:"baseUrl"`
	APIURL  string `json:"apiUrl"`
}

// NewRuntime creates the published values for cfg. AppHome falls back to
// the working directory; a home of "/" is published as "".
func NewRuntime(cfg *Config) *Runtime {
	home := cfg.AppHome
	if home == "" {
		if wd, err := os.Getwd(); err == nil {
			home = wd
		}
	}
	if home == "/" {
		home = ""
	}
	return &Runtime{AppHome: home}
}

// FrontendPublished reports whether a Front module published its URLs.
func (r *Runtime) FrontendPublished() bool {
	return r.Frontend.BaseURL != ""
}
