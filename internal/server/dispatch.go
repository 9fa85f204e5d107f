package server

import (
	"net/http"
	"sort"
	"strings"
)

type mount struct {
	path    string
	name    string
	handler http.Handler
}

// dispatcher routes a request to the mount with the longest matching
// context path. The matched prefix is stripped so every module sees paths
// relative to its own root.
type dispatcher struct {
	mounts []mount
}

func newDispatcher(providers []Provider) *dispatcher {
	d := &dispatcher{}
	for _, p := range providers {
		d.mounts = append(d.mounts, mount{
			path:    p.ContextPath(),
			name:    p.Name(),
			handler: p.Handler(),
		})
	}
	sort.SliceStable(d.mounts, func(i, j int) bool {
		return len(d.mounts[i].path) > len(d.mounts[j].path)
	})
	return d
}

func (d *dispatcher) match(p string) (mount, bool) {
	for _, m := range d.mounts {
		if m.path == "/" || p == m.path || strings.HasPrefix(p, m.path+"/") {
			return m, true
		}
	}
	return mount{}, false
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, ok := d.match(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if m.path == "/" {
		m.handler.ServeHTTP(w, r)
		return
	}

	if r.URL.Path == m.path {
		target := m.path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	http.StripPrefix(m.path, m.handler).ServeHTTP(w, r)
}
