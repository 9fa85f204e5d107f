package assembler

import (
	"bytes"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-bundle-host/internal/modules"
	"github.com/sirosfoundation/go-bundle-host/pkg/logging"
	"github.com/sirosfoundation/go-bundle-host/pkg/middleware"
)

// FrontConfigPath is where the Front module serves its published URLs.
const FrontConfigPath = "/app-config.json"

// layerResources is where library archives carry web resources.
const layerResources = "META-INF/resources"

func (a *Assembler) buildHandler(u *DeployedUnit) http.Handler {
	kind := u.Descriptor.Kind
	logger := logging.ForModule(a.opts.Logger, string(kind))

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(logger))
	if a.opts.Metrics != nil {
		engine.Use(a.opts.Metrics.Handler(string(kind)))
	}

	if c := a.opts.Config.CORS; (kind == modules.Core || kind == modules.Web) && len(c.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     c.AllowedOrigins,
			AllowMethods:     c.AllowedMethods,
			AllowHeaders:     c.AllowedHeaders,
			ExposeHeaders:    c.ExposedHeaders,
			AllowCredentials: c.AllowCredentials,
			MaxAge:           time.Duration(c.MaxAge) * time.Second,
		}))
	}

	if kind == modules.Front {
		rt := a.opts.Runtime
		engine.GET(FrontConfigPath, func(c *gin.Context) {
			c.JSON(http.StatusOK, rt.Frontend)
		})
	}

	sources := []fs.FS{u.Resources}
	if sub, err := fs.Sub(u.Layer, layerResources); err == nil {
		sources = append(sources, sub)
	}
	engine.NoRoute(staticHandler(sources, kind == modules.Front))

	return engine
}

// staticHandler serves resources from the first source that has them.
// With spa set, unknown paths fall back to the bundle's index page.
func staticHandler(sources []fs.FS, spa bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
		if isPrivate(name) {
			c.Status(http.StatusNotFound)
			return
		}
		if name == "" {
			name = modules.FrontIndex
		}

		data, info, ok := lookup(sources, name)
		if !ok && spa && path.Ext(name) == "" {
			data, info, ok = lookup(sources, modules.FrontIndex)
		}
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}

		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), bytes.NewReader(data))
	}
}

func lookup(sources []fs.FS, name string) ([]byte, fs.FileInfo, bool) {
	for _, fsys := range sources {
		info, err := fs.Stat(fsys, name)
		if err != nil {
			continue
		}
		target := name
		if info.IsDir() {
			target = path.Join(name, modules.FrontIndex)
			if info, err = fs.Stat(fsys, target); err != nil || info.IsDir() {
				continue
			}
		}
		data, err := fs.ReadFile(fsys, target)
		if err != nil {
			continue
		}
		return data, info, true
	}
	return nil, nil, false
}

func isPrivate(name string) bool {
	first, _, _ := strings.Cut(name, "/")
	for _, dir := range modules.PrivateDirs {
		if strings.EqualFold(first, dir) {
			return true
		}
	}
	return false
}
