// Package httpserver exposes internal/engine's lifecycle over HTTP, the
// way server/routes.go wraps its scheduler in a gin.Engine: a handful of
// JSON/ndjson routes over one long-lived process-wide object.
//
// Grounded on server/routes.go's Serve/cors wiring and
// server/routes_generate.go's ndjson streaming handlers, adapted from a
// multi-model registry keyed by model name to a single-engine facade
// around internal/engine.Engine.
package httpserver

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/objectstore"
)

// requestID assigns every inbound request a UUID, echoed back in the
// X-Request-Id response header and usable by handlers to correlate their
// logs with internal/engine's own request_id-tagged log lines.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// Server bundles a single Engine with the object store its bundles live
// under.
type Server struct {
	Engine *engine.Engine
	Store  *objectstore.Store
}

// New wires a gin.Engine exposing Server's routes. allowedOrigins is the
// CORS allowlist; when it is empty, http://127.0.0.1 and
// http://localhost are allowed.
func New(s *Server, allowedOrigins []string) *gin.Engine {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "Accept"}
	corsConfig.AllowOrigins = allowedOrigins
	if len(allowedOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://127.0.0.1", "http://localhost"}
	}

	r := gin.Default()
	r.Use(cors.New(corsConfig), requestID())

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "localinfer is running") })
	r.GET("/api/state", s.StateHandler)
	r.POST("/api/convert", s.ConvertHandler)
	r.POST("/api/load", s.LoadHandler)
	r.POST("/api/generate", s.GenerateHandler)
	r.POST("/api/stop", s.StopHandler)
	r.POST("/api/unload", s.UnloadHandler)

	return r
}
