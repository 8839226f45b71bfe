// Package api implements the management API collaborator spec.md §6 names:
// a gin router fronting the Job Manager and Service Registry, a chi-mounted
// health sub-router, a Prometheus /metrics route, and a websocket job-log
// tail supplementing the original's log-ring-buffer surface
// (src/logs, LogBuffer/LogBufferLayer in main.rs).
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/metrics"
	"github.com/mstreamio/mstream/internal/registry"
)

// Server fronts a Manager and Registry with the management API's HTTP
// surface.
type Server struct {
	engine *gin.Engine

	manager  *jobmanager.Manager
	registry *registry.Registry
	log      *logging.Logger
	tail     *LogTail

	SchemaCollaborator    SchemaCollaborator
	TransformCollaborator TransformCollaborator
	ResourceLister        ResourceLister
}

// New builds a Server with a pipeline dry runner as its
// TransformCollaborator. SchemaCollaborator and ResourceLister are left nil;
// routes that need them respond 501 until one is assigned, per spec.md §1's
// out-of-scope collaborator boundary.
func New(manager *jobmanager.Manager, reg *registry.Registry, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewDefault()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		manager:  manager,
		registry: reg,
		log:      log,
		tail:     NewLogTail(log),
	}
	s.TransformCollaborator = NewPipelineDryRunner(manager)
	s.routes()
	return s
}

// Tail returns the server's log tail broadcaster, so the job handler's
// logger hook can feed it lines as connectors run.
func (s *Server) Tail() *LogTail { return s.tail }

// ServeHTTP satisfies http.Handler so Server can be passed directly to
// http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.engine.Any("/healthz/*path", gin.WrapH(healthRouter()))
	s.engine.GET("/jobs/:name/logs/tail", func(c *gin.Context) {
		s.tail.ServeWS(c.Writer, c.Request, c.Param("name"))
	})

	jobs := s.engine.Group("/jobs")
	{
		jobs.GET("", s.listJobs)
		jobs.POST("", s.createJob)
		jobs.GET("/:name", s.getJob)
		jobs.POST("/:name/stop", s.stopJob)
		jobs.POST("/:name/restart", s.restartJob)
		jobs.GET("/:name/checkpoints", s.listCheckpoints)
	}

	services := s.engine.Group("/services")
	{
		services.GET("", s.listServices)
		services.GET("/:name", s.getService)
		services.GET("/:name/resources", s.listResources)
	}

	schema := s.engine.Group("/schema")
	{
		schema.POST("/fill", s.schemaFill)
		schema.POST("/convert", s.schemaConvert)
	}

	s.engine.POST("/transform/run", s.transformRun)
}

// requestLogger mirrors the teacher's structured-request-logging middleware
// shape (method, path, status, latency) over logrus instead of zap.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			Info("api request")
	}
}

// healthRouter is a chi sub-router mounted under /healthz, grounded on the
// teacher's infrastructure/service/healthcheck.go + probes.go liveness /
// readiness split.
func healthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
