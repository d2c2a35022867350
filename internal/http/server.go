// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
	"dispatch/internal/logx"
	"dispatch/internal/modules/dispatch"
	"dispatch/internal/modules/ingest"
)

type ServerDeps struct {
	Coordinator *dispatch.Coordinator
	Ingest      *ingest.Service
	Params      *dispatch.ParamStore
	Gatherer    prometheus.Gatherer
	Log         logx.Logger
}

type Server struct {
	coord    *dispatch.Coordinator
	ingest   *ingest.Service
	params   *dispatch.ParamStore
	gatherer prometheus.Gatherer
	log      logx.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = logx.Nop()
	}
	return &Server{
		coord:    deps.Coordinator,
		ingest:   deps.Ingest,
		params:   deps.Params,
		gatherer: deps.Gatherer,
		log:      log,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	requestHandler := handlers.NewRequestHandler(s.coord)
	r.POST("/api/requests", requestHandler.Submit)
	r.GET("/api/requests/:id", requestHandler.Get)
	r.POST("/api/requests/:id/cancel", requestHandler.Cancel)

	agentHandler := handlers.NewAgentHandler(s.ingest, s.coord)
	r.PUT("/api/agents/:id/location", agentHandler.UpdateLocation)
	r.POST("/api/agents/:id/availability", agentHandler.SetAvailability)
	r.POST("/api/offers/decision", agentHandler.Decide)

	adminHandler := handlers.NewAdminHandler(s.params)
	r.GET("/api/admin/params", adminHandler.GetParams)
	r.PUT("/api/admin/params", adminHandler.PutParams)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
