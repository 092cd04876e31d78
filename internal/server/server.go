package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/audit"
	"github.com/nimbafinance/edge-gateway/internal/config"
	"github.com/nimbafinance/edge-gateway/internal/fees"
	"github.com/nimbafinance/edge-gateway/internal/interceptor"
	"github.com/nimbafinance/edge-gateway/internal/keystore"
)

// Server is the inbound HTTP surface: the proxy entrypoint feeding the
// pipeline, session provisioning, the fee preview and the security console
// read side.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	chain      *interceptor.Chain
	dispatcher *interceptor.Dispatcher
	sessions   *keystore.Store
	auditStore *audit.Store
	hub        *audit.Hub
}

// New creates the server. auditStore may be nil when the console read side is
// disabled.
func New(cfg *config.Config, logger *zap.Logger, chain *interceptor.Chain, dispatcher *interceptor.Dispatcher, sessions *keystore.Store, auditStore *audit.Store, hub *audit.Hub) *Server {
	return &Server{
		config:     cfg,
		logger:     logger,
		chain:      chain,
		dispatcher: dispatcher,
		sessions:   sessions,
		auditStore: auditStore,
		hub:        hub,
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	if !s.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"stages": s.chain.Stages(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.hub.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		session := api.Group("/session")
		{
			session.POST("/:id/key", s.provisionKey)
			session.PUT("/:id/token", s.storeToken)
			session.DELETE("/:id", s.clearSession)
		}

		api.POST("/fees/preview", s.previewFee)

		api.Any("/proxy/*path", s.proxy)

		auditGroup := api.Group("/audit")
		{
			auditGroup.GET("/events", s.listEvents)
			auditGroup.GET("/stats", s.eventStats)
		}
	}

	return r
}

type provisionKeyRequest struct {
	Passphrase string `json:"passphrase" binding:"required,min=8"`
}

func (s *Server) provisionKey(c *gin.Context) {
	var req provisionKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sessions.ProvisionKey(c.Request.Context(), c.Param("id"), req.Passphrase); err != nil {
		s.logger.Error("key provisioning failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision session key"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "provisioned"})
}

type storeTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) storeToken(c *gin.Context) {
	var req storeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.sessions.SetToken(c.Request.Context(), c.Param("id"), req.Token)
	if err == keystore.ErrKeyNotProvisioned {
		c.JSON(http.StatusConflict, gin.H{"error": "Session key must be provisioned first"})
		return
	}
	if err != nil {
		s.logger.Error("token storage failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

func (s *Server) clearSession(c *gin.Context) {
	if err := s.sessions.ClearSession(c.Request.Context(), c.Param("id")); err != nil {
		s.logger.Error("session clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

type feePreviewRequest struct {
	Amount   float64 `json:"amount" binding:"required"`
	Type     string  `json:"type" binding:"required"`
	Currency string  `json:"currency" binding:"required,len=3"`
}

func (s *Server) previewFee(c *gin.Context) {
	var req feePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	calculation, err := fees.Calculate(req.Amount, fees.TransactionKind(req.Type), req.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, calculation)
}

func (s *Server) listEvents(c *gin.Context) {
	if s.auditStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit store is not enabled"})
		return
	}
	filters := audit.Filters{
		Type:     c.Query("type"),
		Severity: c.Query("severity"),
		UserID:   c.Query("user_id"),
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = &t
		}
	}
	if until := c.Query("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filters.Until = &t
		}
	}
	events, err := s.auditStore.List(c.Request.Context(), filters)
	if err != nil {
		s.logger.Error("event listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) eventStats(c *gin.Context) {
	if s.auditStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit store is not enabled"})
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}
	stats, err := s.auditStore.Stats(c.Request.Context(), since)
	if err != nil {
		s.logger.Error("stats aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
