package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/authority"
	"github.com/stockroomhq/inventory-gateway/internal/config"
	"github.com/stockroomhq/inventory-gateway/internal/handler"
	"github.com/stockroomhq/inventory-gateway/internal/middleware"
	"github.com/stockroomhq/inventory-gateway/internal/ratelimit"
	"github.com/stockroomhq/inventory-gateway/internal/registry"
	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	limitStore ratelimit.Store
	spike      *ratelimit.LocalStore
	registry   *registry.Registry
	authority  *authority.Client
	inventory  *handler.InventoryHandler
	logWriter  *middleware.RequestLogWriter
	httpServer *http.Server
}

// Deps carries the process-wide singletons the server composes. They are
// constructed explicitly in main (or in tests) rather than reached through
// package state.
type Deps struct {
	Redis      *storage.RedisClient
	LimitStore ratelimit.Store
	Registry   *registry.Registry
	Authority  *authority.Client

	// Optional: request logging is off when nil.
	OpsDB *storage.Postgres
}

func New(cfg *config.Config, deps Deps) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		router:     router,
		config:     cfg,
		redis:      deps.Redis,
		limitStore: deps.LimitStore,
		registry:   deps.Registry,
		authority:  deps.Authority,
		inventory:  handler.NewInventoryHandler(deps.Registry),
	}

	if cfg.RateLimit.SpikeRPS > 0 {
		s.spike = ratelimit.NewLocalStore(cfg.RateLimit.SpikeRPS, cfg.RateLimit.SpikeBurst)
		s.spike.StartJanitor(context.Background())
	}

	if deps.OpsDB != nil {
		s.logWriter = middleware.NewRequestLogWriter(deps.OpsDB, cfg.OpsDB.LogBufferSize)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Fixed pipeline order: burst and anonymous-sustained checks run before
// identity is resolved; the plan-sustained check runs right after. Any
// stage may short-circuit with a response.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())

	if s.logWriter != nil {
		s.router.Use(s.logWriter.Middleware())
	}

	s.router.Use(middleware.SpikeFilter(s.spike))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	admin := s.router.Group("/admin")
	{
		admin.GET("/status", s.adminStatus)
	}

	ceilings := ratelimit.NewPlanCeilings(s.config.RateLimit.Plans)

	api := s.router.Group("/api/v1")
	api.Use(middleware.BurstLimit(s.limitStore, s.config.RateLimit.Burst.Limit, s.config.RateLimit.Burst.Window()))
	api.Use(middleware.AnonymousSustained(s.limitStore, s.config.RateLimit.AnonymousRequestsPerHour))
	api.Use(middleware.Authenticate(s.authority))
	api.Use(middleware.PlanSustained(s.limitStore, ceilings))
	{
		api.GET("/products", s.inventory.ListProducts)
		api.POST("/products", s.inventory.CreateProduct)
		api.GET("/stock-levels", s.inventory.ListStockLevels)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			redisHealthy = false
			log.Printf("Redis health check failed: %v", err)
		}
	} else {
		redisHealthy = false
	}

	authorityHealthy := s.authority.Pool().Healthy()

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !authorityHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "inventory-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":     redisHealthy,
			"authority": authorityHealthy,
			"tenants":   s.registry.Len(),
		},
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateway":   "running",
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().Unix(),
		"tenants":   s.registry.Snapshot(),
		"authority": s.authority.Pool().Snapshot(),
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting inventory gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if s.logWriter != nil {
		defer s.logWriter.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
