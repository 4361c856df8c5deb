package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stockroomhq/inventory-gateway/internal/authority"
	"github.com/stockroomhq/inventory-gateway/internal/config"
	"github.com/stockroomhq/inventory-gateway/internal/models"
	"github.com/stockroomhq/inventory-gateway/internal/ratelimit"
	"github.com/stockroomhq/inventory-gateway/internal/registry"
	"github.com/stockroomhq/inventory-gateway/internal/server"
	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Connected to redis successfully")

	// Per-tenant connection and model cache
	reg := registry.New(
		registry.PostgresConnector(cfg.Tenants.DSNTemplate, storage.PoolConfig{
			MaxOpenConns: cfg.Tenants.MaxOpenConns,
			MaxIdleConns: cfg.Tenants.MaxIdleConns,
		}),
		registry.WithConnectTimeout(cfg.Tenants.ConnectTimeout()),
		registry.WithIdleTTL(cfg.Tenants.IdleTTL()),
		registry.WithSweepInterval(cfg.Tenants.SweepInterval()),
	)
	reg.Start()
	defer reg.Stop()

	authClient := authority.NewClient(cfg.Authority)

	deps := server.Deps{
		Redis:      redis,
		LimitStore: ratelimit.NewRedisStore(redis),
		Registry:   reg,
		Authority:  authClient,
	}

	// Optional ops database for access logging
	if cfg.OpsDB.DSN != "" {
		opsDB, err := storage.NewPostgres(cfg.OpsDB.DSN, storage.PoolConfig{})
		if err != nil {
			log.Fatalf("Failed to connect to ops database: %v", err)
		}
		defer opsDB.Close()

		if err := opsDB.AutoMigrate(&models.RequestLog{}); err != nil {
			log.Fatalf("Failed to migrate ops database: %v", err)
		}

		deps.OpsDB = opsDB
	}

	srv := server.New(cfg, deps)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
