package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"ocm-cluster-manager/pkg/clusteradm"
	"ocm-cluster-manager/pkg/config"
	"ocm-cluster-manager/pkg/handlers"
	"ocm-cluster-manager/pkg/k8s"
	"ocm-cluster-manager/pkg/kubeconfig"
	"ocm-cluster-manager/pkg/onboarding"
	"ocm-cluster-manager/pkg/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	st := store.New()
	clients := k8s.NewManager()
	cli := clusteradm.New(logger)
	orchestrator := onboarding.New(cfg, st, clients, cli, logger)
	resolver := kubeconfig.NewResolver()
	h := handlers.New(cfg, st, orchestrator, resolver, clients, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.RegisterRoutes(router.Group("/api"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("hubContext", cfg.Hub.Context))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}
