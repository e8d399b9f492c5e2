package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/DimaJoyti/contractfabric/internal/api"
	"github.com/DimaJoyti/contractfabric/internal/cache"
	"github.com/DimaJoyti/contractfabric/internal/lb"
	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/config"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// gatewayServer owns the load balancer, optional cache, and the HTTP
// front end behind an initialize/start/shutdown lifecycle.
type gatewayServer struct {
	config       *config.Config
	logger       *logger.Logger
	lb           *lb.Service
	cache        *cache.Cache
	cacheMetrics *cache.PrometheusCollectors
	httpServer   *http.Server
	stopMetrics  chan struct{}
}

func main() {
	fmt.Println("Starting Contract Request Fabric gateway...")

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Printf("using default configuration: %v", err)
		cfg = config.Default()
	}

	log := logger.New("fabric-gateway")
	defer log.Sync()

	srv := &gatewayServer{config: cfg, logger: log}
	if err := srv.initialize(); err != nil {
		log.Fatal("failed to initialize gateway", zap.Error(err))
	}
	if err := srv.start(); err != nil {
		log.Fatal("failed to start gateway", zap.Error(err))
	}

	srv.waitForShutdown()

	if err := srv.shutdown(); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("gateway stopped")
}

func configPath() string {
	if p := os.Getenv("FABRIC_GATEWAY_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func (s *gatewayServer) initialize() error {
	s.logger.Info("initializing gateway")

	var sessions lb.SessionStore
	if s.config.LB.SessionBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", s.config.Redis.Host, s.config.Redis.Port),
			Password: s.config.Redis.Password,
			DB:       s.config.Redis.DB,
			PoolSize: s.config.Redis.PoolSize,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis session store: %w", err)
		}
		sessions = lb.NewRedisSessionStore(client, "fabric:session:")
		s.logger.Info("using redis session store")
	}

	lbCfg := lb.Config{
		Algorithm:           lb.AlgorithmName(s.config.LB.Algorithm),
		SessionTTL:          time.Duration(s.config.LB.SessionTTLSecs) * time.Second,
		HealthCheckInterval: time.Duration(s.config.LB.HealthCheckIntervalSecs) * time.Second,
		UnhealthyThreshold:  int32(s.config.LB.UnhealthyThreshold),
	}
	s.lb = lb.NewService(lbCfg, s.logger, clock.Real{}, sessions, nil)
	s.lb.SetMetrics(lb.NewMetrics(prometheus.DefaultRegisterer))
	s.lb.Start()

	if s.config.Cache.Enabled {
		cacheCfg := cache.Config{
			Policy:      cache.Policy(s.config.Cache.Policy),
			GlobalTTL:   s.config.Cache.GlobalTTL,
			MaxCapacity: s.config.Cache.MaxCapacity,
			Shards:      s.config.Cache.Shards,
		}
		s.cache = cache.New(cacheCfg, clock.Real{})
		s.cacheMetrics = cache.NewPrometheusCollectors(prometheus.DefaultRegisterer)
		s.stopMetrics = make(chan struct{})
		go s.reportCacheMetrics()
	}

	router := api.NewRouter(s.config, s.lb, s.cache, s.logger)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("gateway initialized", zap.Int("port", s.config.Server.Port))
	return nil
}

func (s *gatewayServer) start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	s.logger.Info("gateway listening", zap.Int("port", s.config.Server.Port))
	return nil
}

// reportCacheMetrics periodically refreshes the cache's Prometheus gauges
// and counters from its in-process snapshot.
func (s *gatewayServer) reportCacheMetrics() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var prevHits, prevMisses uint64
	for {
		select {
		case <-ticker.C:
			m := s.cache.Metrics()
			s.cacheMetrics.Observe(m, prevHits, prevMisses)
			prevHits, prevMisses = m.Hits, m.Misses
		case <-s.stopMetrics:
			return
		}
	}
}

func (s *gatewayServer) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (s *gatewayServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.lb.Stop()
	if s.stopMetrics != nil {
		close(s.stopMetrics)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shut down http server: %w", err)
		}
	}
	return nil
}
