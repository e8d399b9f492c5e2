package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DimaJoyti/contractfabric/internal/idx"
	"github.com/DimaJoyti/contractfabric/internal/store"
	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/kafka"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// defaultRPCEndpoints maps each network to its public Horizon endpoint,
// used when the matching STELLAR_RPC_<NET> variable is unset.
var defaultRPCEndpoints = map[string]string{
	"mainnet":   "https://horizon.stellar.org",
	"testnet":   "https://horizon-testnet.stellar.org",
	"futurenet": "https://horizon-futurenet.stellar.org",
}

// envConfig holds the indexer's environment-sourced settings. The gateway
// reads a YAML file; the indexer is configured entirely from the
// environment.
type envConfig struct {
	Network          string `validate:"required,oneof=mainnet testnet futurenet"`
	RPCEndpoint      string `validate:"required,url"`
	DatabaseURL      string `validate:"required"`
	DBMaxConnections int    `validate:"min=1"`
	PollIntervalSec  int    `validate:"min=1,max=300"`
	BackoffBaseSec   int    `validate:"min=1"`
	BackoffMaxSec    int    `validate:"min=1"`
	CheckpointDepth  int64  `validate:"min=1"`
	KafkaBrokers     string
	KafkaTopic       string
}

func loadEnvConfig() (envConfig, error) {
	_ = godotenv.Load()

	network := getenv("STELLAR_NETWORK", "testnet")
	cfg := envConfig{
		Network:          network,
		RPCEndpoint:      getenv("STELLAR_RPC_"+strings.ToUpper(network), defaultRPCEndpoints[network]),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConnections: getenvInt("DB_MAX_CONNECTIONS", 10),
		PollIntervalSec:  getenvInt("STELLAR_POLL_INTERVAL_SECS", 30),
		BackoffBaseSec:   getenvInt("INDEXER_BACKOFF_BASE_SECS", 2),
		BackoffMaxSec:    getenvInt("INDEXER_BACKOFF_MAX_SECS", 60),
		CheckpointDepth:  int64(getenvInt("INDEXER_REORG_CHECKPOINT_DEPTH", 10)),
		KafkaBrokers:     os.Getenv("INDEXER_KAFKA_BROKERS"),
		KafkaTopic:       getenv("INDEXER_KAFKA_TOPIC", "contract-deployments"),
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return envConfig{}, fmt.Errorf("validate indexer config: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func metricsAddr() string {
	return getenv("INDEXER_METRICS_ADDR", ":9102")
}

func main() {
	cfg, err := loadEnvConfig()
	if err != nil {
		log.Fatalf("invalid indexer configuration: %v", err)
	}

	appLog := logger.New("indexer")
	defer appLog.Sync()

	db, err := store.Open(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxConnections/2)
	if err != nil {
		appLog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := store.NewPostgres(db, appLog)
	rpc := idx.NewRPCClient(cfg.RPCEndpoint, 30*time.Second)

	var publisher idx.Publisher
	if cfg.KafkaBrokers != "" {
		producer, err := kafka.NewProducer(&kafka.Config{
			Brokers:      strings.Split(cfg.KafkaBrokers, ","),
			RequiredAcks: "all",
		})
		if err != nil {
			appLog.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()
		publisher = idx.NewKafkaPublisher(producer, cfg.KafkaTopic)
		appLog.Info("publishing deployment events to kafka", zap.String("topic", cfg.KafkaTopic))
	}

	idxCfg := idx.DefaultConfig(idx.Network(cfg.Network))
	idxCfg.PollInterval = time.Duration(cfg.PollIntervalSec) * time.Second
	idxCfg.BackoffBase = time.Duration(cfg.BackoffBaseSec) * time.Second
	idxCfg.BackoffMax = time.Duration(cfg.BackoffMaxSec) * time.Second
	idxCfg.CheckpointDepth = cfg.CheckpointDepth

	indexer := idx.New(idxCfg, rpc, repo, publisher, clock.Real{}, appLog)
	indexer.SetMetrics(idx.NewMetrics(prometheus.DefaultRegisterer))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr(), mux); err != nil && err != http.ErrServerClosed {
			appLog.Warn("metrics server exited", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("indexer starting", zap.String("network", cfg.Network), zap.String("rpc_endpoint", cfg.RPCEndpoint))
	if err := indexer.Run(ctx); err != nil {
		appLog.Fatal("indexer exited with error", zap.Error(err))
	}
	appLog.Info("indexer stopped")
}
