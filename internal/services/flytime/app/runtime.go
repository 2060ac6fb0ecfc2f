package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/skyfleet/flytime/internal/platform/timeouts"
	"github.com/skyfleet/flytime/internal/services/flytime/api"
	"github.com/skyfleet/flytime/internal/services/flytime/ingest"
	"github.com/skyfleet/flytime/internal/services/flytime/scheduler"
	flytimesqlite "github.com/skyfleet/flytime/internal/services/flytime/storage/sqlite"
)

// RuntimeConfig controls flight-time service startup and dependencies.
type RuntimeConfig struct {
	HTTPPort      int
	HealthPort    int
	DBPath        string
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
}

const (
	defaultHTTPPort   = 8000
	defaultHealthPort = 8001
	defaultDBPath     = "data/flytime.db"
)

// Run starts the ledger store, telemetry ingestion, maintenance scheduler,
// query API and health endpoint, and blocks until ctx ends or a server
// fails. Store and broker availability are startup requirements; everything
// after boot degrades per-message or per-tick instead of stopping the
// process.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.MQTTBrokerURL) == "" {
		return fmt.Errorf("mqtt broker url is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger storage dir: %w", err)
		}
	}

	ledgerStore, err := flytimesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger sqlite store: %w", err)
	}
	defer func() {
		if closeErr := ledgerStore.Close(); closeErr != nil {
			log.Printf("close ledger sqlite store: %v", closeErr)
		}
	}()

	processor := ingest.NewProcessor(ledgerStore, nil)
	telemetry, err := ingest.NewMQTT(ingest.MQTTConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
	}, processor)
	if err != nil {
		return fmt.Errorf("configure mqtt source: %w", err)
	}
	if err := telemetry.Connect(); err != nil {
		return fmt.Errorf("connect mqtt broker: %w", err)
	}
	defer telemetry.Close()

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	defer healthListener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("flytime.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	healthErr := make(chan error, 1)
	go func() {
		healthErr <- grpcServer.Serve(healthListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-healthErr
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewHandler(ledgerStore).Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.ListenAndServe()
	}()

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- scheduler.New(ledgerStore, nil).Run(ctx)
	}()

	log.Printf("flytime api listening at %s, health at %v", httpServer.Addr, healthListener.Addr())

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		return fmt.Errorf("serve http api: %w", err)
	case err := <-schedErr:
		if err != nil {
			return fmt.Errorf("run maintenance scheduler: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown http api: %v", err)
	}
	return nil
}
