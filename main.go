package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinchain/backend/auth"
	"github.com/clinchain/backend/config"
	"github.com/clinchain/backend/ledger"
	"github.com/clinchain/backend/metrics"
	"github.com/clinchain/backend/repository"
	"github.com/clinchain/backend/server"
	"github.com/clinchain/backend/service"
)

var httpPort string

func init() {
	flag.StringVar(&httpPort, "http-port", "", "HTTP web server port (overrides CLINCHAIN_HTTP_PORT)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if httpPort != "" {
		cfg.HTTPPort = httpPort
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))

	// Connect Postgresql DB
	repo := repository.NewRepository(logger)
	if err := repo.ConnectDB(cfg.DatabaseDSN); err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		log.Fatalf("Migrating database: %v", err)
	}
	if cfg.SeedDatabase {
		if err := repo.Seed(cfg.SeedPassword); err != nil {
			log.Fatalf("Seeding database: %v", err)
		}
	}

	// Ledger gateway
	gasPrice, err := cfg.Ledger.GasPrice()
	if err != nil {
		log.Fatalf("Parsing gas price: %v", err)
	}
	credentials, err := ledger.NewCredentialResolver(cfg.Ledger.RoleKeys)
	if err != nil {
		log.Fatalf("Loading signing identities: %v", err)
	}
	rpcClient := ledger.NewClient(cfg.Ledger.RPCURL, cfg.Ledger.RequestTimeout, cfg.Ledger.PollInterval, logger)
	gateway, err := ledger.NewGateway(rpcClient, credentials, ledger.GatewayConfig{
		ContractAddress: cfg.Ledger.ContractAddress,
		ChainID:         cfg.Ledger.ChainID,
		GasPrice:        gasPrice,
		GasLimit:        cfg.Ledger.GasLimit,
		ConfirmTimeout:  cfg.Ledger.ConfirmTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("Creating ledger gateway: %v", err)
	}

	// Services
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	lotStore := repository.NewLotStore(repo.DB())
	userStore := repository.NewUserStore(repo.DB())
	tokens := auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTTTL)
	lotService := service.NewLotService(lotStore, userStore, gateway, m, logger)
	authService := service.NewAuthService(userStore, tokens, logger)

	// Start Web Server
	webserver := server.NewWebServer(cfg.HTTPPort, lotService, authService, tokens, registry, logger)
	if err := webserver.Start(); err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
