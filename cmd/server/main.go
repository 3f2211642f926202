// Package main provides the API server entry point for the Pagent Credits
// backend.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagent-credits/backend/internal/adapter"
	"github.com/pagent-credits/backend/internal/api"
	"github.com/pagent-credits/backend/internal/auth"
	"github.com/pagent-credits/backend/internal/config"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/service"
	"github.com/pagent-credits/backend/internal/siwe"
	"github.com/pagent-credits/backend/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Database connections
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		_ = redis.Close() // nolint:errcheck // cleanup in defer
	}()

	logger.Info("Database connections established")

	// Repositories
	userRepo := storage.NewUserRepository(postgres)
	permissionRepo := storage.NewPermissionRepository(postgres)
	usageRepo := storage.NewUsageRepository(postgres)
	receiptRepo := storage.NewReceiptRepository(postgres)
	recurringRepo := storage.NewRecurringRepository(postgres)
	assignmentRepo := storage.NewAssignmentRepository(postgres)

	// Signature verification. Without an RPC endpoint the contract wallet
	// fallback is disabled and only EOA signatures verify.
	var contractVerifier siwe.ContractVerifier
	if cfg.Chain.RPCURL != "" {
		verifier, err := adapter.NewEIP1271Verifier(cfg.Chain.RPCURL, cfg.Chain.CallTimeout)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to chain RPC")
		}
		contractVerifier = verifier
	} else {
		logger.Warn("No chain RPC configured: contract wallet signatures will be rejected")
	}

	messageVerifier := siwe.NewVerifier(&siwe.VerifierConfig{
		SupportedChainIDs: cfg.SIWE.SupportedChainIDs,
		ClockSkew:         cfg.SIWE.ClockSkew,
	}, contractVerifier)

	tokenMaker, err := auth.NewTokenMaker(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TokenTTL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token maker")
	}
	nonceStore := auth.NewNonceStore(redis.Client(), cfg.SIWE.NonceTTL)

	// Spend execution
	var executor adapter.SpendExecutor
	if cfg.Chain.SimulateSpend {
		logger.Warn("Spend execution is simulated: no on-chain transactions will be submitted")
		executor = &adapter.SimulatedSpendExecutor{}
	} else {
		logger.Fatal("On-chain spend execution requires CHAIN_SIMULATE_SPEND=true until the settlement contract is deployed")
	}

	// Services
	authService := service.NewAuthService(messageVerifier, nonceStore, userRepo, tokenMaker)
	creditService := service.NewCreditService(userRepo, permissionRepo, usageRepo)
	settlementService := service.NewSettlementService(userRepo, permissionRepo, usageRepo, receiptRepo, executor)
	receiptService := service.NewReceiptService(receiptRepo)
	sweeperService := service.NewSweeperService(recurringRepo, permissionRepo, assignmentRepo)

	logger.Info("Services initialized")

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		WebhookSecret:   cfg.Webhook.Secret,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}, authService, creditService, settlementService, receiptService, sweeperService, userRepo, tokenMaker)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}
