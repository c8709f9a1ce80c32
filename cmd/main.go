package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keyvault-service/keyvault_service/internal/adapters/mailer"
	"github.com/keyvault-service/keyvault_service/internal/adapters/pricefeed"
	"github.com/keyvault-service/keyvault_service/internal/adapters/tradenet"
	"github.com/keyvault-service/keyvault_service/internal/adapters/walletrpc"
	"github.com/keyvault-service/keyvault_service/internal/api/handlers"
	"github.com/keyvault-service/keyvault_service/internal/api/routes"
	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/classifier"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/oracle"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/registry"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/settlement"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/cache"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/database"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/repositories"
	"github.com/keyvault-service/keyvault_service/internal/workers/pricerefresh"
	"github.com/keyvault-service/keyvault_service/internal/workers/statusrefresh"
	"github.com/keyvault-service/keyvault_service/internal/workers/txpoller"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
	"github.com/keyvault-service/keyvault_service/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if cfg.Maintenance {
		log.Warn("Maintenance mode is on; offers from non-admins are ignored")
	}
	if cfg.PermissiveTestMode {
		log.Warn("Permissive test mode is on; the item allow-list is disabled")
	}

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database connection", "error", err)
		}
	}()

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Cursor store, namespaced per network
	cursorStore, err := cache.NewCursorStore(cfg.Redis, cfg.Wallet.Network, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to redis", "error", err)
	}
	defer func() {
		if err := cursorStore.Close(); err != nil {
			log.Warn("Failed to close redis connection", "error", err)
		}
	}()

	// Wallet RPC client for the active network
	activeNet, err := cfg.Wallet.Active()
	if err != nil {
		log.Fatal("Invalid wallet configuration", "error", err)
	}
	wallet := walletrpc.NewClient(walletrpc.Config{
		URL:     activeNet.RPCURL,
		Timeout: time.Duration(cfg.Wallet.TimeoutSeconds) * time.Second,
	}, log)

	// Startup probes: fail fast if the wallet node is unreachable
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 30*time.Second)
	unlocked, err := wallet.GetBalance(probeCtx)
	if err != nil {
		log.Fatal("Wallet node unreachable (getbalance)", "error", err)
	}
	height, err := wallet.GetHeight(probeCtx)
	if err != nil {
		log.Fatal("Wallet node unreachable (getheight)", "error", err)
	}
	cancelProbe()
	log.Info("Wallet node reachable",
		"network", cfg.Wallet.Network,
		"unlocked_balance_coin", entities.CoinFromAtomic(unlocked).String(),
		"height", height,
		"min_block_height", cfg.Wallet.MinBlockHeight,
	)

	// Manual cursor seeding; config validation only allows this in maintenance
	if cfg.Wallet.CursorOverride != "" {
		seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
		if err := cursorStore.Set(seedCtx, cfg.Wallet.CursorOverride); err != nil {
			log.Fatal("Failed to seed poll cursor", "error", err)
		}
		cancelSeed()
		log.Warn("Poll cursor overridden", "txid", cfg.Wallet.CursorOverride)
	}

	// Price oracle with one blocking initial fetch; quoting stays disabled
	// until a fetch succeeds
	feed := pricefeed.NewClient(pricefeed.Config{
		URL:     cfg.PriceFeed.URL,
		APIKey:  cfg.PriceFeed.APIKey,
		AssetID: cfg.PriceFeed.AssetID,
		Timeout: time.Duration(cfg.PriceFeed.TimeoutSeconds) * time.Second,
	}, log)
	oracleSvc := oracle.NewService(feed, log)

	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), 30*time.Second)
	if err := oracleSvc.Refresh(refreshCtx); err != nil {
		log.Warn("Initial price fetch failed; quoting disabled until the next scheduled refresh", "error", err)
	}
	cancelRefresh()

	// Adapters and repositories
	alerter := mailer.NewOperatorAlerter(cfg.Email, log)
	gateway := tradenet.NewClient(tradenet.Config{
		BaseURL: cfg.TradeNet.BaseURL,
		Token:   cfg.TradeNet.APIToken,
		Timeout: time.Duration(cfg.TradeNet.TimeoutSeconds) * time.Second,
	}, log)
	customerRepo := repositories.NewCustomerRepository(db, log.Zap())
	ledgerRepo := repositories.NewLedgerRepository(db)

	countCtx, cancelCount := context.WithTimeout(context.Background(), 10*time.Second)
	if known, err := customerRepo.Count(countCtx); err != nil {
		log.Warn("Failed to count customers", "error", err)
	} else {
		log.Info("Customer registry loaded", "customers", known)
	}
	cancelCount()

	// Domain services
	registrySvc := registry.NewService(wallet, customerRepo, log)
	cls, err := classifier.New(cfg.Wallet.Network, cfg.Trading.ItemCategoryID, cfg.Trading.AllowedItemNames, cfg.PermissiveTestMode)
	if err != nil {
		log.Fatal("Failed to build offer classifier", "error", err)
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	settlementSvc, err := settlement.NewService(cfg, cls, oracleSvc, customerRepo, ledgerRepo, wallet, gateway, gateway, alerter, m, log)
	if err != nil {
		log.Fatal("Failed to build settlement engine", "error", err)
	}

	// Workers
	poller := txpoller.NewWorker(wallet, registrySvc, customerRepo, cursorStore, oracleSvc, gateway, alerter, m, log, txpoller.Config{
		MinBlockHeight: cfg.Wallet.MinBlockHeight,
		Interval:       cfg.Wallet.PollInterval(),
	})
	go poller.Start(context.Background())

	priceWorker := pricerefresh.NewWorker(oracleSvc, cfg.PriceFeed.RefreshSchedule, log)
	if err := priceWorker.Start(); err != nil {
		log.Fatal("Failed to start price refresh worker", "error", err)
	}

	statusWorker := statusrefresh.NewWorker(settlementSvc, cfg.Trading.StatusSchedule, log)
	if err := statusWorker.Start(); err != nil {
		log.Fatal("Failed to start status refresh worker", "error", err)
	}

	// Publish the initial status line
	statusCtx, cancelStatus := context.WithTimeout(context.Background(), 30*time.Second)
	settlementSvc.RefreshStatus(statusCtx)
	cancelStatus()

	// HTTP surface: ops endpoints plus the gateway webhook
	offerHandler := handlers.NewOfferHandler(settlementSvc, gateway, log)
	customerHandler := handlers.NewCustomerHandler(registrySvc, log)
	healthHandler := handlers.NewHealthHandler(db, cursorStore, oracleSvc)
	router := routes.SetupRoutes(cfg, promRegistry, offerHandler, customerHandler, healthHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting server", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	poller.Stop()
	priceWorker.Stop()
	statusWorker.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
