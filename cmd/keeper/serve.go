package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/applications/gateway"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/launch"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/lifecycle"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/oracle"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/scheduler"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/config"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/database"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/database/migrations"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/ratelimit"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/state"
)

func runServe() int {
	logger := logging.NewFromEnv("keeper")
	ctx := context.Background()

	cfg, missing := loadConfig()
	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "keeper serve: missing required environment: %v\n", missing)
		return exitConfig
	}

	provider, err := secretsProvider()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: secrets: %v\n", err)
		return exitConfig
	}
	masterSecret, err := provider.MasterKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: keeper master secret unavailable: %v\n", err)
		return exitConfig
	}
	facilitatorURL, err := provider.FacilitatorURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: facilitator URL unavailable: %v\n", err)
		return exitConfig
	}
	facilitatorAPIKey, _ := provider.FacilitatorAPIKey()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: database: %v\n", err)
		return exitRuntime
	}
	defer db.Close()
	if err := migrations.Apply(db); err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: migrations: %v\n", err)
		return exitRuntime
	}

	// Chain config and a Chain Client per configured chain: chains.yaml
	// when CHAINS_CONFIG points at one, otherwise the single chain
	// described by the environment.
	var chains *chainconfig.Registry
	chainIDs := []int64{cfg.ChainID}
	if path := config.GetEnv("CHAINS_CONFIG", ""); path != "" {
		chainsCfg, loadErr := config.LoadChainsConfig(path)
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "keeper serve: %v\n", loadErr)
			return exitConfig
		}
		chains = chainsCfg.ToRegistry()
		chainIDs = chainIDs[:0]
		for _, c := range chainsCfg.Chains {
			chainIDs = append(chainIDs, c.ChainID)
		}
	} else {
		endpoints := make([]chainconfig.Endpoint, 0, len(cfg.RPCEndpoints))
		for i, url := range cfg.RPCEndpoints {
			endpoints = append(endpoints, chainconfig.Endpoint{URL: url, Priority: i, Weight: 1})
		}
		chains = chainconfig.NewRegistry([]*chainconfig.Chain{{
			ChainID:            cfg.ChainID,
			NativeSymbol:       "ETH",
			Endpoints:          endpoints,
			StablecoinAddress:  cfg.StablecoinAddress,
			RouterAddress:      cfg.RouterAddress,
			BondingCurveRouter: cfg.BondingCurveRouter,
			ConfirmationDepth:  cfg.ConfirmationDepth,
		}})
	}
	if chains.Get(cfg.ChainID) == nil {
		fmt.Fprintf(os.Stderr, "keeper serve: CHAIN_ID %d is not present in the chain config\n", cfg.ChainID)
		return exitConfig
	}
	clients := make(map[int64]*chain.Client, len(chainIDs))
	for _, chainID := range chainIDs {
		clients[chainID] = chain.NewClient(chain.NewPool(chains.Get(chainID)), chainID, logger)
	}
	clientFor := func(chainID int64) *chain.Client {
		return clients[chainID]
	}
	nonces := chain.NewNonceTracker()

	// Stores.
	eigenStore := database.NewEigenStore(db)
	tradeStore := database.NewTradeLogStore(db)
	paymentStore := database.NewPaymentStore(db)
	keyStore := database.NewAPIKeyStore(db)
	quotePrices := database.NewQuotePriceStore(db)

	// Payment gateway with its CAS lock.
	var locker payment.Locker
	if cfg.RedisURL != "" {
		opts, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "keeper serve: REDIS_URL: %v\n", parseErr)
			return exitConfig
		}
		locker = payment.NewRedisLocker(redis.NewClient(opts), 30*time.Second)
	} else {
		logger.Warn(ctx, "REDIS_URL not set; using in-process payment locks", nil)
		locker = payment.NewMemoryLocker(30 * time.Second)
	}
	facilitator := payment.NewHTTPFacilitator(facilitatorURL, facilitatorAPIKey, logger)
	payments := payment.NewGateway(
		paymentStore, locker, facilitator, clientFor,
		func(chainID int64) payment.StablecoinConfig {
			address := cfg.StablecoinAddress
			if c := chains.Get(chainID); c != nil && c.StablecoinAddress != "" {
				address = c.StablecoinAddress
			}
			return payment.StablecoinConfig{Address: address, Name: cfg.StablecoinName, Version: cfg.StablecoinVersion}
		},
		func(chainID int64) string { return cfg.PaymentRecipient },
		func(chainID int64) int { return chains.Get(chainID).ConfirmationDepthOrDefault() },
	)

	// Quote engine and oracle.
	quotes := quote.NewEngine(chains, clientFor)
	priceOracle := oracle.New(quotes, quotePrices, nil)

	cursors, err := state.NewPersistentState(state.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper serve: state: %v\n", err)
		return exitRuntime
	}

	// Scheduler.
	manager := scheduler.NewManager(scheduler.Deps{
		Registry:     eigenStore,
		Trades:       tradeStore,
		Quotes:       quotes,
		Chains:       chains,
		ClientFor:    clientFor,
		Nonces:       nonces,
		MasterSecret: masterSecret,
		Logger:       logger,
		Cursors:      cursors,
	})
	manager.Start(ctx)
	if err := manager.ResumeRunnable(ctx); err != nil {
		logger.Warn(ctx, "resume runnable eigens failed", map[string]interface{}{"error": err.Error()})
	}

	controller := lifecycle.New(eigenStore, manager, logger)
	launcher := launch.New(chains, clientFor, nonces, masterSecret, logger)

	server := gateway.NewServer(gateway.Deps{
		Logger:       logger,
		Registry:     eigenStore,
		Trades:       tradeStore,
		Payments:     payments,
		Keys:         keyStore,
		Lifecycle:    controller,
		Launcher:     launcher,
		Oracle:       priceOracle,
		Quotes:       quotes,
		Manager:      manager,
		Chains:       chains,
		ClientFor:    clientFor,
		WalletLister: gateway.WalletListerFromSecret(masterSecret),
		DefaultChain: cfg.ChainID,
		StartedAt:    time.Now().UTC(),
	})
	defer server.Stop()

	// Background jobs: hourly quote-token USD refresh and the
	// verified-but-unconsumed payment sweep.
	jobs := cron.New()
	if len(cfg.QuoteTokens) > 0 {
		source := usdSource(cfg.PriceFeedURL)
		_, _ = jobs.AddFunc("7 * * * *", func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if errs, refreshErr := oracle.Refresh(jobCtx, quotePrices, source, cfg.QuoteTokens, nil); refreshErr != nil {
				logger.Warn(jobCtx, "quote price refresh failed", map[string]interface{}{"error": refreshErr.Error()})
			} else if len(errs) > 0 {
				logger.Warn(jobCtx, "quote price refresh partial", map[string]interface{}{"failed_tokens": len(errs)})
			}
		})
	}
	_, _ = jobs.AddFunc("*/5 * * * *", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, sweepErr := payments.SweepExpired(jobCtx); sweepErr != nil {
			logger.Warn(jobCtx, "payment sweep failed", map[string]interface{}{"error": sweepErr.Error()})
		} else if n > 0 {
			logger.Info(jobCtx, "expired verified payments returned to failed", map[string]interface{}{"count": n})
		}
	})
	jobs.Start()
	defer jobs.Stop()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "keeper listening", map[string]interface{}{"port": cfg.Port, "chain_id": cfg.ChainID})
		if serveErr := httpServer.ListenAndServe(); serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errCh:
		fmt.Fprintf(os.Stderr, "keeper serve: %v\n", serveErr)
		return exitRuntime
	case <-sigCh:
	}

	logger.Info(ctx, "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "http shutdown error", map[string]interface{}{"error": err.Error()})
	}
	manager.Shutdown()
	return exitOK
}

// usdSource resolves a quote token's USD price from the configured feed,
// defaulting to 1.0 (stablecoin-quoted pools) when no feed is set.
func usdSource(feedURL string) oracle.Source {
	if feedURL == "" {
		return func(ctx context.Context, quoteToken string) (float64, error) {
			return 1.0, nil
		}
	}
	// The feed is a paid API; keep its request rate bounded independently
	// of the chain RPC pool.
	feedClient := ratelimit.NewRateLimitedClient(&http.Client{Timeout: 15 * time.Second}, ratelimit.DefaultConfig())
	return func(ctx context.Context, quoteToken string) (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL+"?token="+quoteToken, nil)
		if err != nil {
			return 0, err
		}
		resp, err := feedClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("price feed: http %d", resp.StatusCode)
		}
		var body struct {
			USD float64 `json:"usd"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, err
		}
		return body.USD, nil
	}
}
