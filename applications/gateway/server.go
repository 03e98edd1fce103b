package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/apikey"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/launch"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/lifecycle"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/oracle"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/scheduler"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/cache"
	slmetrics "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/metrics"
	slmiddleware "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/middleware"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/wallet"
)

// Deps wires every component the gateway fronts.
type Deps struct {
	Logger       *logging.Logger
	Registry     eigen.Registry
	Trades       tradelog.Store
	Payments     *payment.Gateway
	Keys         apikey.Store
	Lifecycle    *lifecycle.Controller
	Launcher     *launch.Launcher
	Oracle       *oracle.Oracle
	Quotes       *quote.Engine
	Manager      *scheduler.Manager
	Chains       *chainconfig.Registry
	ClientFor    func(chainID int64) *chain.Client
	WalletLister func(eigenID string, count int) ([]WalletRecord, error)
	DefaultChain int64
	StartedAt    time.Time
}

// WalletRecord is the public half of one derived sub-wallet.
type WalletRecord struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// Server is the HTTP gateway.
type Server struct {
	logger       *logging.Logger
	registry     eigen.Registry
	trades       tradelog.Store
	payments     *payment.Gateway
	keys         apikey.Store
	lifecycle    *lifecycle.Controller
	launcher     *launch.Launcher
	oracle       *oracle.Oracle
	quotes       *quote.Engine
	manager      *scheduler.Manager
	chains       *chainconfig.Registry
	clientFor    func(chainID int64) *chain.Client
	walletLister func(eigenID string, count int) ([]WalletRecord, error)
	defaultChain int64
	startedAt    time.Time
	limiter      *WindowLimiter
	authCache    *cache.TokenCache
}

// NewServer builds a Server over deps.
func NewServer(deps Deps) *Server {
	return &Server{
		logger:       deps.Logger,
		registry:     deps.Registry,
		trades:       deps.Trades,
		payments:     deps.Payments,
		keys:         deps.Keys,
		lifecycle:    deps.Lifecycle,
		launcher:     deps.Launcher,
		oracle:       deps.Oracle,
		quotes:       deps.Quotes,
		manager:      deps.Manager,
		chains:       deps.Chains,
		clientFor:    deps.ClientFor,
		walletLister: deps.WalletLister,
		defaultChain: deps.DefaultChain,
		startedAt:    deps.StartedAt,
		limiter:      NewWindowLimiter(),
		authCache:    cache.NewTokenCache(cache.DefaultConfig()),
	}
}

// Stop releases the limiter's sweep goroutine.
func (s *Server) Stop() {
	s.limiter.Stop()
}

// Router assembles the full route table with the ambient middleware
// stack.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(slmiddleware.LoggingMiddleware(s.logger))
	router.Use(slmiddleware.NewRecoveryMiddleware(s.logger).Handler)
	router.Use(slmiddleware.NewBodyLimitMiddleware(0).Handler)
	if slmetrics.Enabled() {
		collector := slmetrics.Init("gateway")
		router.Use(slmiddleware.MetricsMiddleware("gateway", collector))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()

	// Purchase endpoints: unauthenticated (payment is the credential),
	// limited as their own route class.
	purchase := api.PathPrefix("").Subrouter()
	purchase.Use(s.limiter.Middleware(ClassPurchase))
	purchase.HandleFunc("/agents/buy-volume", s.handleBuyVolume).Methods(http.MethodPost)
	purchase.HandleFunc("/launch", s.handleLaunch).Methods(http.MethodPost)

	// Read-only public queries.
	public := api.PathPrefix("").Subrouter()
	public.Use(s.limiter.Middleware(ClassPublic))
	public.HandleFunc("/tokens/{address}/verify", s.handleVerifyToken).Methods(http.MethodGet)
	public.HandleFunc("/eigens", s.handleListEigens).Methods(http.MethodGet)
	public.HandleFunc("/eigens/{id}", s.handleGetEigen).Methods(http.MethodGet)
	public.HandleFunc("/eigens/{id}/trades", s.handleEigenTrades).Methods(http.MethodGet)
	public.HandleFunc("/eigens/{id}/pnl", s.handleEigenPnl).Methods(http.MethodGet)
	public.HandleFunc("/eigens/{id}/wallets", s.handleEigenWallets).Methods(http.MethodGet)
	public.HandleFunc("/eigens/{id}/price-history", s.handleEigenPriceHistory).Methods(http.MethodGet)
	public.HandleFunc("/pricing", s.handlePricing).Methods(http.MethodGet)
	public.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	public.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	// Key enrollment is public (the signed message is the credential);
	// key listing/revocation requires the key itself.
	public.HandleFunc("/agent/keys", s.handleCreateKey).Methods(http.MethodPost)

	agent := api.PathPrefix("/agent").Subrouter()
	agent.Use(s.requireAPIKey)
	agent.Use(s.limiter.Middleware(ClassAgent))
	agent.HandleFunc("/keys", s.handleListKeys).Methods(http.MethodGet)
	agent.HandleFunc("/keys/{prefix}", s.handleRevokeKey).Methods(http.MethodDelete)
	agent.HandleFunc("/eigens/{id}", s.handleAdjust).Methods(http.MethodPatch)
	agent.HandleFunc("/eigens/{id}/{action}", s.handleAction).Methods(http.MethodPost)

	return router
}

// WalletListerFromSecret adapts the wallet derivation to the gateway's
// read endpoint without holding the master secret in the Server itself.
func WalletListerFromSecret(masterSecret []byte) func(eigenID string, count int) ([]WalletRecord, error) {
	return func(eigenID string, count int) ([]WalletRecord, error) {
		records, err := wallet.DeriveSet(masterSecret, eigenID, count)
		if err != nil {
			return nil, err
		}
		out := make([]WalletRecord, len(records))
		for i, rec := range records {
			out[i] = WalletRecord{Index: rec.Index, Address: rec.Address}
		}
		return out, nil
	}
}
