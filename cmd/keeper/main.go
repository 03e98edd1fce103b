// Command keeper is the EigenSwarm keeper binary: `serve` runs the HTTP
// gateway and trade schedulers, `migrate` applies the database schema,
// `rotate-keeper-key` re-wraps the secret store's envelope, and
// `reconcile` audits one eigen's ledger against its trade log.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/config"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/database"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/database/migrations"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/runtime"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/secrets"
)

// Exit codes per the operator contract.
const (
	exitOK      = 0
	exitUsage   = 64
	exitConfig  = 65
	exitRuntime = 70
)

func main() {
	if runtime.IsDevelopmentOrTesting() {
		_ = godotenv.Load()
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe())
	case "migrate":
		os.Exit(runMigrate())
	case "rotate-keeper-key":
		os.Exit(runRotateKey(os.Args[2:]))
	case "reconcile":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: keeper reconcile <eigenId>")
			os.Exit(exitUsage)
		}
		os.Exit(runReconcile(os.Args[2]))
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "keeper: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(exitUsage)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: keeper <command>

commands:
  serve              run the keeper service
  migrate            apply pending database migrations
  rotate-keeper-key  re-wrap the secret store with a new root key
  reconcile <id>     audit one eigen's ledger against its trade log`)
}

// keeperConfig is everything `serve` needs, resolved from the
// environment. Missing required variables abort with exit 65.
type keeperConfig struct {
	RPCEndpoints       []string
	ChainID            int64
	DatabaseURL        string
	RedisURL           string
	StablecoinAddress  string
	StablecoinName     string
	StablecoinVersion  string
	PaymentRecipient   string
	RouterAddress      string
	BondingCurveRouter string
	ConfirmationDepth  int
	Port               int
	QuoteTokens        []string
	PriceFeedURL       string
}

func loadConfig() (*keeperConfig, []string) {
	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &keeperConfig{
		RPCEndpoints:       config.SplitAndTrimCSV(require("RPC_ENDPOINTS")),
		ChainID:            int64(config.GetEnvInt("CHAIN_ID", 0)),
		DatabaseURL:        require("DATABASE_URL"),
		RedisURL:           config.GetEnv("REDIS_URL", ""),
		StablecoinAddress:  require("STABLECOIN_ADDRESS"),
		StablecoinName:     config.GetEnv("STABLECOIN_NAME", "USD Coin"),
		StablecoinVersion:  config.GetEnv("STABLECOIN_VERSION", "2"),
		PaymentRecipient:   require("PAYMENT_RECIPIENT"),
		RouterAddress:      config.GetEnv("ROUTER_ADDRESS", ""),
		BondingCurveRouter: config.GetEnv("BONDING_CURVE_ROUTER", ""),
		ConfirmationDepth:  config.GetEnvInt("CONFIRMATION_DEPTH", 0),
		Port:               config.GetPort("keeper", 8080),
		QuoteTokens:        config.SplitAndTrimCSV(config.GetEnv("QUOTE_TOKENS", "")),
		PriceFeedURL:       config.GetEnv("PRICE_FEED_URL", ""),
	}
	if cfg.ChainID == 0 {
		missing = append(missing, "CHAIN_ID")
	}
	return cfg, missing
}

// secretsProvider resolves the master secret and facilitator credentials:
// a sealed secrets file when SECRETS_FILE is set, plain env vars
// otherwise.
func secretsProvider() (secrets.Provider, error) {
	path := strings.TrimSpace(os.Getenv("SECRETS_FILE"))
	if path == "" {
		return secrets.EnvProvider{}, nil
	}
	rootKey, err := secrets.NormalizeRootKey(os.Getenv("EIGENSWARM_ROOT_KEY"))
	if err != nil {
		return nil, fmt.Errorf("EIGENSWARM_ROOT_KEY: %w", err)
	}
	return secrets.OpenFileStore(path, rootKey)
}

func runMigrate() int {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "keeper migrate: DATABASE_URL is required")
		return exitConfig
	}
	db, err := database.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper migrate: %v\n", err)
		return exitRuntime
	}
	defer db.Close()
	if err := migrations.Apply(db); err != nil {
		fmt.Fprintf(os.Stderr, "keeper migrate: %v\n", err)
		return exitRuntime
	}
	fmt.Println("migrations applied")
	return exitOK
}

func runRotateKey(args []string) int {
	fs := flag.NewFlagSet("rotate-keeper-key", flag.ContinueOnError)
	path := fs.String("secrets-file", os.Getenv("SECRETS_FILE"), "path to the sealed secrets file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "keeper rotate-keeper-key: --secrets-file or SECRETS_FILE is required")
		return exitConfig
	}

	oldKey, err := secrets.NormalizeRootKey(os.Getenv("EIGENSWARM_ROOT_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper rotate-keeper-key: EIGENSWARM_ROOT_KEY: %v\n", err)
		return exitConfig
	}
	newKey, err := secrets.NormalizeRootKey(os.Getenv("EIGENSWARM_NEW_ROOT_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper rotate-keeper-key: EIGENSWARM_NEW_ROOT_KEY: %v\n", err)
		return exitConfig
	}

	store, err := secrets.OpenFileStore(*path, oldKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper rotate-keeper-key: %v\n", err)
		return exitRuntime
	}
	if err := store.Rotate(newKey); err != nil {
		fmt.Fprintf(os.Stderr, "keeper rotate-keeper-key: %v\n", err)
		return exitRuntime
	}
	fmt.Println("keeper root key rotated")
	return exitOK
}
