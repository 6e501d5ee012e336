package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"solana-wallet/internal/config"
	"solana-wallet/internal/domain"
	"solana-wallet/internal/events"
	"solana-wallet/internal/keys"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/logging"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/storage"
	chstore "solana-wallet/internal/storage/clickhouse"
	"solana-wallet/internal/storage/file"
	"solana-wallet/internal/storage/memory"
	pgstore "solana-wallet/internal/storage/postgres"
	"solana-wallet/internal/submit"
	"solana-wallet/internal/wallet"
)

// globalFlags are accepted by every command. Environment variables supply
// the defaults.
type globalFlags struct {
	configPath    string
	network       string
	logLevel      string
	secretFile    string
	postgresDSN   string
	clickhouseDSN string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", os.Getenv("WALLET_CONFIG"), "YAML configuration file")
	fs.StringVar(&g.network, "network", os.Getenv("WALLET_NETWORK"), "network override (mainnet, devnet, testnet)")
	fs.StringVar(&g.logLevel, "log-level", os.Getenv("WALLET_LOG_LEVEL"), "log level override")
	fs.StringVar(&g.secretFile, "secret-file", os.Getenv("WALLET_SECRET_FILE"), "key file override")
	fs.StringVar(&g.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN for the transfer journal")
	fs.StringVar(&g.clickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for balance history")
}

// app holds the wired components for one command invocation.
type app struct {
	cfg       *config.Config
	network   domain.Network
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	client    *ledger.Client
	bus       *events.Bus
	snapshots storage.BalanceSnapshotStore
	wallet    *wallet.Service

	closers []func()
}

func newApp(ctx context.Context, g globalFlags) (*app, error) {
	// Config is loaded with a bootstrap logger; the configured one replaces it.
	boot, _, err := logging.New("warn", logging.FormatConsole)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.configPath, boot)
	if err != nil {
		return nil, err
	}
	if g.network != "" {
		cfg.Network = g.network
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.secretFile != "" {
		cfg.Storage.SecretFile = g.secretFile
	}
	if g.postgresDSN != "" {
		cfg.Storage.PostgresDSN = g.postgresDSN
	}
	if g.clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = g.clickhouseDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, _, err := logging.New(cfg.Logging.Level, logging.Format(cfg.Logging.Format))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		network:  cfg.ActiveNetwork(),
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	a.metrics = observability.NewMetrics(cfg.Metrics.Namespace, a.registry)
	a.bus = events.NewBus(logger)

	pool, err := ledger.NewEndpointPool(cfg.Endpoints())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = ledger.NewClient(pool, ledger.Options{
		AttemptTimeout: cfg.Ledger.AttemptTimeout,
		Logger:         logger,
		Metrics:        a.metrics,
	})

	journal, err := a.openJournal(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.snapshots, err = a.openSnapshots(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.wallet = wallet.NewService(a.client, wallet.Options{
		Network:     a.network,
		Tokens:      cfg.TokenRegistry(),
		DecimalsTTL: cfg.Ledger.DecimalsTTL,
		Submit: submit.Options{
			BroadcastMaxRetries: cfg.Ledger.BroadcastMaxRetries,
			Confirmer:           a.confirmer(pool),
			Journal:             journal,
			ZeroKeyAfterSign:    true,
		},
		Secrets: a.secretStore(),
		Events:  a.bus,
		Logger:  logger,
		Metrics: a.metrics,
	})
	return a, nil
}

// confirmer prefers a websocket subscription on the primary endpoint and
// polls through the resilient client otherwise.
func (a *app) confirmer(pool *ledger.EndpointPool) submit.Confirmer {
	polling := submit.NewPollingConfirmer(a.client, a.network,
		a.cfg.Ledger.ConfirmPollInterval, a.cfg.Ledger.ConfirmTimeout, a.logger)

	primary, ok := pool.Primary(a.network)
	if !ok || primary.WSURL == "" || a.cfg.Ledger.SubscribeWait <= 0 {
		return polling
	}
	return submit.NewSubscriptionConfirmer(primary.WSURL, nil, a.cfg.Ledger.SubscribeWait, polling, a.logger)
}

func (a *app) secretStore() storage.SecretStore {
	if a.cfg.Storage.SecretFile == "" {
		a.logger.Warn("no secret file configured; keys live only for this process")
		return memory.NewSecretStore()
	}
	return file.NewSecretStore(a.cfg.Storage.SecretFile)
}

func (a *app) openJournal(ctx context.Context) (storage.SubmissionStore, error) {
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return memory.NewSubmissionStore(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open transfer journal: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate transfer journal: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	return pgstore.NewSubmissionStore(pool, a.metrics), nil
}

func (a *app) openSnapshots(ctx context.Context) (storage.BalanceSnapshotStore, error) {
	dsn := a.cfg.Storage.ClickHouseDSN
	if dsn == "" {
		return memory.NewBalanceSnapshotStore(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := chstore.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open balance history: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	return chstore.NewBalanceSnapshotStore(conn, a.metrics), nil
}

// ownerAddress returns explicit if set, else the stored key's address.
func (a *app) ownerAddress(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	key, err := a.loadKey(ctx)
	if err != nil {
		return "", err
	}
	defer key.Zero()
	return key.Address(), nil
}

// loadKey returns the stored key. The caller must Zero it.
func (a *app) loadKey(ctx context.Context) (*keys.KeyMaterial, error) {
	key, err := a.wallet.LoadKey(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.New("no key stored; run \"wallet create\" or \"wallet import\" first")
	}
	return key, err
}

// Close releases stores in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
