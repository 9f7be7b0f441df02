package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/xraph/tierpay"
	amqphook "github.com/xraph/tierpay/amqp_hook"
	"github.com/xraph/tierpay/api"
	audithook "github.com/xraph/tierpay/audit_hook"
	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/erc20"
	"github.com/xraph/tierpay/evm"
	"github.com/xraph/tierpay/internal/config"
	"github.com/xraph/tierpay/nft"
	"github.com/xraph/tierpay/plugin"
	"github.com/xraph/tierpay/store/memory"
	"github.com/xraph/tierpay/treasury"
)

const shutdownTimeout = 10 * time.Second

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	h := api.NewHandler(
		api.WithLedger(rt.ledger),
		api.WithGate(rt.gate),
		api.WithDecimals(cfg.Decimals),
		api.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(h, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// runtime is the devnet: both engines over an in-process token ledger,
// treasury and collection registry, with reads optionally served by a node.
type runtime struct {
	tokens      *erc20.Ledger
	authority   *auth.Memory
	reserve     *treasury.Treasury
	collections *nft.Registry
	ledger      *tierpay.Ledger
	gate        *tierpay.Gate

	client   *ethclient.Client
	producer *amqphook.Producer
	logger   *slog.Logger
}

func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	admin := config.Address(cfg.Chain.Admin)
	ledgerAt := config.Address(cfg.Chain.LedgerAddress)
	gateAt := config.Address(cfg.Chain.GateAddress)
	treasuryAt := config.Address(cfg.Chain.TreasuryAddress)

	rt := &runtime{
		tokens:      erc20.New(erc20.WithLogger(logger)),
		authority:   auth.NewMemory(admin),
		collections: nft.NewRegistry(),
		logger:      logger,
	}
	rt.authority.Grant(auth.RoleGovernor, admin)
	rt.authority.Grant(auth.RoleUpdater, admin)
	rt.reserve = treasury.New(treasuryAt, rt.tokens, rt.authority, logger)

	var (
		prices   chain.PriceOracle = chain.NewMemoryPairs()
		usage    chain.UsageOracle = chain.NewMemoryUsage()
		holdings chain.Holdings    = rt.collections
	)
	if cfg.Chain.RPCURL != "" {
		reader, client, err := evm.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, err
		}
		rt.client = client
		prices, usage, holdings = reader, reader, reader
		logger.Info("reading oracles from node", "rpc", cfg.Chain.RPCURL)
	}

	shared := []tierpay.Option{
		tierpay.WithLogger(logger),
		tierpay.WithTokens(rt.tokens),
		tierpay.WithAuthority(rt.authority),
		tierpay.WithHoldings(holdings),
	}
	for _, p := range rt.plugins(cfg, logger) {
		shared = append(shared, tierpay.WithPlugin(p))
	}

	rt.ledger = tierpay.New(memory.New(), append(shared,
		tierpay.WithAddress(ledgerAt),
		tierpay.WithReserve(rt.reserve),
		tierpay.WithUsageOracle(usage),
	)...)
	rt.gate = tierpay.NewGate(memory.New(), append(shared,
		tierpay.WithAddress(gateAt),
		tierpay.WithPriceOracle(prices),
	)...)

	if err := rt.ledger.Start(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if err := rt.gate.Start(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if err := rt.configure(ctx, cfg, admin, ledgerAt, treasuryAt); err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

// plugins returns the audit trail and, when a broker is configured and
// reachable, the journal publisher.
func (rt *runtime) plugins(cfg config.Config, logger *slog.Logger) []plugin.Plugin {
	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, e *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"outcome", e.Outcome,
			"severity", e.Severity,
		)
		return nil
	}), audithook.WithLogger(logger))
	plugins := []plugin.Plugin{audit}

	if cfg.AMQP.URL == "" {
		return plugins
	}
	producer, err := amqphook.Dial(cfg.AMQP.URL, logger)
	if err != nil {
		logger.Warn("amqp unavailable, journal publishing disabled", "error", err)
		return plugins
	}
	rt.producer = producer
	return append(plugins, amqphook.New(producer,
		amqphook.WithExchange(cfg.AMQP.Exchange),
		amqphook.WithLogger(logger),
	))
}

// configure applies the chain settings through the engines' admin calls so
// the journal records them like any other change.
func (rt *runtime) configure(ctx context.Context, cfg config.Config, admin, ledgerAt, treasuryAt common.Address) error {
	for _, kind := range []treasury.Permission{treasury.PermDepositor, treasury.PermSpender} {
		if err := rt.reserve.SetPermission(ctx, admin, kind, ledgerAt, true); err != nil {
			return fmt.Errorf("treasury permission %s: %w", kind, err)
		}
	}
	if err := rt.gate.SetTreasury(ctx, admin, treasuryAt); err != nil {
		return err
	}

	if token := config.Address(cfg.Chain.SettlementToken); token != (common.Address{}) {
		if err := rt.reserve.SetPermission(ctx, admin, treasury.PermReserveToken, token, true); err != nil {
			return fmt.Errorf("treasury reserve token: %w", err)
		}
		if err := rt.ledger.SetSettlementToken(ctx, admin, token); err != nil {
			return err
		}
		if err := rt.gate.SetSettlementToken(ctx, admin, token); err != nil {
			return err
		}
	}
	if pair := config.Address(cfg.Chain.Pair); pair != (common.Address{}) {
		if err := rt.gate.SetPair(ctx, admin, pair); err != nil {
			return err
		}
	}
	if lock := cfg.Chain.LockPeriod; lock > 0 {
		if err := rt.ledger.SetLockPeriod(ctx, admin, uint64(lock/time.Second)); err != nil {
			return err
		}
	}
	return nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.gate != nil {
		_ = rt.gate.Stop(ctx)
	}
	if rt.ledger != nil {
		_ = rt.ledger.Stop(ctx)
	}
	if rt.producer != nil {
		if err := rt.producer.Close(); err != nil {
			rt.logger.Warn("amqp close failed", "error", err)
		}
	}
	if rt.client != nil {
		rt.client.Close()
	}
}
