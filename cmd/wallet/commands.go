package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/events"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/refresh"
	"solana-wallet/internal/storage"
	"solana-wallet/internal/units"
)

type command func(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error

var commands = map[string]command{
	"create":        runCreate,
	"import":        runImport,
	"address":       runAddress,
	"balance":       runBalance,
	"token-balance": runTokenBalance,
	"send":          runSend,
	"send-token":    runSendToken,
	"watch":         runWatch,
	"history":       runHistory,
}

// setup parses the common flags plus any registered by extra and opens the app.
func setup(ctx context.Context, name string, args []string, extra func(*flag.FlagSet)) (*app, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var g globalFlags
	g.register(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	a, err := newApp(ctx, g)
	if err != nil {
		return nil, nil, err
	}
	return a, fs.Args(), nil
}

func runCreate(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	var force bool
	a, _, err := setup(ctx, "create", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&force, "force", false, "replace an existing stored key")
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.refuseOverwrite(ctx, force); err != nil {
		return err
	}

	key, err := a.wallet.CreateKeyMaterial()
	if err != nil {
		return err
	}
	defer key.Zero()

	if err := a.wallet.SaveKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	fmt.Fprintln(stdout, key.Address())
	return nil
}

func runImport(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var force bool
	a, _, err := setup(ctx, "import", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&force, "force", false, "replace an existing stored key")
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.refuseOverwrite(ctx, force); err != nil {
		return err
	}

	// The secret is read from stdin so it never appears in argv or shell history.
	secret, err := readSecret(stdin)
	if err != nil {
		return err
	}
	key, err := a.wallet.ImportKeyMaterial(secret)
	if err != nil {
		return err
	}
	defer key.Zero()

	if err := a.wallet.SaveKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	fmt.Fprintf(stdout, "%s (%s)\n", key.Address(), key.Format())
	return nil
}

func runAddress(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	a, _, err := setup(ctx, "address", args, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, err := a.ownerAddress(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, addr)
	return nil
}

func runBalance(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	a, rest, err := setup(ctx, "balance", args, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, err := a.ownerAddress(ctx, argAt(rest, 0))
	if err != nil {
		return err
	}
	bal := a.wallet.GetNativeBalance(ctx, addr)
	fmt.Fprintf(stdout, "%s SOL\n", units.Format(bal, domain.NativeDecimals))
	return nil
}

func runTokenBalance(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	a, rest, err := setup(ctx, "token-balance", args, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(rest) < 1 {
		return errors.New("usage: wallet token-balance <symbol|mint> [address]")
	}
	tok, err := a.wallet.Token(ctx, rest[0])
	if err != nil {
		return err
	}
	addr, err := a.ownerAddress(ctx, argAt(rest, 1))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s\n", a.wallet.GetTokenBalance(ctx, addr, tok.Mint), tokenName(tok))
	return nil
}

func runSend(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	a, rest, err := setup(ctx, "send", args, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(rest) != 2 {
		return errors.New("usage: wallet send <to> <amount>")
	}
	amount, err := units.ParseAmount(rest[1])
	if err != nil {
		return err
	}

	key, err := a.loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	result, err := a.wallet.SendNative(ctx, key, rest[0], amount)
	printResult(stdout, result)
	return err
}

func runSendToken(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	a, rest, err := setup(ctx, "send-token", args, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(rest) != 3 {
		return errors.New("usage: wallet send-token <symbol|mint> <to> <amount>")
	}
	tok, err := a.wallet.Token(ctx, rest[0])
	if err != nil {
		return err
	}
	amount, err := units.ParseAmount(rest[2])
	if err != nil {
		return err
	}

	key, err := a.loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	result, err := a.wallet.SendToken(ctx, key, rest[1], tok, amount)
	printResult(stdout, result)
	return err
}

func runWatch(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	var (
		interval    time.Duration
		metricsAddr string
		owner       string
	)
	a, _, err := setup(ctx, "watch", args, func(fs *flag.FlagSet) {
		fs.DurationVar(&interval, "interval", 0, "refresh interval override")
		fs.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics address override")
		fs.StringVar(&owner, "address", "", "address to watch (default: stored key)")
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if interval <= 0 {
		interval = a.cfg.Refresh.Interval
	}
	if metricsAddr == "" {
		metricsAddr = a.cfg.Metrics.Addr
	}
	addr, err := a.ownerAddress(ctx, owner)
	if err != nil {
		return err
	}

	unsubscribe := a.bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.TypeBalanceUpdated:
			fmt.Fprintf(stdout, "%s  %s %s\n", e.At.Format(time.RFC3339), e.Amount, e.Asset)
		case events.TypeBalanceDegraded, events.TypeRefreshFailed:
			fmt.Fprintf(stdout, "%s  %s\n", e.At.Format(time.RFC3339), e.Message)
		}
	})
	defer unsubscribe()

	srv := startMetricsServer(metricsAddr, a.registry, a.logger)
	defer shutdownServer(srv, a.logger)

	r := refresh.New(a.wallet.Aggregator(), refresh.Options{
		Network:   a.network,
		Owner:     addr,
		Tokens:    a.cfg.TokenRegistry().Tokens(a.network),
		Interval:  interval,
		Snapshots: a.snapshots,
		Events:    a.bus,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	a.logger.Info("watching balances",
		zap.String("address", addr),
		zap.Duration("interval", interval),
		zap.String("metrics_addr", metricsAddr))
	return r.Run(ctx)
}

func runHistory(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	var limit int
	a, rest, err := setup(ctx, "history", args, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "limit", 20, "maximum entries (0 for all)")
	})
	if err != nil {
		return err
	}
	defer a.Close()

	addr, err := a.ownerAddress(ctx, argAt(rest, 0))
	if err != nil {
		return err
	}
	entries, err := a.wallet.History(ctx, addr, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no transfers recorded")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMITTED\tSTATUS\tAMOUNT\tASSET\tTO\tSIGNATURE")
	for _, r := range entries {
		asset := r.Mint
		if asset == "" {
			asset = refresh.NativeAsset
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SubmittedAt.Format(time.RFC3339), r.Status, r.Amount, asset, r.To, r.Signature)
	}
	return tw.Flush()
}

// refuseOverwrite fails when a key is already stored and force is unset.
func (a *app) refuseOverwrite(ctx context.Context, force bool) error {
	if force {
		return nil
	}
	key, err := a.wallet.LoadKey(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer key.Zero()
	return fmt.Errorf("a key for %s is already stored; pass -force to replace it", key.Address())
}

func printResult(w io.Writer, r *domain.SubmissionResult) {
	if r == nil {
		return
	}
	switch r.Status {
	case domain.StatusConfirmed:
		fmt.Fprintf(w, "confirmed %s\n", r.Signature)
	case domain.StatusUnconfirmedSent:
		fmt.Fprintf(w, "sent %s\n%s\n", r.Signature, domain.UserMessage(r.Err))
	case domain.StatusFailed:
		if r.Signature != "" {
			fmt.Fprintf(w, "failed %s\n", r.Signature)
		}
	}
}

func readSecret(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if len(lines) == 0 {
		return "", domain.Errorf(domain.CodeInvalidSecretFormat, "no secret provided on stdin")
	}
	return strings.Join(lines, " "), nil
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
}

func tokenName(tok domain.TokenDescriptor) string {
	if tok.Symbol != "" {
		return tok.Symbol
	}
	return tok.Mint
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
