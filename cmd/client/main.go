package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"tickerpay/internal/app"
	"tickerpay/internal/archive"
	"tickerpay/internal/balance"
	"tickerpay/internal/client"
	"tickerpay/internal/config"
	"tickerpay/internal/identity"
	"tickerpay/internal/logging"
	"tickerpay/internal/payments"
	"tickerpay/internal/present"
	"tickerpay/internal/store"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		logging.Internal.Fatal().Err(err).Msg("failed to load configuration")
	}

	gatewayURL := flag.String("gateway", cfg.GatewayURL, "Gateway base URL")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	showStats := flag.Bool("stats", false, "Show payment-request statistics and exit")
	noColor := flag.Bool("no-color", false, "Disable coloured output")
	debug := flag.Bool("debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	logOut, closeLog := openLog(cfg.LogFile)
	defer closeLog()
	logging.Setup(logOut, *debug)

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		logging.Internal.Fatal().Err(err).Str("path", *dbPath).Msg("failed to open database")
	}
	defer st.Close()

	if *showStats {
		printStats(os.Stdout, st)
		return
	}

	storage, err := openArchive(cfg)
	if err != nil {
		logging.Internal.Fatal().Err(err).Msg("failed to initialize archive storage")
	}

	gw := client.New(client.Config{
		BaseURL:           *gatewayURL,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
	})

	view := present.NewTerminal(os.Stdout, present.Options{
		NotifyDuration: cfg.NotificationDuration,
		Colors:         !*noColor,
	})
	ids := identity.NewStore(gw, st)
	tracker := balance.NewTracker(gw, ids, view)
	poller := payments.NewPoller(tracker, cfg.SettlementPollInterval)
	orch := payments.NewOrchestrator(payments.Options{
		Issuer:    gw,
		Surface:   view,
		Navigator: browserNavigator{},
		Clipboard: systemClipboard{},
		Balance:   tracker,
		Poller:    poller,
		Cache:     payments.NewInvoiceCache(cfg.InvoiceCacheMargin),
		Recorder:  st,
		Identity:  ids,
	})

	session := app.New(app.Options{
		Identity:        ids,
		Tracker:         tracker,
		Orchestrator:    orch,
		Poller:          poller,
		Gateway:         gw,
		View:            view,
		Archive:         archive.NewService(storage),
		History:         st,
		Out:             os.Stdout,
		RefreshInterval: cfg.BalanceRefreshInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer poller.Stop()

	if err := session.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cannot start: %v\n", err)
		os.Exit(1)
	}
	go session.Run(ctx)

	fmt.Println(`Type "help" for commands.`)
	repl(ctx, session, os.Stdin)
}

func repl(ctx context.Context, session *app.Session, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := session.Execute(ctx, line)
			if errors.Is(err, app.ErrQuit) {
				return
			}
			if err != nil {
				logging.Internal.Debug().Err(err).Str("command", line).Msg("command failed")
			}
		}
	}
}

func openLog(path string) (io.Writer, func()) {
	if path == "" {
		return os.Stderr, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", path, err)
		return os.Stderr, func() {}
	}
	return f, func() { f.Close() }
}

// openArchive uses object storage when configured, otherwise the local
// filesystem.
func openArchive(cfg *config.Client) (archive.Storage, error) {
	if cfg.UseS3() {
		s3, err := archive.NewS3Storage(archive.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, err
		}
		logging.Internal.Info().Str("bucket", cfg.S3.Bucket).Msg("archiving results to object storage")
		return s3, nil
	}

	fs, err := archive.NewFSStorage(cfg.ArchiveDir)
	if err != nil {
		return nil, err
	}
	logging.Internal.Info().Str("dir", cfg.ArchiveDir).Msg("archiving results to local filesystem")
	return fs, nil
}
