package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tickerpay/internal/api"
	"tickerpay/internal/config"
	"tickerpay/internal/gateway"
	"tickerpay/internal/logging"
)

// pendingTimeout bounds how long an unpaid request counts against a user.
const pendingTimeout = 2 * time.Hour

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		logging.Internal.Fatal().Err(err).Msg("failed to load configuration")
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	publicURL := flag.String("public-url", cfg.PublicURL, "Base URL used in checkout links")
	devMode := flag.Bool("dev", cfg.Dev, "Development mode: disables CORS restrictions and rate limiting, enables the settle endpoint")
	corsOrigins := flag.String("cors-origins", strings.Join(cfg.CORSOrigins, ","), "Comma-separated list of allowed CORS origins")
	trustProxy := flag.Bool("trust-proxy", cfg.TrustProxy, "Take client addresses from X-Forwarded-For when rate limiting")
	settleAfter := flag.Duration("settle-after", cfg.MockSettleAfter, "Auto-settle mock invoices after this delay (0 disables)")
	debug := flag.Bool("debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	logging.Setup(os.Stdout, *debug)

	lightning := gateway.NewMockLightning(*settleAfter)
	defer lightning.Close()
	if *settleAfter > 0 {
		logging.Internal.Info().Dur("settle_after", *settleAfter).Msg("using mock lightning backend with auto-settle")
	} else {
		logging.Internal.Info().Msg("using mock lightning backend (settle via POST /dev/invoices/{hash}/settle)")
	}

	svc := gateway.NewService(gateway.Config{
		PublicURL:     strings.TrimRight(*publicURL, "/"),
		SignupCredits: cfg.SignupCredits,
		OfferExpiry:   cfg.OfferExpiry,
		InvoiceExpiry: cfg.InvoiceExpiry,
	}, lightning, gateway.NewStaticQuotes())

	pendingLimiter := api.NewPendingInvoiceLimiter(cfg.MaxPendingInvoices)

	// Settled payments no longer count against the user's pending cap
	svc.SetPaymentCallback(pendingLimiter.Release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StartPaymentWatcher(ctx); err != nil {
		logging.Internal.Fatal().Err(err).Msg("failed to start payment watcher")
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dropped := svc.CleanupExpired()
				for _, ref := range dropped {
					pendingLimiter.Release(ref)
				}
				if len(dropped) > 0 {
					logging.Internal.Info().Int("count", len(dropped)).Msg("dropped expired payment requests")
				}

				if n := pendingLimiter.CleanupExpired(pendingTimeout); n > 0 {
					logging.Internal.Info().Int("count", n).Msg("cleaned up stale pending entries")
				}
			}
		}
	}()

	handler := api.NewHandler(svc, pendingLimiter)
	if *devMode {
		handler.SetInvoiceSettler(lightning.SimulatePayment)
	}

	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Info().Msg("development mode: CORS allowing all origins")
	} else {
		origins := strings.Split(*corsOrigins, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		corsConfig.AllowedOrigins = origins
		logging.Internal.Info().Strs("origins", origins).Msg("CORS restricted")
	}

	// Apply middleware (order: Logger -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = handler
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !*devMode {
		limits := api.DefaultRateLimitConfig()
		limits.TrustProxy = *trustProxy
		finalHandler = api.RateLimit(limits)(finalHandler)
		logging.Internal.Info().Bool("trust_proxy", limits.TrustProxy).Msg("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:              *addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Info().Msg("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Error().Err(err).Msg("shutdown error")
		}
	}()

	logging.Internal.Info().Str("addr", *addr).Msg("starting gateway")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatal().Err(err).Msg("server error")
	}
}
