package main

import (
	"context"
	"fmt"
	"io"

	"tickerpay/internal/logging"
	"tickerpay/internal/present"
	"tickerpay/internal/store"
)

func printStats(w io.Writer, st store.Store) {
	stats, err := st.GetStats(context.Background())
	if err != nil {
		logging.Internal.Fatal().Err(err).Msg("failed to get stats")
	}

	fmt.Fprintln(w, "╔══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║        TickerPay Payment Statistics      ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Payment Requests: %-22d║\n", stats.TotalRequests)
	fmt.Fprintf(w, "║  ├─ Cached:        %-22d║\n", stats.CachedInvoices)
	fmt.Fprintf(w, "║  └─ Total Value:   %-22s║\n", present.FormatMinor(stats.TotalAmount, "USD"))
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	if !stats.Oldest.IsZero() {
		fmt.Fprintf(w, "║  Oldest Request:   %-22s║\n", stats.Oldest.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "║  Newest Request:   %-22s║\n", stats.Newest.Local().Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintln(w, "║  No payment requests in database         ║")
	}
	if len(stats.ByMethod) > 0 {
		fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
		fmt.Fprintln(w, "║  By Payment Method                       ║")
		fmt.Fprintln(w, "║  ──────────────────────────────────────  ║")
		for _, ms := range stats.ByMethod {
			fmt.Fprintf(w, "║  %-18s %3d  %15s  ║\n", ms.Method, ms.Requests, present.FormatMinor(ms.Amount, "USD"))
		}
	}
	fmt.Fprintln(w, "╚══════════════════════════════════════════╝")
}
