package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tickerpay/internal/l402"
	"tickerpay/internal/payments"
	"tickerpay/internal/present"
)

var (
	ErrQuit           = errors.New("quit")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("invalid arguments")
)

const historyLimit = 10

// methodAliases are short names accepted by the pay command.
var methodAliases = map[string]string{
	"ln":     l402.MethodLightning,
	"card":   l402.MethodCreditCard,
	"crypto": l402.MethodCoinbaseCommerce,
}

const helpText = `Commands:
  ticker SYM            fetch paid data for SYM (costs one credit)
  pay OFFER METHOD      pay for an offer by number or id (lightning, card, crypto)
  back                  return from the invoice to the offer list
  copy                  copy the displayed invoice to the clipboard
  close                 close the payment view
  balance               refresh the credit balance
  newkey                create a new account
  archived SYM          show the last paid result for SYM
  forget SYM            remove the archived result for SYM
  history               list recent payment requests
  help                  show this help
  quit                  exit
`

// Execute runs one command line. It returns ErrQuit when the session should
// end.
func (s *Session) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "ticker", "t":
		if len(args) != 1 {
			return s.usage("ticker SYM")
		}
		return s.RequestTicker(ctx, args[0])
	case "pay":
		if len(args) != 2 {
			return s.usage("pay OFFER METHOD")
		}
		return s.pay(ctx, args[0], args[1])
	case "back":
		if err := s.orch.BackToMethods(); err != nil {
			s.view.Notify("No offers to return to")
			return err
		}
		return nil
	case "copy":
		if err := s.orch.CopyInvoice(); err != nil {
			if errors.Is(err, payments.ErrNoInvoice) {
				s.view.Notify("No invoice to copy")
			}
			return err
		}
		return nil
	case "close":
		s.orch.Dismiss()
		return nil
	case "balance":
		return s.tracker.Refresh(ctx)
	case "newkey":
		return s.NewKey(ctx)
	case "archived":
		if len(args) != 1 {
			return s.usage("archived SYM")
		}
		return s.ShowArchived(ctx, args[0])
	case "forget":
		if len(args) != 1 {
			return s.usage("forget SYM")
		}
		return s.ForgetArchived(ctx, args[0])
	case "history":
		return s.printHistory(ctx)
	case "help", "?":
		fmt.Fprint(s.out, helpText)
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		s.view.Notify(fmt.Sprintf("Unknown command: %s (type help)", cmd))
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (s *Session) usage(form string) error {
	s.view.Notify("Usage: " + form)
	return ErrUsage
}

func (s *Session) pay(ctx context.Context, offerArg, methodArg string) error {
	set, ok := s.orch.Catalog().Current()
	if !ok {
		s.view.Notify("No offers to pay for. Request a ticker first.")
		return ErrUsage
	}

	offer, ok := resolveOffer(set, offerArg)
	if !ok {
		// Unknown ids go to the orchestrator, which reports them.
		return s.orch.Initiate(ctx, offerArg, methodArg)
	}
	return s.orch.Initiate(ctx, offer.OfferID, resolveMethod(offer, methodArg))
}

// resolveOffer accepts a 1-based index or an offer id.
func resolveOffer(set l402.OfferSet, arg string) (l402.Offer, bool) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(set.Offers) {
			return set.Offers[n-1], true
		}
		return l402.Offer{}, false
	}
	return set.Offer(arg)
}

// resolveMethod prefers a method the offer lists literally, then an alias.
func resolveMethod(offer l402.Offer, arg string) string {
	for _, m := range offer.PaymentMethods {
		if m == arg {
			return m
		}
	}
	if m, ok := methodAliases[strings.ToLower(arg)]; ok {
		return m
	}
	return arg
}

func (s *Session) printHistory(ctx context.Context) error {
	if s.history == nil {
		fmt.Fprintln(s.out, "No history available")
		return nil
	}
	records, err := s.history.ListPaymentRequests(ctx, historyLimit)
	if err != nil {
		s.view.Notify("Error reading history: " + err.Error())
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No payment requests yet")
		return nil
	}
	for _, rec := range records {
		cached := ""
		if rec.Cached {
			cached = " (cached)"
		}
		fmt.Fprintf(s.out, "%s  %-16s %-18s %12s%s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.OfferID, rec.PaymentMethod,
			present.FormatMinor(rec.AmountMinor, rec.Currency), cached)
	}
	return nil
}
