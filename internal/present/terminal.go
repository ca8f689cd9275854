// Package present renders paid results, notifications and the payment
// surface to a terminal.
package present

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"

	"tickerpay/internal/l402"
)

// DefaultNotifyDuration is how long a notification stays visible.
const DefaultNotifyDuration = 5 * time.Second

// MethodButton is one selectable payment method of an offer card.
type MethodButton struct {
	Method string
	Label  string
	Icon   string
	Style  string
}

// OfferCard is the rendered form of one offer.
type OfferCard struct {
	Index       int
	OfferID     string
	Title       string
	Description string
	Price       string
	Buttons     []MethodButton
}

// QREncoder turns a payload into a printable code.
type QREncoder func(payload string) (string, error)

// TerminalQR renders a QR code using half-block characters.
func TerminalQR(payload string) (string, error) {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

// Options configures a Terminal.
type Options struct {
	NotifyDuration time.Duration
	QR             QREncoder
	Colors         bool
}

// Terminal implements the display surfaces over an io.Writer. It keeps the
// logical state of each surface so the visible state can be inspected.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
	opt Options

	identity     string
	credits      int64
	creditsShown bool

	result        string
	resultVisible bool

	notice        string
	noticeVisible bool
	noticeGen     uint64

	paymentVisible bool
	offers         []OfferCard
	invoice        string
}

// NewTerminal creates a terminal presenter writing to out.
func NewTerminal(out io.Writer, opt Options) *Terminal {
	if opt.NotifyDuration <= 0 {
		opt.NotifyDuration = DefaultNotifyDuration
	}
	if opt.QR == nil {
		opt.QR = TerminalQR
	}
	return &Terminal{out: out, opt: opt}
}

func (t *Terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) paint(style, s string) string {
	c := color.New(styleAttr(style))
	if !t.opt.Colors {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}

func styleAttr(style string) color.Attribute {
	switch style {
	case "yellow":
		return color.FgYellow
	case "cyan":
		return color.FgCyan
	case "blue":
		return color.FgBlue
	case "green":
		return color.FgGreen
	case "red":
		return color.FgRed
	default:
		return color.FgWhite
	}
}

// SetIdentity shows the active user identifier.
func (t *Terminal) SetIdentity(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.identity = id
	t.printf("User ID: %s\n", id)
}

// SetCredits updates the credits display.
func (t *Terminal) SetCredits(credits int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.creditsShown && credits == t.credits {
		return
	}
	t.credits = credits
	t.creditsShown = true
	t.printf("Credits: %d\n", credits)
}

// ShowLoading replaces the results panel with a loading indicator.
func (t *Terminal) ShowLoading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = "Loading..."
	t.resultVisible = true
	t.printf("%s\n", t.result)
}

// ShowResult renders the paid content.
func (t *Terminal) ShowResult(data l402.TickerData) {
	text := RenderTicker(data)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = text
	t.resultVisible = true
	t.printf("%s", text)
}

// RenderTicker formats the paid payload of a ticker lookup.
func RenderTicker(data l402.TickerData) string {
	revenue, income := "n/a", "n/a"
	if len(data.FinancialData) > 0 {
		latest := data.FinancialData[0]
		revenue = FormatBillions(latest.TotalRevenue)
		income = FormatBillions(latest.NetIncome)
	}

	var b strings.Builder
	if data.Symbol != "" {
		fmt.Fprintf(&b, "== %s ==\n", strings.ToUpper(data.Symbol))
	}
	fmt.Fprintf(&b, "  Current Price:        %s\n", FormatUSD(data.AdditionalData.CurrentPrice))
	fmt.Fprintf(&b, "  P/E Ratio:            %s\n", FormatRatio(data.AdditionalData.PERatio))
	fmt.Fprintf(&b, "  Revenue (Latest):     %s\n", revenue)
	fmt.Fprintf(&b, "  Net Income (Latest):  %s\n", income)
	return b.String()
}

// ClearResult hides and empties the results panel.
func (t *Terminal) ClearResult() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = ""
	t.resultVisible = false
}

// Notify shows a transient message for the default duration.
func (t *Terminal) Notify(message string) {
	t.NotifyFor(message, t.opt.NotifyDuration)
}

// NotifyFor shows a transient message for d. The newest message always
// wins; an older dismissal timer never hides it.
func (t *Terminal) NotifyFor(message string, d time.Duration) {
	t.mu.Lock()
	t.noticeGen++
	gen := t.noticeGen
	t.notice = message
	t.noticeVisible = true
	t.printf("%s %s\n", t.paint("yellow", "!"), message)
	t.mu.Unlock()

	time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.noticeGen == gen {
			t.noticeVisible = false
		}
	})
}

// ShowOffers reveals the payment surface with one card per offer.
func (t *Terminal) ShowOffers(cards []OfferCard) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers = cards
	t.invoice = ""
	t.paymentVisible = true

	t.printf("\n%s\n", t.paint("cyan", "Payment required"))
	for _, c := range cards {
		t.printf("[%d] %s  %s\n", c.Index, c.Title, c.Price)
		if c.Description != "" {
			t.printf("    %s\n", c.Description)
		}
		if len(c.Buttons) == 0 {
			t.printf("    (no payment methods available)\n")
			continue
		}
		buttons := make([]string, 0, len(c.Buttons))
		for _, b := range c.Buttons {
			buttons = append(buttons, t.paint(b.Style, fmt.Sprintf("%s %s", b.Icon, b.Label))+" ("+b.Method+")")
		}
		t.printf("    %s\n", strings.Join(buttons, "   "))
	}
	t.printf("Use: pay <offer> <method>, close to cancel\n")
}

// ShowInvoice replaces the offer list with a scannable Lightning invoice.
func (t *Terminal) ShowInvoice(invoice string) {
	code, err := t.opt.QR(invoice)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.invoice = invoice
	t.paymentVisible = true

	t.printf("\n%s\n", t.paint("yellow", "Scan Lightning Invoice"))
	if err == nil {
		t.printf("%s\n", code)
	} else {
		t.printf("(QR unavailable: %v)\n", err)
	}
	t.printf("%s\n", invoice)
	t.printf("Use: copy to copy the invoice, back for payment methods, close to cancel\n")
}

// HidePaymentSurface hides the payment modal and clears any QR view.
func (t *Terminal) HidePaymentSurface() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paymentVisible && t.invoice == "" {
		return
	}
	t.paymentVisible = false
	t.invoice = ""
	t.offers = nil
}

// Notification returns the displayed notification and whether it is visible.
func (t *Terminal) Notification() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notice, t.noticeVisible
}

// Result returns the results panel text and whether it is visible.
func (t *Terminal) Result() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.resultVisible
}

// PaymentSurface reports whether the payment modal is visible and the
// invoice currently shown, if any.
func (t *Terminal) PaymentSurface() (visible bool, invoice string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paymentVisible, t.invoice
}

// Offers returns the cards currently shown.
func (t *Terminal) Offers() []OfferCard {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OfferCard(nil), t.offers...)
}

// Credits returns the displayed credit count.
func (t *Terminal) Credits() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.credits
}
