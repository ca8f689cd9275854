package gateway

import (
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"time"

	"tickerpay/internal/l402"
)

var ErrUnknownSymbol = errors.New("unknown ticker symbol")

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]{0,9}$`)

// QuoteSource yields paid ticker data.
type QuoteSource interface {
	Quote(symbol string) (*l402.TickerData, error)
}

// StaticQuotes serves fixed data for a few well-known symbols and stable
// synthetic data for every other well-formed symbol.
type StaticQuotes struct {
	known map[string]l402.TickerData
	// periodEnd is the most recent fiscal year end used for synthetic data.
	periodEnd time.Time
}

// NewStaticQuotes creates the development quote source.
func NewStaticQuotes() *StaticQuotes {
	return &StaticQuotes{
		known: map[string]l402.TickerData{
			"AAPL": {
				FinancialData: []l402.Financials{
					{FiscalDateEnding: "2024-09-30", TotalRevenue: 391035000000, GrossProfit: 180683000000, NetIncome: 93736000000},
					{FiscalDateEnding: "2023-09-30", TotalRevenue: 383285000000, GrossProfit: 169148000000, NetIncome: 96995000000},
					{FiscalDateEnding: "2022-09-30", TotalRevenue: 394328000000, GrossProfit: 170782000000, NetIncome: 99803000000},
					{FiscalDateEnding: "2021-09-30", TotalRevenue: 365817000000, GrossProfit: 152836000000, NetIncome: 94680000000},
				},
				AdditionalData: l402.Quote{EPS: 6.08, PERatio: 37.52, CurrentPrice: 228.26},
			},
			"MSFT": {
				FinancialData: []l402.Financials{
					{FiscalDateEnding: "2024-06-30", TotalRevenue: 245122000000, GrossProfit: 171008000000, NetIncome: 88136000000},
					{FiscalDateEnding: "2023-06-30", TotalRevenue: 211915000000, GrossProfit: 146052000000, NetIncome: 72361000000},
					{FiscalDateEnding: "2022-06-30", TotalRevenue: 198270000000, GrossProfit: 135620000000, NetIncome: 72738000000},
					{FiscalDateEnding: "2021-06-30", TotalRevenue: 168088000000, GrossProfit: 115856000000, NetIncome: 61271000000},
				},
				AdditionalData: l402.Quote{EPS: 12.12, PERatio: 34.61, CurrentPrice: 419.47},
			},
		},
		periodEnd: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func (q *StaticQuotes) Quote(symbol string) (*l402.TickerData, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return nil, ErrUnknownSymbol
	}

	if data, ok := q.known[symbol]; ok {
		data.Symbol = symbol
		data.FinancialData = append([]l402.Financials(nil), data.FinancialData...)
		return &data, nil
	}
	return q.synthetic(symbol), nil
}

// synthetic derives four yearly periods from a hash of the symbol.
func (q *StaticQuotes) synthetic(symbol string) *l402.TickerData {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	seed := h.Sum64()

	revenue := float64(5+seed%300) * 1e9
	margin := 0.05 + float64(seed>>8%25)/100
	price := float64(10+seed>>16%490) + float64(seed>>24%100)/100
	eps := round2(price / float64(12+seed>>32%30))

	data := &l402.TickerData{Symbol: symbol}
	for i := range 4 {
		growth := math.Pow(0.93, float64(i))
		rev := math.Round(revenue * growth)
		data.FinancialData = append(data.FinancialData, l402.Financials{
			FiscalDateEnding: q.periodEnd.AddDate(-i, 0, 0).Format("2006-01-02"),
			TotalRevenue:     rev,
			GrossProfit:      math.Round(rev * 0.4),
			NetIncome:        math.Round(rev * margin),
		})
	}
	data.AdditionalData = l402.Quote{
		EPS:          eps,
		PERatio:      round2(price / eps),
		CurrentPrice: price,
	}
	return data
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
