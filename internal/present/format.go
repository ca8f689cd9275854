package present

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD renders a dollar amount rounded to cents: 123.456 -> "$123.46".
func FormatUSD(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// FormatRatio renders a plain two-decimal number: 18.2 -> "18.20".
func FormatRatio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatBillions renders a dollar amount in billions: 394328000000 -> "$394.33B".
func FormatBillions(v float64) string {
	return "$" + decimal.NewFromFloat(v).Shift(-9).StringFixed(2) + "B"
}

// FormatMinor renders an amount in minor units with its currency: 99 -> "$0.99 USD".
func FormatMinor(amount int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	currency = strings.ToUpper(currency)
	s := decimal.New(amount, -2).StringFixed(2)
	if currency == "USD" {
		return "$" + s + " USD"
	}
	return s + " " + currency
}
