// Package payments drives the client side of an L402 purchase: presenting
// offers, issuing payment requests, caching Lightning invoices and polling
// for settlement.
package payments

import "tickerpay/internal/l402"

// Method describes how a payment method is rendered.
type Method struct {
	Label string
	Icon  string
	Style string
}

// DescribeMethod returns the descriptor for a method identifier. Unknown
// identifiers fall back to a generic descriptor labelled with the identifier.
func DescribeMethod(id string) Method {
	switch id {
	case l402.MethodLightning:
		return Method{Label: "Lightning", Icon: "⚡", Style: "yellow"}
	case l402.MethodCoinbaseCommerce:
		return Method{Label: "Crypto", Icon: "₿", Style: "cyan"}
	case l402.MethodCreditCard:
		return Method{Label: "Card", Icon: "💳", Style: "blue"}
	default:
		return Method{Label: id, Icon: "💰", Style: "gray"}
	}
}

// IsRedirect reports whether the method completes on a hosted checkout page.
func IsRedirect(id string) bool {
	return id != l402.MethodLightning
}
