package payments

import (
	"sync"

	"tickerpay/internal/l402"
	"tickerpay/internal/present"
)

// OfferView is where offers are rendered.
type OfferView interface {
	ShowOffers(cards []present.OfferCard)
}

// Catalog owns the single current offer set.
type Catalog struct {
	view OfferView

	mu      sync.RWMutex
	current *l402.OfferSet
}

// NewCatalog creates an empty catalog.
func NewCatalog(view OfferView) *Catalog {
	return &Catalog{view: view}
}

// Present replaces the current offer set and renders it.
func (c *Catalog) Present(set l402.OfferSet) {
	c.mu.Lock()
	c.current = &set
	c.mu.Unlock()

	c.view.ShowOffers(Cards(set))
}

// Current returns the current offer set, if any.
func (c *Catalog) Current() (l402.OfferSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return l402.OfferSet{}, false
	}
	return *c.current, true
}

// Cards renders an offer set into selection cards.
func Cards(set l402.OfferSet) []present.OfferCard {
	cards := make([]present.OfferCard, 0, len(set.Offers))
	for i, o := range set.Offers {
		buttons := make([]present.MethodButton, 0, len(o.PaymentMethods))
		for _, m := range o.PaymentMethods {
			d := DescribeMethod(m)
			buttons = append(buttons, present.MethodButton{
				Method: m,
				Label:  d.Label,
				Icon:   d.Icon,
				Style:  d.Style,
			})
		}
		cards = append(cards, present.OfferCard{
			Index:       i + 1,
			OfferID:     o.OfferID,
			Title:       o.Title,
			Description: o.Description,
			Price:       present.FormatMinor(o.Amount, o.Currency),
			Buttons:     buttons,
		})
	}
	return cards
}

func (c *Catalog) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
