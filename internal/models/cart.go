package models

import "time"

// CartEntry is one product held in a visitor's cart. Name and UnitPrice are
// snapshots taken when the entry is created so an in-progress cart is not
// affected by catalog edits.
type CartEntry struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns quantity times the snapshotted unit price.
func (e CartEntry) Subtotal() int64 {
	return e.UnitPrice * int64(e.Quantity)
}

// Cart is the session-scoped shopping cart: product id -> entry. It lives in
// the session store, never the database.
type Cart struct {
	Entries map[int64]CartEntry `json:"entries"`
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{Entries: make(map[int64]CartEntry)}
}

// IsEmpty reports whether the cart holds no entries.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Entries) == 0
}

// Quantity returns the held quantity for a product, zero if absent.
func (c *Cart) Quantity(productID int64) int {
	if c == nil {
		return 0
	}
	return c.Entries[productID].Quantity
}

// Total returns the cart total in minor currency units.
func (c *Cart) Total() int64 {
	if c == nil {
		return 0
	}
	var total int64
	for _, e := range c.Entries {
		total += e.Subtotal()
	}
	return total
}

// StagedOrder is the checkout staging state kept under the session's
// cart_order key, distinct from the live cart. The cart snapshot freezes
// line pricing for the rest of the checkout.
type StagedOrder struct {
	ShippingAddressID int64     `json:"shipping_address_id"`
	BillingAddressID  int64     `json:"billing_address_id"`
	Cart              *Cart     `json:"cart"`
	GuestEmail        string    `json:"guest_email,omitempty"`
	StagedAt          time.Time `json:"staged_at"`
}

// SummaryLine is one priced line of an order summary, recomputed from the
// staged snapshot only.
type SummaryLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}
