// Package cart is the shopper-side cart: the shared cart state a browser tab
// renders from, the pending-item mailbox filled before login, the reconciliation
// that merges that item after login, and removal followed by a server re-sync.
package cart

import (
	"github.com/shopspring/decimal"
)

// Item is one purchasable configuration in the cart. ID is the phone model detail id.
type Item struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Condition string  `json:"condition"`
	Storage   string  `json:"storage"`
	Color     string  `json:"color"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

// Key identifies a cart line for merge purposes.
type Key struct {
	ID        string
	Condition string
	Storage   string
	Color     string
}

func (i Item) Key() Key {
	return Key{ID: i.ID, Condition: i.Condition, Storage: i.Storage, Color: i.Color}
}

// Cart is a list of items in insertion order plus totals summarising them.
type Cart struct {
	Items         []Item  `json:"items"`
	TotalItems    int     `json:"totalItems"`
	SubTotalPrice float64 `json:"subTotalPrice"`
}

// New returns a cart holding a copy of items with totals computed from them.
func New(items []Item) Cart {
	c := Cart{Items: cloneItems(items)}
	c.TotalItems, c.SubTotalPrice = Totals(c.Items)
	return c
}

// Recalculate returns c with totals recomputed from its items.
func (c Cart) Recalculate() Cart {
	return New(c.Items)
}

func (c Cart) Clone() Cart {
	out := c
	out.Items = cloneItems(c.Items)
	return out
}

// Find returns the index of the line matching k, or -1.
func (c Cart) Find(k Key) int {
	for i, it := range c.Items {
		if it.Key() == k {
			return i
		}
	}
	return -1
}

// Totals returns the sum of quantities and the sum of price×quantity.
func Totals(items []Item) (int, float64) {
	count := 0
	sum := decimal.Zero
	for _, it := range items {
		count += it.Quantity
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return count, sum.InexactFloat64()
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
