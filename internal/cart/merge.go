package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PendingItemKey is the transient storage slot holding the item a shopper tried to
// add before signing in.
const PendingItemKey = "pendingCartItem"

// PendingItem is the staged payload. Quantity may be absent.
type PendingItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Condition string  `json:"condition"`
	Storage   string  `json:"storage"`
	Color     string  `json:"color"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Quantity  *int    `json:"quantity,omitempty"`
}

// Item resolves the pending payload into a cart line; a missing or non-positive
// quantity becomes 1.
func (p PendingItem) Item() Item {
	qty := 1
	if p.Quantity != nil && *p.Quantity > 0 {
		qty = *p.Quantity
	}
	return Item{
		ID:        p.ID,
		Title:     p.Title,
		Condition: p.Condition,
		Storage:   p.Storage,
		Color:     p.Color,
		Price:     p.Price,
		Quantity:  qty,
		Image:     p.Image,
	}
}

var ErrMalformedPending = errors.New("malformed pending cart item")

// ParsePending decodes a pending record. A record without an id cannot be merged
// and is rejected along with invalid JSON.
func ParsePending(raw []byte) (PendingItem, error) {
	var p PendingItem
	if err := json.Unmarshal(raw, &p); err != nil {
		return PendingItem{}, fmt.Errorf("%w: %v", ErrMalformedPending, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return PendingItem{}, fmt.Errorf("%w: missing id", ErrMalformedPending)
	}
	return p, nil
}

// Merge folds a pending item into c and returns the new cart; c is not modified.
//
// A line with the same (id, condition, storage, color) gets exactly one more unit
// whatever the pending quantity, and totals are recomputed from the items.
// Otherwise the item is appended with its own quantity while totalItems grows by
// one and subTotalPrice by the unit price.
func Merge(c Cart, p PendingItem) (Cart, bool) {
	item := p.Item()
	out := c.Clone()
	if i := out.Find(item.Key()); i >= 0 {
		out.Items[i].Quantity++
		return out.Recalculate(), true
	}
	out.Items = append(out.Items, item)
	out.TotalItems = c.TotalItems + 1
	out.SubTotalPrice = decimal.NewFromFloat(c.SubTotalPrice).Add(decimal.NewFromFloat(item.Price)).InexactFloat64()
	return out, false
}
