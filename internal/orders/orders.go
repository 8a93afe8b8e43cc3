// Package orders turns purchased line items into per-order summaries.
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one purchased configuration, tagged with the order it belongs to.
type LineItem struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	ModelID         string    `json:"modelId"`
	Title           string    `json:"title"`
	Condition       string    `json:"condition"`
	Storage         string    `json:"storage"`
	Color           string    `json:"color"`
	Price           float64   `json:"price"`
	Quantity        int       `json:"quantity"`
	Image           string    `json:"image,omitempty"`
	Status          string    `json:"status"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Summary is one order assembled from its line items.
type Summary struct {
	OrderID    string     `json:"orderId"`
	Status     string     `json:"status"`
	Items      []LineItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice float64    `json:"totalPrice"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Aggregate groups items by order id in a single pass. Groups keep first-seen
// order; each takes its status and creation time from its first-seen item.
func Aggregate(items []LineItem) []Summary {
	index := make(map[string]int)
	totals := make([]decimal.Decimal, 0)
	out := make([]Summary, 0)
	for _, it := range items {
		i, ok := index[it.OrderID]
		if !ok {
			i = len(out)
			index[it.OrderID] = i
			out = append(out, Summary{OrderID: it.OrderID, Status: it.Status, CreatedAt: it.CreatedAt})
			totals = append(totals, decimal.Zero)
		}
		out[i].Items = append(out[i].Items, it)
		out[i].TotalItems += it.Quantity
		totals[i] = totals[i].Add(LineTotal(it))
	}
	for i := range out {
		out[i].TotalPrice = totals[i].InexactFloat64()
	}
	return out
}

// LineTotal is price × quantity.
func LineTotal(it LineItem) decimal.Decimal {
	return decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Order statuses, in lifecycle order.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return s
	default:
		return ""
	}
}
