package store

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"erp/ecommerce/phone-storefront/internal/orders"
)

// Dashboard is the seller overview.
type Dashboard struct {
	Phones        int     `json:"phones"`
	Models        int     `json:"models"`
	Orders        int     `json:"orders"`
	Revenue       float64 `json:"revenue"`
	Reviews       int     `json:"reviews"`
	AverageRating float64 `json:"averageRating"`
}

// Dashboard runs its counts concurrently. Cancelled orders do not count as revenue.
func (s *Store) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.count(ctx, "phones", func() int { return len(s.phones) })
		d.Phones = n
		return err
	})
	g.Go(func() error {
		n, err := s.count(ctx, "phone_models", func() int { return len(s.models) })
		d.Models = n
		return err
	})
	g.Go(func() error {
		n, revenue, err := s.orderTotals(ctx)
		d.Orders, d.Revenue = n, revenue
		return err
	})
	g.Go(func() error {
		sum, err := s.SummarizeReviews(ctx, "")
		d.Reviews, d.AverageRating = sum.Count, sum.Average
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *Store) count(ctx context.Context, table string, mem func() int) (int, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		return mem(), nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

func (s *Store) orderTotals(ctx context.Context) (int, float64, error) {
	if s.db == nil {
		s.memMu.RLock()
		ids := make(map[string]bool)
		revenue := decimal.Zero
		for _, it := range s.orderItems {
			ids[it.OrderID] = true
			if it.Status != orders.StatusCancelled {
				revenue = revenue.Add(orders.LineTotal(it))
			}
		}
		s.memMu.RUnlock()
		return len(ids), revenue.InexactFloat64(), nil
	}
	var n int
	var revenue float64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT order_id),
		COALESCE(SUM(price * quantity) FILTER (WHERE status <> 'cancelled'), 0) FROM order_items`).Scan(&n, &revenue)
	return n, revenue, err
}
