package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/orders"
)

// Checkout turns the user's cart into order line items under a fresh order id,
// takes the purchased units out of stock and empties the cart. Each write
// commits on its own.
func (s *Store) Checkout(ctx context.Context, userID string) (orders.Summary, error) {
	lines, err := s.CartItems(ctx, userID)
	if err != nil {
		return orders.Summary{}, err
	}
	if len(lines) == 0 {
		return orders.Summary{}, ValidationError("cart is empty")
	}

	orderID := newID("ord")
	created := now()
	items := make([]orders.LineItem, 0, len(lines))
	for _, line := range lines {
		m, err := s.GetModel(ctx, line.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return orders.Summary{}, ValidationError(fmt.Sprintf("%s is no longer available", line.Title))
			}
			return orders.Summary{}, err
		}
		if m.Stock < line.Quantity {
			return orders.Summary{}, ValidationError(fmt.Sprintf("only %d of %s (%s, %s, %s) left in stock",
				m.Stock, line.Title, m.Condition, m.Storage, m.Color))
		}
		items = append(items, orders.LineItem{
			ID:        newID("oi"),
			OrderID:   orderID,
			UserID:    userID,
			ModelID:   m.ID,
			Title:     line.Title,
			Condition: m.Condition,
			Storage:   m.Storage,
			Color:     m.Color,
			Price:     m.Price,
			Quantity:  line.Quantity,
			Image:     line.Image,
			Status:    orders.StatusPending,
			CreatedAt: created,
		})
	}

	for _, it := range items {
		if err := s.insertOrderItem(ctx, it); err != nil {
			return orders.Summary{}, err
		}
		if err := s.takeStock(ctx, it.ModelID, it.Quantity); err != nil {
			s.logger.Warn("stock not decremented", zap.String("order_id", orderID), zap.String("model_id", it.ModelID), zap.Error(err))
		}
	}
	if err := s.ClearCart(ctx, userID); err != nil {
		s.logger.Warn("cart not cleared after checkout", zap.String("order_id", orderID), zap.Error(err))
	}
	s.invalidatePhoneCache()

	summaries := orders.Aggregate(items)
	return summaries[0], nil
}

func (s *Store) insertOrderItem(ctx context.Context, it orders.LineItem) error {
	if s.db == nil {
		s.memMu.Lock()
		s.orderItems = append(s.orderItems, it)
		s.memMu.Unlock()
		return nil
	}
	q := `INSERT INTO order_items (id, order_id, user_id, model_id, title, condition, storage, color, price, quantity, image, status, payment_intent_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := s.db.ExecContext(ctx, q, it.ID, it.OrderID, it.UserID, it.ModelID, it.Title, it.Condition,
		it.Storage, it.Color, it.Price, it.Quantity, nilIfEmpty(it.Image), it.Status,
		nilIfEmpty(it.PaymentIntentID), it.CreatedAt)
	return mapErr(err)
}

func (s *Store) takeStock(ctx context.Context, modelID string, quantity int) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		m, ok := s.models[modelID]
		if !ok {
			return ErrNotFound
		}
		m.Stock -= quantity
		if m.Stock < 0 {
			m.Stock = 0
		}
		s.models[modelID] = m
		return nil
	}
	return expectOne(s.db.ExecContext(ctx,
		`UPDATE phone_models SET stock = GREATEST(stock - $2, 0), updated_at = $3 WHERE id = $1`,
		modelID, quantity, now()))
}

// OrderItems returns line items newest first, limited to userID unless it is empty.
func (s *Store) OrderItems(ctx context.Context, userID string) ([]orders.LineItem, error) {
	if s.db == nil {
		s.memMu.RLock()
		out := make([]orders.LineItem, 0)
		for _, it := range s.orderItems {
			if userID == "" || it.UserID == userID {
				out = append(out, it)
			}
		}
		s.memMu.RUnlock()
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return out, nil
	}

	q := `SELECT id, order_id, user_id, model_id, title, condition, storage, color, price, quantity, image, status, payment_intent_id, created_at
		FROM order_items`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC, order_id, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]orders.LineItem, 0)
	for rows.Next() {
		var it orders.LineItem
		var image, intent sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.UserID, &it.ModelID, &it.Title, &it.Condition, &it.Storage,
			&it.Color, &it.Price, &it.Quantity, &image, &it.Status, &intent, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Image = image.String
		it.PaymentIntentID = intent.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// OrderOwner returns the user an order belongs to.
func (s *Store) OrderOwner(ctx context.Context, orderID string) (string, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, it := range s.orderItems {
			if it.OrderID == orderID {
				return it.UserID, nil
			}
		}
		return "", ErrNotFound
	}
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM order_items WHERE order_id = $1 LIMIT 1`, orderID).Scan(&owner)
	return owner, mapErr(err)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	ns := orders.NormalizeStatus(status)
	if ns == "" {
		return ValidationError("invalid status")
	}
	return s.updateOrder(ctx, orderID, "status", ns)
}

// AttachPaymentIntent records the processor's intent id on every line of an order.
func (s *Store) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	return s.updateOrder(ctx, orderID, "payment_intent_id", intentID)
}

func (s *Store) updateOrder(ctx context.Context, orderID, column, value string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		found := false
		for i := range s.orderItems {
			if s.orderItems[i].OrderID != orderID {
				continue
			}
			found = true
			if column == "status" {
				s.orderItems[i].Status = value
			} else {
				s.orderItems[i].PaymentIntentID = value
			}
		}
		if !found {
			return ErrNotFound
		}
		return nil
	}
	q := fmt.Sprintf(`UPDATE order_items SET %s = $2 WHERE order_id = $1`, column)
	return expectOne(s.db.ExecContext(ctx, q, orderID, value))
}
