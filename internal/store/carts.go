package store

import (
	"context"
	"database/sql"
	"fmt"

	"erp/ecommerce/phone-storefront/internal/cart"
)

// CartItems returns the user's server-side cart lines in the order they were added.
func (s *Store) CartItems(ctx context.Context, userID string) ([]cart.Item, error) {
	if s.db == nil {
		s.memMu.RLock()
		items := append([]cart.Item(nil), s.carts[userID]...)
		s.memMu.RUnlock()
		return items, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT model_id, title, condition, storage, color, price, quantity, image
		FROM cart_items WHERE user_id = $1 ORDER BY created_at ASC, model_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]cart.Item, 0)
	for rows.Next() {
		var it cart.Item
		var image sql.NullString
		if err := rows.Scan(&it.ID, &it.Title, &it.Condition, &it.Storage, &it.Color, &it.Price, &it.Quantity, &image); err != nil {
			return nil, err
		}
		it.Image = image.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// MaxLineQuantity caps a single cart line, including what is already in the cart.
const MaxLineQuantity = 99

var errLineTooLarge = ValidationError(fmt.Sprintf("a cart line cannot hold more than %d units", MaxLineQuantity))

// AddCartItem adds quantity of a model to the user's cart, summing with an
// existing line. Title, price and image are snapshotted from the catalog.
func (s *Store) AddCartItem(ctx context.Context, userID, modelID string, quantity int) error {
	if quantity < 1 {
		return ValidationError("quantity must be at least 1")
	}
	if quantity > MaxLineQuantity {
		return errLineTooLarge
	}
	m, err := s.GetModel(ctx, modelID)
	if err != nil {
		return err
	}
	p, err := s.GetPhone(ctx, m.PhoneID)
	if err != nil {
		return err
	}
	if p.Status != "active" {
		return ValidationError(fmt.Sprintf("%s is not for sale", p.Title))
	}
	item := cart.Item{
		ID:        m.ID,
		Title:     p.Title,
		Condition: m.Condition,
		Storage:   m.Storage,
		Color:     m.Color,
		Price:     m.Price,
		Quantity:  quantity,
		Image:     p.ImageURL,
	}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		lines := s.carts[userID]
		for i := range lines {
			if lines[i].ID == modelID {
				if lines[i].Quantity+quantity > MaxLineQuantity {
					return errLineTooLarge
				}
				lines[i].Quantity += quantity
				return nil
			}
		}
		s.carts[userID] = append(lines, item)
		return nil
	}

	q := `INSERT INTO cart_items (user_id, model_id, title, condition, storage, color, price, quantity, image, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id, model_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		WHERE cart_items.quantity + EXCLUDED.quantity <= $11`
	res, err := s.db.ExecContext(ctx, q, userID, item.ID, item.Title, item.Condition, item.Storage, item.Color,
		item.Price, item.Quantity, nilIfEmpty(item.Image), now(), MaxLineQuantity)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errLineTooLarge
	}
	return nil
}

// RemoveCartItem deletes one line. ErrNotFound when the user has no such line.
func (s *Store) RemoveCartItem(ctx context.Context, userID, modelID string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		lines := s.carts[userID]
		for i := range lines {
			if lines[i].ID == modelID {
				s.carts[userID] = append(lines[:i:i], lines[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	}
	return expectOne(s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND model_id = $2`, userID, modelID))
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if s.db == nil {
		s.memMu.Lock()
		delete(s.carts, userID)
		s.memMu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (s *Store) dropFromCartsLocked(modelID string) {
	for user, lines := range s.carts {
		kept := lines[:0:0]
		for _, it := range lines {
			if it.ID != modelID {
				kept = append(kept, it)
			}
		}
		s.carts[user] = kept
	}
}
