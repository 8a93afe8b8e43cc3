package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User mirrors an identity provider account. ID is the provider's subject.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return r
	default:
		return ""
	}
}

// UpsertUser inserts u or refreshes the stored profile for its id.
func (s *Store) UpsertUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" || strings.TrimSpace(u.Email) == "" {
		return User{}, ValidationError("user id and email are required")
	}
	if u.Role = NormalizeRole(u.Role); u.Role == "" {
		u.Role = RoleCustomer
	}
	ts := now()
	u.UpdatedAt = ts
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}

	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		for _, other := range s.users {
			if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
				return User{}, fmt.Errorf("%w: email %q", ErrConflict, u.Email)
			}
		}
		if existing, ok := s.users[u.ID]; ok {
			u.CreatedAt = existing.CreatedAt
		}
		s.users[u.ID] = u
		return u, nil
	}

	q := `INSERT INTO users (id, email, first_name, last_name, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name, role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, q, u.ID, u.Email, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName),
		u.Role, u.CreatedAt, u.UpdatedAt).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	if s.db == nil {
		s.memMu.RLock()
		u, ok := s.users[id]
		s.memMu.RUnlock()
		if !ok {
			return User{}, ErrNotFound
		}
		return u, nil
	}
	var u User
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, email, first_name, last_name, role, created_at, updated_at
		FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Email, &first, &last, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, mapErr(err)
	}
	u.FirstName = first.String
	u.LastName = last.String
	return u, nil
}
