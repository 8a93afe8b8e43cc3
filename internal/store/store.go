// Package store is the storefront's relational store. With a reachable database it
// runs SQL through pgx's database/sql driver; without one it keeps everything in
// process memory so the service and its tests still work end to end.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/cart"
	"erp/ecommerce/phone-storefront/internal/config"
	"erp/ecommerce/phone-storefront/internal/orders"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// ValidationError is a rejected input; its text is safe to show the caller.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	cacheTTL time.Duration

	cacheMu   sync.RWMutex
	listCache map[string]cacheItem

	memMu      sync.RWMutex
	users      map[string]User
	phones     map[string]Phone
	models     map[string]Model
	reviews    map[string]Review
	carts      map[string][]cart.Item
	orderItems []orders.LineItem
}

// New wraps db. A nil db puts the store in memory mode.
func New(db *sql.DB, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:        db,
		logger:    logger,
		cacheTTL:  cacheTTL,
		listCache: make(map[string]cacheItem),
		users:     make(map[string]User),
		phones:    make(map[string]Phone),
		models:    make(map[string]Model),
		reviews:   make(map[string]Review),
		carts:     make(map[string][]cart.Item),
	}
}

// Open connects and prepares the schema, falling back to memory mode when either
// step fails.
func Open(ctx context.Context, cfg config.DatabaseConfig, cacheTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := Connect(ctx, cfg)
	if err != nil {
		logger.Warn("database unavailable, running storefront in memory mode", zap.Error(err))
		return New(nil, cacheTTL, logger)
	}
	s := New(db, cacheTTL, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		logger.Warn("schema setup failed, using memory mode", zap.Error(err))
		_ = db.Close()
		s.db = nil
	}
	return s
}

func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Mode reports "postgres" or "memory".
func (s *Store) Mode() string {
	if s.db == nil {
		return "memory"
	}
	return "postgres"
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("no database configured")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT,
			last_name TEXT,
			role TEXT CHECK (role IN ('customer','seller','admin')) DEFAULT 'customer',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS phones (
			id TEXT PRIMARY KEY,
			seller_id TEXT NOT NULL,
			brand TEXT NOT NULL,
			title TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT,
			image_url TEXT,
			status TEXT CHECK (status IN ('active','draft','archived')) DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phones_status_created ON phones (status, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_phones_brand ON phones (brand)`,
		`CREATE TABLE IF NOT EXISTS phone_models (
			id TEXT PRIMARY KEY,
			phone_id TEXT NOT NULL REFERENCES phones(id) ON DELETE CASCADE,
			condition TEXT CHECK (condition IN ('new','excellent','good','fair')) NOT NULL,
			storage TEXT NOT NULL,
			color TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (phone_id, condition, storage, color)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			phone_id TEXT NOT NULL REFERENCES phones(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			author_name TEXT,
			rating INT CHECK (rating BETWEEN 1 AND 5) NOT NULL,
			comment TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (phone_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_phone_created ON reviews (phone_id, created_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id TEXT NOT NULL,
			model_id TEXT NOT NULL REFERENCES phone_models(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			condition TEXT NOT NULL,
			storage TEXT NOT NULL,
			color TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL,
			quantity INT NOT NULL CHECK (quantity > 0),
			image TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, model_id)
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			title TEXT NOT NULL,
			condition TEXT NOT NULL,
			storage TEXT NOT NULL,
			color TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL,
			quantity INT NOT NULL,
			image TEXT,
			status TEXT CHECK (status IN ('pending','paid','shipped','delivered','cancelled')) DEFAULT 'pending',
			payment_intent_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_user_created ON order_items (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// mapErr turns driver errors into the store's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func now() time.Time {
	return time.Now().UTC()
}

// ---------------------------------------------------------------------------
// Cursor helpers
// ---------------------------------------------------------------------------

// ParseCursor decodes "<unix nanos>:<id>". An empty cursor is the first page.
func ParseCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, "", ValidationError("invalid cursor format")
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ValidationError("invalid cursor timestamp")
	}
	if parts[1] == "" {
		return time.Time{}, "", ValidationError("invalid cursor id")
	}
	return time.Unix(0, n).UTC(), parts[1], nil
}

func EncodeCursor(ts time.Time, id string) string {
	return fmt.Sprintf("%d:%s", ts.UTC().UnixNano(), id)
}

// before reports whether (ts, id) sorts after the cursor position in a
// created_at DESC, id DESC listing.
func before(ts time.Time, id string, cursorTime time.Time, cursorID string) bool {
	return ts.Before(cursorTime) || (ts.Equal(cursorTime) && id < cursorID)
}

func newestFirst(ai, bi time.Time, aid, bid string) bool {
	if ai.Equal(bi) {
		return aid > bid
	}
	return ai.After(bi)
}
