package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

type Phone struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"sellerId"`
	Brand       string    `json:"brand"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Status      string    `json:"status"`
	PriceFrom   float64   `json:"priceFrom,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Model is one sellable configuration of a phone.
type Model struct {
	ID        string    `json:"id"`
	PhoneID   string    `json:"phoneId"`
	Condition string    `json:"condition"`
	Storage   string    `json:"storage"`
	Color     string    `json:"color"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PhoneInput struct {
	Brand       string `json:"brand"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Status      string `json:"status"`
}

type PhonePatch struct {
	Brand       *string `json:"brand,omitempty"`
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	Status      *string `json:"status,omitempty"`
}

type ModelInput struct {
	Condition string  `json:"condition"`
	Storage   string  `json:"storage"`
	Color     string  `json:"color"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
}

type ModelPatch struct {
	Price *float64 `json:"price,omitempty"`
	Stock *int     `json:"stock,omitempty"`
}

type PhoneFilter struct {
	Brand  string
	Query  string
	Status string
}

type PhoneList struct {
	Items      []Phone `json:"items"`
	NextCursor string  `json:"nextCursor,omitempty"`
	Cached     bool    `json:"cached"`
}

// ---------------------------------------------------------------------------
// Build / Validate
// ---------------------------------------------------------------------------

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func BuildPhone(sellerID string, in PhoneInput) (Phone, error) {
	if strings.TrimSpace(in.Brand) == "" {
		return Phone{}, ValidationError("brand is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return Phone{}, ValidationError("title is required")
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(in.Brand + " " + in.Title)
	}
	if !slugPattern.MatchString(slug) {
		return Phone{}, ValidationError("slug must be lowercase letters, digits and dashes")
	}
	status := NormalizePhoneStatus(in.Status)
	if in.Status != "" && status == "" {
		return Phone{}, ValidationError("invalid status")
	}
	if status == "" {
		status = "draft"
	}
	ts := now()
	return Phone{
		ID:          newID("ph"),
		SellerID:    sellerID,
		Brand:       strings.TrimSpace(in.Brand),
		Title:       strings.TrimSpace(in.Title),
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Status:      status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

func BuildModel(phoneID string, in ModelInput) (Model, error) {
	cond := NormalizeCondition(in.Condition)
	if cond == "" {
		return Model{}, ValidationError("condition must be one of new, excellent, good, fair")
	}
	if strings.TrimSpace(in.Storage) == "" {
		return Model{}, ValidationError("storage is required")
	}
	if strings.TrimSpace(in.Color) == "" {
		return Model{}, ValidationError("color is required")
	}
	if in.Price <= 0 {
		return Model{}, ValidationError("price must be greater than 0")
	}
	if in.Stock < 0 {
		return Model{}, ValidationError("stock cannot be negative")
	}
	ts := now()
	return Model{
		ID:        newID("pm"),
		PhoneID:   phoneID,
		Condition: cond,
		Storage:   strings.TrimSpace(in.Storage),
		Color:     strings.TrimSpace(in.Color),
		Price:     in.Price,
		Stock:     in.Stock,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

func NormalizePhoneStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "active", "draft", "archived":
		return s
	default:
		return ""
	}
}

func NormalizeCondition(condition string) string {
	s := strings.ToLower(strings.TrimSpace(condition))
	switch s {
	case "new", "excellent", "good", "fair":
		return s
	default:
		return ""
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns "Google Pixel 8 Pro" into "google-pixel-8-pro".
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ---------------------------------------------------------------------------
// Phones
// ---------------------------------------------------------------------------

const phoneColumns = `p.id, p.seller_id, p.brand, p.title, p.slug, p.description, p.image_url, p.status,
	(SELECT MIN(m.price) FROM phone_models m WHERE m.phone_id = p.id), p.created_at, p.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPhone(row scanner) (Phone, error) {
	var p Phone
	var desc, img sql.NullString
	var from sql.NullFloat64
	if err := row.Scan(&p.ID, &p.SellerID, &p.Brand, &p.Title, &p.Slug, &desc, &img, &p.Status, &from, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Phone{}, err
	}
	p.Description = desc.String
	p.ImageURL = img.String
	p.PriceFrom = from.Float64
	return p, nil
}

func (s *Store) CreatePhone(ctx context.Context, p Phone) error {
	if s.db == nil {
		s.memMu.Lock()
		for _, existing := range s.phones {
			if existing.Slug == p.Slug {
				s.memMu.Unlock()
				return fmt.Errorf("%w: slug %q", ErrConflict, p.Slug)
			}
		}
		s.phones[p.ID] = p
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return nil
	}
	q := `INSERT INTO phones (id, seller_id, brand, title, slug, description, image_url, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := s.db.ExecContext(ctx, q,
		p.ID, p.SellerID, p.Brand, p.Title, p.Slug, nilIfEmpty(p.Description), nilIfEmpty(p.ImageURL),
		p.Status, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return mapErr(err)
	}
	s.invalidatePhoneCache()
	return nil
}

func (s *Store) GetPhone(ctx context.Context, id string) (Phone, error) {
	return s.getPhoneBy(ctx, "id", id)
}

func (s *Store) GetPhoneBySlug(ctx context.Context, slug string) (Phone, error) {
	return s.getPhoneBy(ctx, "slug", slug)
}

func (s *Store) getPhoneBy(ctx context.Context, column, value string) (Phone, error) {
	if s.db == nil {
		s.memMu.RLock()
		defer s.memMu.RUnlock()
		for _, p := range s.phones {
			if (column == "id" && p.ID == value) || (column == "slug" && p.Slug == value) {
				p.PriceFrom = s.priceFromLocked(p.ID)
				return p, nil
			}
		}
		return Phone{}, ErrNotFound
	}
	q := fmt.Sprintf(`SELECT %s FROM phones p WHERE p.%s = $1`, phoneColumns, column)
	p, err := scanPhone(s.db.QueryRowContext(ctx, q, value))
	return p, mapErr(err)
}

func (s *Store) priceFromLocked(phoneID string) float64 {
	var from float64
	for _, m := range s.models {
		if m.PhoneID == phoneID && (from == 0 || m.Price < from) {
			from = m.Price
		}
	}
	return from
}

// ListPhones returns one keyset page, newest first. First pages are cached.
func (s *Store) ListPhones(ctx context.Context, f PhoneFilter, cursor string, limit int) (PhoneList, error) {
	key := phoneCacheKey(f, cursor, limit)
	if cursor == "" {
		if cached, ok := s.getListCache(key); ok {
			cached.Cached = true
			return cached, nil
		}
	}

	cursorTime, cursorID, err := ParseCursor(cursor)
	if err != nil {
		return PhoneList{}, err
	}

	var items []Phone
	if s.db == nil {
		items = s.listPhonesMemory(f, cursorTime, cursorID, limit)
	} else {
		where, args := phoneWhere(f)
		next := len(args) + 1
		if !cursorTime.IsZero() {
			where = append(where, fmt.Sprintf("(p.created_at, p.id) < ($%d, $%d)", next, next+1))
			args = append(args, cursorTime, cursorID)
			next += 2
		}
		args = append(args, limit+1)
		q := fmt.Sprintf(`SELECT %s FROM phones p %s ORDER BY p.created_at DESC, p.id DESC LIMIT $%d`,
			phoneColumns, whereClause(where), next)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return PhoneList{}, err
		}
		defer rows.Close()
		items = make([]Phone, 0, limit+1)
		for rows.Next() {
			p, err := scanPhone(rows)
			if err != nil {
				return PhoneList{}, err
			}
			items = append(items, p)
		}
		if err := rows.Err(); err != nil {
			return PhoneList{}, err
		}
	}

	resp := PhoneList{Items: items}
	if len(items) > limit {
		last := items[limit-1]
		resp.Items = items[:limit]
		resp.NextCursor = EncodeCursor(last.CreatedAt, last.ID)
	}
	if cursor == "" {
		s.setListCache(key, resp)
	}
	return resp, nil
}

// listPhonesMemory returns up to limit+1 matches; a negative limit returns all.
func (s *Store) listPhonesMemory(f PhoneFilter, cursorTime time.Time, cursorID string, limit int) []Phone {
	s.memMu.RLock()
	items := make([]Phone, 0)
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, p := range s.phones {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(p.Brand, f.Brand) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Brand), q) {
			continue
		}
		if !cursorTime.IsZero() && !before(p.CreatedAt, p.ID, cursorTime, cursorID) {
			continue
		}
		p.PriceFrom = s.priceFromLocked(p.ID)
		items = append(items, p)
	}
	s.memMu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	if limit >= 0 && len(items) > limit+1 {
		items = items[:limit+1]
	}
	return items
}

func phoneWhere(f PhoneFilter) ([]string, []any) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if f.Brand != "" {
		args = append(args, f.Brand)
		where = append(where, fmt.Sprintf("lower(p.brand) = lower($%d)", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(p.title ILIKE $%d OR p.brand ILIKE $%d)", len(args), len(args)))
	}
	return where, args
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(where, " AND ")
}

// ActivePhones returns every active phone, newest first.
func (s *Store) ActivePhones(ctx context.Context) ([]Phone, error) {
	if s.db == nil {
		return s.listPhonesMemory(PhoneFilter{Status: "active"}, time.Time{}, "", -1), nil
	}
	q := fmt.Sprintf(`SELECT %s FROM phones p WHERE p.status = 'active' ORDER BY p.created_at DESC, p.id DESC`, phoneColumns)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Phone
	for rows.Next() {
		p, err := scanPhone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePhone(ctx context.Context, id string, patch PhonePatch) (Phone, error) {
	if patch.Brand == nil && patch.Title == nil && patch.Slug == nil &&
		patch.Description == nil && patch.ImageURL == nil && patch.Status == nil {
		return Phone{}, ValidationError("empty update payload")
	}
	if patch.Status != nil && NormalizePhoneStatus(*patch.Status) == "" {
		return Phone{}, ValidationError("invalid status")
	}
	if patch.Slug != nil && !slugPattern.MatchString(strings.TrimSpace(*patch.Slug)) {
		return Phone{}, ValidationError("slug must be lowercase letters, digits and dashes")
	}
	if patch.Brand != nil && strings.TrimSpace(*patch.Brand) == "" {
		return Phone{}, ValidationError("brand is required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return Phone{}, ValidationError("title is required")
	}

	if s.db == nil {
		s.memMu.Lock()
		p, ok := s.phones[id]
		if !ok {
			s.memMu.Unlock()
			return Phone{}, ErrNotFound
		}
		if patch.Slug != nil {
			slug := strings.TrimSpace(*patch.Slug)
			for _, other := range s.phones {
				if other.ID != id && other.Slug == slug {
					s.memMu.Unlock()
					return Phone{}, fmt.Errorf("%w: slug %q", ErrConflict, slug)
				}
			}
			p.Slug = slug
		}
		if patch.Brand != nil {
			p.Brand = strings.TrimSpace(*patch.Brand)
		}
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ImageURL != nil {
			p.ImageURL = strings.TrimSpace(*patch.ImageURL)
		}
		if patch.Status != nil {
			p.Status = NormalizePhoneStatus(*patch.Status)
		}
		p.UpdatedAt = now()
		s.phones[id] = p
		p.PriceFrom = s.priceFromLocked(id)
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return p, nil
	}

	assignments := make([]string, 0, 7)
	args := []any{id}
	set := func(column string, v any) {
		args = append(args, v)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Brand != nil {
		set("brand", strings.TrimSpace(*patch.Brand))
	}
	if patch.Title != nil {
		set("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Slug != nil {
		set("slug", strings.TrimSpace(*patch.Slug))
	}
	if patch.Description != nil {
		set("description", strings.TrimSpace(*patch.Description))
	}
	if patch.ImageURL != nil {
		set("image_url", strings.TrimSpace(*patch.ImageURL))
	}
	if patch.Status != nil {
		set("status", NormalizePhoneStatus(*patch.Status))
	}
	set("updated_at", now())

	q := fmt.Sprintf(`UPDATE phones SET %s WHERE id = $1`, strings.Join(assignments, ", "))
	if err := expectOne(s.db.ExecContext(ctx, q, args...)); err != nil {
		return Phone{}, err
	}
	s.invalidatePhoneCache()
	return s.GetPhone(ctx, id)
}

// DeletePhone removes the phone with its models and reviews.
func (s *Store) DeletePhone(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		if _, ok := s.phones[id]; !ok {
			s.memMu.Unlock()
			return ErrNotFound
		}
		delete(s.phones, id)
		for mid, m := range s.models {
			if m.PhoneID == id {
				delete(s.models, mid)
				s.dropFromCartsLocked(mid)
			}
		}
		for rid, r := range s.reviews {
			if r.PhoneID == id {
				delete(s.reviews, rid)
			}
		}
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return nil
	}
	if err := expectOne(s.db.ExecContext(ctx, `DELETE FROM phones WHERE id = $1`, id)); err != nil {
		return err
	}
	s.invalidatePhoneCache()
	return nil
}

// ExplainPhones returns the planner's view of the public phone list query.
func (s *Store) ExplainPhones(ctx context.Context, f PhoneFilter) (any, error) {
	if s.db == nil {
		return map[string]any{"mode": "memory", "note": "no SQL plan available"}, nil
	}
	where, args := phoneWhere(f)
	q := fmt.Sprintf(`EXPLAIN (ANALYZE FALSE, FORMAT JSON)
		SELECT %s FROM phones p %s ORDER BY p.created_at DESC, p.id DESC LIMIT 50`, phoneColumns, whereClause(where))
	var planRaw []byte
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&planRaw); err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal(planRaw, &parsed); err != nil {
		return string(planRaw), nil
	}
	return parsed, nil
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

func (s *Store) CreateModel(ctx context.Context, m Model) error {
	if s.db == nil {
		s.memMu.Lock()
		if _, ok := s.phones[m.PhoneID]; !ok {
			s.memMu.Unlock()
			return ErrNotFound
		}
		for _, existing := range s.models {
			if existing.PhoneID == m.PhoneID && existing.Condition == m.Condition &&
				existing.Storage == m.Storage && existing.Color == m.Color {
				s.memMu.Unlock()
				return fmt.Errorf("%w: model listing", ErrConflict)
			}
		}
		s.models[m.ID] = m
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return nil
	}
	if _, err := s.GetPhone(ctx, m.PhoneID); err != nil {
		return err
	}
	q := `INSERT INTO phone_models (id, phone_id, condition, storage, color, price, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := s.db.ExecContext(ctx, q,
		m.ID, m.PhoneID, m.Condition, m.Storage, m.Color, m.Price, m.Stock, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return mapErr(err)
	}
	s.invalidatePhoneCache()
	return nil
}

func (s *Store) GetModel(ctx context.Context, id string) (Model, error) {
	if s.db == nil {
		s.memMu.RLock()
		m, ok := s.models[id]
		s.memMu.RUnlock()
		if !ok {
			return Model{}, ErrNotFound
		}
		return m, nil
	}
	var m Model
	err := s.db.QueryRowContext(ctx, `SELECT id, phone_id, condition, storage, color, price, stock, created_at, updated_at
		FROM phone_models WHERE id = $1`, id).Scan(
		&m.ID, &m.PhoneID, &m.Condition, &m.Storage, &m.Color, &m.Price, &m.Stock, &m.CreatedAt, &m.UpdatedAt)
	return m, mapErr(err)
}

// ModelsByPhone returns a phone's models, cheapest first.
func (s *Store) ModelsByPhone(ctx context.Context, phoneID string) ([]Model, error) {
	if s.db == nil {
		s.memMu.RLock()
		out := make([]Model, 0)
		for _, m := range s.models {
			if m.PhoneID == phoneID {
				out = append(out, m)
			}
		}
		s.memMu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			if out[i].Price == out[j].Price {
				return out[i].ID < out[j].ID
			}
			return out[i].Price < out[j].Price
		})
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, phone_id, condition, storage, color, price, stock, created_at, updated_at
		FROM phone_models WHERE phone_id = $1 ORDER BY price ASC, id ASC`, phoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Model, 0)
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.PhoneID, &m.Condition, &m.Storage, &m.Color, &m.Price, &m.Stock, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateModel(ctx context.Context, id string, patch ModelPatch) (Model, error) {
	if patch.Price == nil && patch.Stock == nil {
		return Model{}, ValidationError("empty update payload")
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return Model{}, ValidationError("price must be greater than 0")
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return Model{}, ValidationError("stock cannot be negative")
	}

	if s.db == nil {
		s.memMu.Lock()
		m, ok := s.models[id]
		if !ok {
			s.memMu.Unlock()
			return Model{}, ErrNotFound
		}
		if patch.Price != nil {
			m.Price = *patch.Price
		}
		if patch.Stock != nil {
			m.Stock = *patch.Stock
		}
		m.UpdatedAt = now()
		s.models[id] = m
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return m, nil
	}

	assignments := []string{}
	args := []any{id}
	if patch.Price != nil {
		args = append(args, *patch.Price)
		assignments = append(assignments, fmt.Sprintf("price = $%d", len(args)))
	}
	if patch.Stock != nil {
		args = append(args, *patch.Stock)
		assignments = append(assignments, fmt.Sprintf("stock = $%d", len(args)))
	}
	args = append(args, now())
	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)))
	q := fmt.Sprintf(`UPDATE phone_models SET %s WHERE id = $1`, strings.Join(assignments, ", "))
	if err := expectOne(s.db.ExecContext(ctx, q, args...)); err != nil {
		return Model{}, err
	}
	s.invalidatePhoneCache()
	return s.GetModel(ctx, id)
}

func (s *Store) DeleteModel(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		if _, ok := s.models[id]; !ok {
			s.memMu.Unlock()
			return ErrNotFound
		}
		delete(s.models, id)
		s.dropFromCartsLocked(id)
		s.memMu.Unlock()
		s.invalidatePhoneCache()
		return nil
	}
	if err := expectOne(s.db.ExecContext(ctx, `DELETE FROM phone_models WHERE id = $1`, id)); err != nil {
		return err
	}
	s.invalidatePhoneCache()
	return nil
}
