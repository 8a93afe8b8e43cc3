package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Review struct {
	ID         string    `json:"id"`
	PhoneID    string    `json:"phoneId"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewList struct {
	Items      []Review `json:"items"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type ReviewSummary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

const maxCommentLength = 2000

func BuildReview(phoneID, userID, author string, in ReviewInput) (Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return Review{}, ValidationError("rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(in.Comment)
	if len(comment) > maxCommentLength {
		return Review{}, ValidationError(fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
	}
	return Review{
		ID:         newID("rv"),
		PhoneID:    phoneID,
		UserID:     userID,
		AuthorName: strings.TrimSpace(author),
		Rating:     in.Rating,
		Comment:    comment,
		CreatedAt:  now(),
	}, nil
}

// CreateReview stores r. A user gets one review per phone.
func (s *Store) CreateReview(ctx context.Context, r Review) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.phones[r.PhoneID]; !ok {
			return ErrNotFound
		}
		for _, existing := range s.reviews {
			if existing.PhoneID == r.PhoneID && existing.UserID == r.UserID {
				return fmt.Errorf("%w: review", ErrConflict)
			}
		}
		s.reviews[r.ID] = r
		return nil
	}
	if _, err := s.GetPhone(ctx, r.PhoneID); err != nil {
		return err
	}
	q := `INSERT INTO reviews (id, phone_id, user_id, author_name, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.db.ExecContext(ctx, q, r.ID, r.PhoneID, r.UserID, nilIfEmpty(r.AuthorName), r.Rating,
		nilIfEmpty(r.Comment), r.CreatedAt)
	return mapErr(err)
}

// ListReviews returns one keyset page of a phone's reviews, newest first.
func (s *Store) ListReviews(ctx context.Context, phoneID, cursor string, limit int) (ReviewList, error) {
	cursorTime, cursorID, err := ParseCursor(cursor)
	if err != nil {
		return ReviewList{}, err
	}

	items := make([]Review, 0, limit+1)
	if s.db == nil {
		s.memMu.RLock()
		for _, r := range s.reviews {
			if r.PhoneID != phoneID {
				continue
			}
			if !cursorTime.IsZero() && !before(r.CreatedAt, r.ID, cursorTime, cursorID) {
				continue
			}
			items = append(items, r)
		}
		s.memMu.RUnlock()
		sort.Slice(items, func(i, j int) bool {
			return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
		})
	} else {
		args := []any{phoneID}
		where := "phone_id = $1"
		if !cursorTime.IsZero() {
			where += " AND (created_at, id) < ($2, $3)"
			args = append(args, cursorTime, cursorID)
		}
		args = append(args, limit+1)
		q := fmt.Sprintf(`SELECT id, phone_id, user_id, author_name, rating, comment, created_at
			FROM reviews WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`, where, len(args))
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return ReviewList{}, err
		}
		defer rows.Close()
		for rows.Next() {
			var r Review
			var author, comment sql.NullString
			if err := rows.Scan(&r.ID, &r.PhoneID, &r.UserID, &author, &r.Rating, &comment, &r.CreatedAt); err != nil {
				return ReviewList{}, err
			}
			r.AuthorName = author.String
			r.Comment = comment.String
			items = append(items, r)
		}
		if err := rows.Err(); err != nil {
			return ReviewList{}, err
		}
	}

	resp := ReviewList{Items: items}
	if len(items) > limit {
		last := items[limit-1]
		resp.Items = items[:limit]
		resp.NextCursor = EncodeCursor(last.CreatedAt, last.ID)
	}
	return resp, nil
}

// SummarizeReviews returns the average rating, to two places, and the count.
func (s *Store) SummarizeReviews(ctx context.Context, phoneID string) (ReviewSummary, error) {
	var sum, count int64
	if s.db == nil {
		s.memMu.RLock()
		for _, r := range s.reviews {
			if phoneID == "" || r.PhoneID == phoneID {
				sum += int64(r.Rating)
				count++
			}
		}
		s.memMu.RUnlock()
	} else {
		q := `SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM reviews`
		args := []any{}
		if phoneID != "" {
			q += ` WHERE phone_id = $1`
			args = append(args, phoneID)
		}
		if err := s.db.QueryRowContext(ctx, q, args...).Scan(&sum, &count); err != nil {
			return ReviewSummary{}, err
		}
	}
	if count == 0 {
		return ReviewSummary{}, nil
	}
	avg := decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(count), 2)
	return ReviewSummary{Average: avg.InexactFloat64(), Count: int(count)}, nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		defer s.memMu.Unlock()
		if _, ok := s.reviews[id]; !ok {
			return ErrNotFound
		}
		delete(s.reviews, id)
		return nil
	}
	return expectOne(s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id))
}
