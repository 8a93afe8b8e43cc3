package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
)

// Remote is the server-side cart store.
type Remote interface {
	Fetch(ctx context.Context) ([]Item, error)
	AddItem(ctx context.Context, modelID string, quantity int) error
	DeleteItem(ctx context.Context, modelID string) error
}

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a title+message toast shown to the shopper.
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// ErrNotConfirmed is returned when the shopper declines a destructive action.
var ErrNotConfirmed = errors.New("action not confirmed")

// Syncer applies server-side cart changes and then re-reads the server cart.
// Local state only changes through that re-read.
type Syncer struct {
	Remote   Remote
	Cart     Committer
	Notifier Notifier
	// Confirm asks before a removal; nil means confirmed.
	Confirm func(ctx context.Context, prompt string) bool
	Logger  *zap.Logger
}

// Remove deletes a line on the server. On failure the shopper is told and the
// local cart is left alone; on success the cart is re-fetched.
func (s *Syncer) Remove(ctx context.Context, modelID string) error {
	if s.Confirm != nil && !s.Confirm(ctx, "Remove this item from your cart?") {
		return ErrNotConfirmed
	}
	if err := s.Remote.DeleteItem(ctx, modelID); err != nil {
		s.logger().Warn("cart item removal failed", zap.String("model_id", modelID), zap.Error(err))
		s.notify(NoticeError, "Error", failureMessage(err, "Failed to remove item"))
		return err
	}
	s.notify(NoticeSuccess, "Removed", "Item removed from cart")
	return s.Sync(ctx)
}

// Add puts quantity units of a model into the server cart and re-syncs.
func (s *Syncer) Add(ctx context.Context, modelID string, quantity int) error {
	if err := s.Remote.AddItem(ctx, modelID, quantity); err != nil {
		s.notify(NoticeError, "Error", failureMessage(err, "Failed to add item"))
		return err
	}
	s.notify(NoticeSuccess, "Added", "Item added to cart")
	return s.Sync(ctx)
}

// Sync replaces local state with the server cart.
func (s *Syncer) Sync(ctx context.Context) error {
	items, err := s.Remote.Fetch(ctx)
	if err != nil {
		s.notify(NoticeError, "Error", failureMessage(err, "Failed to load cart"))
		return err
	}
	return s.Cart.Commit(ctx, New(items))
}

func (s *Syncer) notify(kind NoticeKind, title, msg string) {
	if s.Notifier != nil {
		s.Notifier.Notify(Notice{Kind: kind, Title: title, Message: msg})
	}
}

func (s *Syncer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func failureMessage(err error, def string) string {
	var he *httpx.Error
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return def
}

// ---------------------------------------------------------------------------
// HTTP remote
// ---------------------------------------------------------------------------

// HTTPRemote talks to the storefront cart routes with the shopper's session token.
type HTTPRemote struct {
	BaseURL string
	Client  *http.Client
	Token   func(ctx context.Context) (string, error)
}

func (h *HTTPRemote) Fetch(ctx context.Context) ([]Item, error) {
	resp, err := h.do(ctx, http.MethodGet, "/api/cart", "")
	if err != nil {
		return nil, err
	}
	c, err := httpx.DecodeEnvelope[Cart](resp)
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

type addItemBody struct {
	ModelID  string `json:"modelId"`
	Quantity int    `json:"quantity"`
}

func (h *HTTPRemote) AddItem(ctx context.Context, modelID string, quantity int) error {
	body, err := json.Marshal(addItemBody{ModelID: modelID, Quantity: quantity})
	if err != nil {
		return err
	}
	resp, err := h.do(ctx, http.MethodPost, "/api/cart/items", string(body))
	if err != nil {
		return err
	}
	_, err = httpx.DecodeEnvelope[Cart](resp)
	return err
}

func (h *HTTPRemote) DeleteItem(ctx context.Context, modelID string) error {
	resp, err := h.do(ctx, http.MethodDelete, "/api/cart/items/"+url.PathEscape(modelID), "")
	if err != nil {
		return err
	}
	_, err = httpx.DecodeEnvelope[Cart](resp)
	return err
}

func (h *HTTPRemote) do(ctx context.Context, method, path, body string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(h.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.Token != nil {
		token, err := h.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, httpx.Upstream(http.StatusBadGateway, "cart service unreachable", err)
	}
	return resp, nil
}
