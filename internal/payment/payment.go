// Package payment creates payment intents with the payment processor.
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
)

// Request is the body of a create-intent call. Amount is in major units.
type Request struct {
	Amount   float64  `json:"amount"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	OrderID       string `json:"orderId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

type Intent struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// IntentParams is what the processor receives: minor units plus metadata.
type IntentParams struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// IntentCreator is the processor call.
type IntentCreator interface {
	CreateIntent(ctx context.Context, p IntentParams) (Intent, error)
}

type Service struct {
	Creator  IntentCreator
	Currency string
	Logger   *zap.Logger
}

// CreateIntent validates req, converts the amount to minor units and asks the
// processor for an intent.
func (s *Service) CreateIntent(ctx context.Context, req Request) (Intent, error) {
	params, err := buildIntentParams(req, s.Currency)
	if err != nil {
		return Intent{}, err
	}
	intent, err := s.Creator.CreateIntent(ctx, params)
	if err != nil {
		s.Logger.Error("payment intent failed",
			zap.String("order_id", req.Metadata.OrderID),
			zap.Int64("amount_minor", params.AmountMinor),
			zap.Error(err))
		return Intent{}, err
	}
	s.Logger.Info("payment intent created",
		zap.String("order_id", req.Metadata.OrderID),
		zap.String("payment_intent_id", intent.PaymentIntentID))
	return intent, nil
}

// Validate applies the checks CreateIntent makes before calling the processor.
func (r Request) Validate() error {
	_, err := buildIntentParams(r, "")
	return err
}

func buildIntentParams(req Request, currency string) (IntentParams, error) {
	if req.Amount <= 0 {
		return IntentParams{}, httpx.BadRequest("amount must be greater than 0")
	}
	orderID := strings.TrimSpace(req.Metadata.OrderID)
	if orderID == "" {
		return IntentParams{}, httpx.BadRequest("metadata.orderId is required")
	}
	meta := map[string]string{"orderId": orderID}
	if email := strings.TrimSpace(req.Metadata.CustomerEmail); email != "" {
		if !httpx.ValidEmail(email) {
			return IntentParams{}, httpx.BadRequest("metadata.customerEmail is not a valid email address")
		}
		meta["customerEmail"] = email
	}
	if currency == "" {
		currency = "usd"
	}
	minor := ToMinorUnits(req.Amount)
	if minor < 1 {
		return IntentParams{}, httpx.BadRequest("amount must be at least one minor unit")
	}
	return IntentParams{
		AmountMinor: minor,
		Currency:    strings.ToLower(currency),
		Metadata:    meta,
	}, nil
}

// ToMinorUnits converts 19.99 to 1999, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// ---------------------------------------------------------------------------
// Stripe
// ---------------------------------------------------------------------------

// StripeCreator creates intents with automatic payment methods enabled.
type StripeCreator struct {
	api *client.API
}

func NewStripeCreator(secretKey string) *StripeCreator {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeCreator{api: api}
}

func (c *StripeCreator) CreateIntent(ctx context.Context, p IntentParams) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountMinor),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, stripeError(err)
	}
	return Intent{ClientSecret: pi.ClientSecret, PaymentIntentID: pi.ID}, nil
}

func stripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = "payment processor error"
		}
		return httpx.Upstream(se.HTTPStatusCode, msg, err)
	}
	return httpx.Upstream(http.StatusBadGateway, "payment processor unreachable", err)
}

// Unconfigured rejects every call; used when no secret key is set.
type Unconfigured struct{}

func (Unconfigured) CreateIntent(context.Context, IntentParams) (Intent, error) {
	return Intent{}, httpx.Upstream(http.StatusServiceUnavailable, "payment processor is not configured", nil)
}
