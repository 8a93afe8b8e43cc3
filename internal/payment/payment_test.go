package payment

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
)

type fakeCreator struct {
	got   IntentParams
	err   error
	calls int
}

func (f *fakeCreator) CreateIntent(_ context.Context, p IntentParams) (Intent, error) {
	f.calls++
	f.got = p
	if f.err != nil {
		return Intent{}, f.err
	}
	return Intent{ClientSecret: "pi_1_secret_x", PaymentIntentID: "pi_1"}, nil
}

func newService(c IntentCreator) *Service {
	return &Service{Creator: c, Currency: "USD", Logger: zap.NewNop()}
}

func TestCreateIntentConvertsAmount(t *testing.T) {
	fc := &fakeCreator{}
	intent, err := newService(fc).CreateIntent(context.Background(), Request{
		Amount:   19.99,
		Metadata: Metadata{OrderID: "ord_1", CustomerEmail: "buyer@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_x", intent.ClientSecret)
	assert.Equal(t, "pi_1", intent.PaymentIntentID)
	assert.Equal(t, int64(1999), fc.got.AmountMinor)
	assert.Equal(t, "usd", fc.got.Currency)
	assert.Equal(t, map[string]string{"orderId": "ord_1", "customerEmail": "buyer@example.com"}, fc.got.Metadata)
}

func TestCreateIntentValidation(t *testing.T) {
	cases := map[string]Request{
		"zero amount":     {Amount: 0, Metadata: Metadata{OrderID: "o"}},
		"negative amount": {Amount: -5, Metadata: Metadata{OrderID: "o"}},
		"below one cent":  {Amount: 0.004, Metadata: Metadata{OrderID: "o"}},
		"missing order":   {Amount: 10},
		"bad email":       {Amount: 10, Metadata: Metadata{OrderID: "o", CustomerEmail: "not-an-email"}},
		"no tld":          {Amount: 10, Metadata: Metadata{OrderID: "o", CustomerEmail: "a@localhost"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCreator{}
			_, err := newService(fc).CreateIntent(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httpx.AsError(err).Status)
			assert.Zero(t, fc.calls, "processor must not be called")
		})
	}
}

func TestCreateIntentPassesUpstreamStatus(t *testing.T) {
	fc := &fakeCreator{err: httpx.Upstream(http.StatusPaymentRequired, "card declined", nil)}
	_, err := newService(fc).CreateIntent(context.Background(), Request{Amount: 1, Metadata: Metadata{OrderID: "o"}})
	assert.Equal(t, http.StatusPaymentRequired, httpx.AsError(err).Status)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), ToMinorUnits(500))
	assert.Equal(t, int64(1), ToMinorUnits(0.005))
	assert.Equal(t, int64(1030), ToMinorUnits(10.3))
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.CreateIntent(context.Background(), IntentParams{})
	assert.Equal(t, http.StatusServiceUnavailable, httpx.AsError(err).Status)
}
