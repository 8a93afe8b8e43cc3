package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/cart"
	"erp/ecommerce/phone-storefront/internal/httpx"
	"erp/ecommerce/phone-storefront/internal/orders"
	"erp/ecommerce/phone-storefront/internal/payment"
)

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request, code int) error {
	items, err := s.Store.CartItems(r.Context(), principal(r).Subject)
	if err != nil {
		return err
	}
	httpx.WriteOK(w, code, cart.New(items))
	return nil
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) error {
	return s.writeCart(w, r, http.StatusOK)
}

type addCartItemRequest struct {
	ModelID  string `json:"modelId"`
	Quantity *int   `json:"quantity,omitempty"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) error {
	var req addCartItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		return httpx.BadRequest("modelId is required")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if err := s.Store.AddCartItem(r.Context(), principal(r).Subject, modelID, qty); err != nil {
		return storeError(err, "phone model not found", "")
	}
	return s.writeCart(w, r, http.StatusCreated)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) error {
	modelID := chi.URLParam(r, "modelID")
	if err := s.Store.RemoveCartItem(r.Context(), principal(r).Subject, modelID); err != nil {
		return storeError(err, "cart item not found", "")
	}
	return s.writeCart(w, r, http.StatusOK)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) error {
	if err := s.Store.ClearCart(r.Context(), principal(r).Subject); err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, cart.New(nil))
	return nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) error {
	summary, err := s.Store.Checkout(r.Context(), principal(r).Subject)
	if err != nil {
		return storeError(err, "phone model not found", "")
	}
	s.Logger.Info("order placed",
		zap.String("order_id", summary.OrderID),
		zap.String("user_id", principal(r).Subject),
		zap.Int("total_items", summary.TotalItems))
	httpx.WriteOK(w, http.StatusCreated, summary)
	return nil
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) error {
	items, err := s.Store.OrderItems(r.Context(), principal(r).Subject)
	if err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, orders.Aggregate(items))
	return nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

func (s *Server) createPaymentIntent(w http.ResponseWriter, r *http.Request) error {
	var req payment.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	orderID := strings.TrimSpace(req.Metadata.OrderID)
	owner, err := s.Store.OrderOwner(r.Context(), orderID)
	if err != nil {
		return storeError(err, "order not found", "")
	}
	if owner != principal(r).Subject {
		return httpx.NotFound("order not found")
	}

	intent, err := s.Payments.CreateIntent(r.Context(), req)
	if err != nil {
		return err
	}
	if err := s.Store.AttachPaymentIntent(r.Context(), orderID, intent.PaymentIntentID); err != nil {
		s.Logger.Warn("payment intent not recorded on order",
			zap.String("order_id", orderID),
			zap.String("payment_intent_id", intent.PaymentIntentID),
			zap.Error(err))
	}
	httpx.WriteOK(w, http.StatusOK, intent)
	return nil
}
