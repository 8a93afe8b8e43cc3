package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
	"erp/ecommerce/phone-storefront/internal/orders"
	"erp/ecommerce/phone-storefront/internal/store"
)

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) error {
	d, err := s.Store.Dashboard(r.Context())
	if err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, d)
	return nil
}

func (s *Server) adminListPhones(w http.ResponseWriter, r *http.Request) error {
	f := store.PhoneFilter{
		Brand: strings.TrimSpace(r.URL.Query().Get("brand")),
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if f.Status = store.NormalizePhoneStatus(raw); f.Status == "" {
			return httpx.BadRequest("invalid status")
		}
	}
	return s.writePhonePage(w, r, f)
}

func (s *Server) explainPhones(w http.ResponseWriter, r *http.Request) error {
	plan, err := s.Store.ExplainPhones(r.Context(), store.PhoneFilter{
		Status: "active",
		Brand:  strings.TrimSpace(r.URL.Query().Get("brand")),
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
	})
	if err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, map[string]any{"plan": plan, "mode": s.Store.Mode()})
	return nil
}

func (s *Server) createPhone(w http.ResponseWriter, r *http.Request) error {
	var in store.PhoneInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return err
	}
	p, err := store.BuildPhone(principal(r).Subject, in)
	if err != nil {
		return httpx.BadRequest(err.Error())
	}
	if err := s.Store.CreatePhone(r.Context(), p); err != nil {
		return storeError(err, "phone not found", "a phone with this slug already exists")
	}
	s.Logger.Info("phone created", zap.String("phone_id", p.ID), zap.String("seller_id", p.SellerID))
	httpx.WriteOK(w, http.StatusCreated, p)
	return nil
}

func (s *Server) updatePhone(w http.ResponseWriter, r *http.Request) error {
	var patch store.PhonePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		return err
	}
	p, err := s.Store.UpdatePhone(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		return storeError(err, "phone not found", "a phone with this slug already exists")
	}
	httpx.WriteOK(w, http.StatusOK, p)
	return nil
}

func (s *Server) deletePhone(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeletePhone(r.Context(), id); err != nil {
		return storeError(err, "phone not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, map[string]string{"id": id})
	return nil
}

func (s *Server) createModel(w http.ResponseWriter, r *http.Request) error {
	var in store.ModelInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return err
	}
	m, err := store.BuildModel(chi.URLParam(r, "id"), in)
	if err != nil {
		return httpx.BadRequest(err.Error())
	}
	if err := s.Store.CreateModel(r.Context(), m); err != nil {
		return storeError(err, "phone not found", "this condition, storage and color is already listed")
	}
	httpx.WriteOK(w, http.StatusCreated, m)
	return nil
}

func (s *Server) updateModel(w http.ResponseWriter, r *http.Request) error {
	var patch store.ModelPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		return err
	}
	m, err := s.Store.UpdateModel(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		return storeError(err, "phone model not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, m)
	return nil
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteModel(r.Context(), id); err != nil {
		return storeError(err, "phone model not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, map[string]string{"id": id})
	return nil
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteReview(r.Context(), id); err != nil {
		return storeError(err, "review not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, map[string]string{"id": id})
	return nil
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) error {
	items, err := s.Store.OrderItems(r.Context(), "")
	if err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, orders.Aggregate(items))
	return nil
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) error {
	var req orderStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	if err := s.Store.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		return storeError(err, "order not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, map[string]string{"orderId": id, "status": orders.NormalizeStatus(req.Status)})
	return nil
}
