package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"erp/ecommerce/phone-storefront/internal/httpx"
	"erp/ecommerce/phone-storefront/internal/sitemap"
	"erp/ecommerce/phone-storefront/internal/store"
)

func (s *Server) listPhones(w http.ResponseWriter, r *http.Request) error {
	f := store.PhoneFilter{
		Status: "active",
		Brand:  strings.TrimSpace(r.URL.Query().Get("brand")),
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
	}
	return s.writePhonePage(w, r, f)
}

func (s *Server) writePhonePage(w http.ResponseWriter, r *http.Request, f store.PhoneFilter) error {
	limit := httpx.IntParam(r, "limit", 24, 1, 100)
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	page, err := s.Store.ListPhones(r.Context(), f, cursor, limit)
	if err != nil {
		return storeError(err, "phone not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, page)
	return nil
}

// resolvePhone accepts either a slug or an id. Phones that are not on sale are
// reported as missing.
func (s *Server) resolvePhone(r *http.Request) (store.Phone, error) {
	ref := chi.URLParam(r, "phone")
	p, err := s.Store.GetPhoneBySlug(r.Context(), ref)
	if errors.Is(err, store.ErrNotFound) {
		p, err = s.Store.GetPhone(r.Context(), ref)
	}
	if err != nil {
		return store.Phone{}, storeError(err, "phone not found", "")
	}
	if p.Status != "active" {
		return store.Phone{}, httpx.NotFound("phone not found")
	}
	return p, nil
}

type phoneDetail struct {
	Phone   store.Phone         `json:"phone"`
	Models  []store.Model       `json:"models"`
	Reviews store.ReviewSummary `json:"reviews"`
}

func (s *Server) getPhone(w http.ResponseWriter, r *http.Request) error {
	p, err := s.resolvePhone(r)
	if err != nil {
		return err
	}
	models, err := s.Store.ModelsByPhone(r.Context(), p.ID)
	if err != nil {
		return err
	}
	summary, err := s.Store.SummarizeReviews(r.Context(), p.ID)
	if err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, phoneDetail{Phone: p, Models: models, Reviews: summary})
	return nil
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) error {
	p, err := s.resolvePhone(r)
	if err != nil {
		return err
	}
	limit := httpx.IntParam(r, "limit", 10, 1, 50)
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	page, err := s.Store.ListReviews(r.Context(), p.ID, cursor, limit)
	if err != nil {
		return storeError(err, "phone not found", "")
	}
	httpx.WriteOK(w, http.StatusOK, page)
	return nil
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) error {
	p, err := s.resolvePhone(r)
	if err != nil {
		return err
	}
	var in store.ReviewInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return err
	}
	who := principal(r)
	author := who.Name
	if author == "" {
		author = who.Email
	}
	review, err := store.BuildReview(p.ID, who.Subject, author, in)
	if err != nil {
		return httpx.BadRequest(err.Error())
	}
	if err := s.Store.CreateReview(r.Context(), review); err != nil {
		return storeError(err, "phone not found", "you have already reviewed this phone")
	}
	httpx.WriteOK(w, http.StatusCreated, review)
	return nil
}

func (s *Server) serveSitemap(w http.ResponseWriter, r *http.Request) error {
	body, err := BuildSitemap(r.Context(), s.Store, s.SiteBaseURL)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}

// BuildSitemap lists the static pages and every active phone.
func BuildSitemap(ctx context.Context, st *store.Store, baseURL string) ([]byte, error) {
	phones, err := st.ActivePhones(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]sitemap.Entry, 0, len(phones))
	for _, p := range phones {
		entries = append(entries, sitemap.Entry{
			Path:         sitemap.PhonePath(p.Slug),
			LastModified: p.UpdatedAt,
			ChangeFreq:   "weekly",
			Priority:     0.8,
		})
	}
	return sitemap.Build(baseURL, entries)
}
