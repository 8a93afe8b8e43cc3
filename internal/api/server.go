// Package api is the storefront's HTTP surface: public catalog routes, shopper
// routes behind a session token, account routes backed by the identity provider
// and seller routes behind a role check.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
	"erp/ecommerce/phone-storefront/internal/identity"
	"erp/ecommerce/phone-storefront/internal/logging"
	"erp/ecommerce/phone-storefront/internal/payment"
	"erp/ecommerce/phone-storefront/internal/store"
)

// Accounts is the identity provider's admin surface.
type Accounts interface {
	FindUserByEmail(ctx context.Context, email string) (identity.User, bool, error)
	CreateUser(ctx context.Context, nu identity.NewUser) (string, error)
	SendVerifyEmail(ctx context.Context, userID string) error
	SendPasswordReset(ctx context.Context, userID string) error
	AssignRealmRole(ctx context.Context, userID, role string) error
}

type TokenVerifier interface {
	Verify(raw string) (identity.Principal, error)
}

type Payments interface {
	CreateIntent(ctx context.Context, req payment.Request) (payment.Intent, error)
}

type Server struct {
	Store        *store.Store
	Accounts     Accounts
	Verifier     TokenVerifier
	Payments     Payments
	Logger       *zap.Logger
	ModuleName   string
	SiteBaseURL  string
	RedactErrors bool
}

// handlerFunc is a route that reports failure by returning an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) Routes() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.Logger))
	r.Use(s.recoverer)
	r.Use(httpx.WithServerDefaults)

	r.NotFound(s.handle(func(http.ResponseWriter, *http.Request) error {
		return httpx.NotFound("route not found")
	}))
	r.MethodNotAllowed(s.handle(func(http.ResponseWriter, *http.Request) error {
		return &httpx.Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}))

	r.Get("/healthz", s.handle(s.health))
	r.Get("/sitemap.xml", s.handle(s.serveSitemap))

	r.Route("/api", func(r chi.Router) {
		r.Get("/phones", s.handle(s.listPhones))
		r.Get("/phones/{phone}", s.handle(s.getPhone))
		r.Get("/phones/{phone}/reviews", s.handle(s.listReviews))

		r.Post("/sellers/register", s.handle(s.registerSeller))
		r.Post("/auth/password-reset", s.handle(s.passwordReset))

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/phones/{phone}/reviews", s.handle(s.createReview))

			r.Get("/cart", s.handle(s.getCart))
			r.Post("/cart/items", s.handle(s.addCartItem))
			r.Delete("/cart/items/{modelID}", s.handle(s.removeCartItem))
			r.Delete("/cart", s.handle(s.clearCart))

			r.Post("/orders", s.handle(s.checkout))
			r.Get("/orders", s.handle(s.listOrders))
			r.Post("/payments/intent", s.handle(s.createPaymentIntent))

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireRole(store.RoleSeller, store.RoleAdmin))

				r.Get("/dashboard", s.handle(s.dashboard))
				r.Get("/phones", s.handle(s.adminListPhones))
				r.Get("/phones/_explain", s.handle(s.explainPhones))
				r.Post("/phones", s.handle(s.createPhone))
				r.Patch("/phones/{id}", s.handle(s.updatePhone))
				r.Delete("/phones/{id}", s.handle(s.deletePhone))
				r.Post("/phones/{id}/models", s.handle(s.createModel))
				r.Patch("/models/{id}", s.handle(s.updateModel))
				r.Delete("/models/{id}", s.handle(s.deleteModel))
				r.Delete("/reviews/{id}", s.handle(s.deleteReview))
				r.Get("/orders", s.handle(s.adminListOrders))
				r.Patch("/orders/{id}", s.handle(s.updateOrderStatus))
			})
		})
	})
	return r
}

// handle writes the failure envelope for whatever h returns. 5xx outcomes are
// logged with the underlying cause.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		he := httpx.WriteError(w, err, s.RedactErrors)
		if he.Status >= 500 {
			s.Logger.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", he.Status),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
		}
	}
}

// recoverer turns a panic into a 500 envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.Logger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.ByteString("stack", debug.Stack()))
			httpx.WriteError(w, httpx.Internal(fmt.Errorf("panic: %v", rec)), true)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) error {
	httpx.WriteOK(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"module":  s.ModuleName,
		"service": "storefront-service",
		"mode":    s.Store.Mode(),
	})
	return nil
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

type ctxKey string

const principalKey ctxKey = "principal"

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.WriteError(w, httpx.Unauthorized("authentication required"), false)
			return
		}
		p, err := s.Verifier.Verify(raw)
		if err != nil {
			s.Logger.Debug("session token rejected", zap.Error(err))
			httpx.WriteError(w, httpx.Unauthorized("invalid or expired session"), false)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole admits principals whose token carries one of roles. Tokens issued
// before a role was granted fall back to the role stored for the subject.
func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal(r)
			if p.HasRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			u, err := s.Store.GetUser(r.Context(), p.Subject)
			switch {
			case err == nil && slices.Contains(roles, u.Role):
				next.ServeHTTP(w, r)
			case err == nil || errors.Is(err, store.ErrNotFound):
				httpx.WriteError(w, httpx.Forbidden("seller access required"), false)
			default:
				s.Logger.Error("role lookup failed", zap.String("subject", p.Subject), zap.Error(err))
				httpx.WriteError(w, httpx.Internal(err), s.RedactErrors)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func principal(r *http.Request) identity.Principal {
	p, _ := r.Context().Value(principalKey).(identity.Principal)
	return p
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// storeError maps store sentinels to envelope statuses. notFound and conflict are
// the messages shown for those cases.
func storeError(err error, notFound, conflict string) error {
	var ve store.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return httpx.BadRequest(ve.Error())
	case errors.Is(err, store.ErrNotFound):
		return httpx.NotFound(notFound)
	case errors.Is(err, store.ErrConflict):
		return httpx.Conflict(conflict)
	default:
		return err
	}
}
