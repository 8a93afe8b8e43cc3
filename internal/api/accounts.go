package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"erp/ecommerce/phone-storefront/internal/httpx"
	"erp/ecommerce/phone-storefront/internal/identity"
	"erp/ecommerce/phone-storefront/internal/store"
)

const minPasswordLength = 8

type registerSellerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

type registeredSeller struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// registerSeller creates the account with the identity provider, asks it to send
// a verification email and records the seller locally. Steps after account
// creation are not rolled back; a partial result is reported as a warning.
func (s *Server) registerSeller(w http.ResponseWriter, r *http.Request) error {
	var req registerSellerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !httpx.ValidEmail(email) {
		return httpx.BadRequest("a valid email is required")
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return httpx.BadRequest("firstName is required")
	}
	if len(req.Password) < minPasswordLength {
		return httpx.BadRequest("password must be at least 8 characters")
	}

	ctx := r.Context()
	if _, exists, err := s.Accounts.FindUserByEmail(ctx, email); err != nil {
		return err
	} else if exists {
		return httpx.Conflict("an account with this email already exists")
	}

	userID, err := s.Accounts.CreateUser(ctx, identity.NewUser{
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
	})
	if err != nil {
		return err
	}

	var warnings []string
	if err := s.Accounts.SendVerifyEmail(ctx, userID); err != nil {
		s.Logger.Warn("verification email not sent", zap.String("user_id", userID), zap.Error(err))
		warnings = append(warnings, "verification email could not be sent")
	}
	if err := s.Accounts.AssignRealmRole(ctx, userID, store.RoleSeller); err != nil {
		s.Logger.Warn("seller role not granted", zap.String("user_id", userID), zap.Error(err))
		warnings = append(warnings, "seller role could not be granted")
	}
	if _, err := s.Store.UpsertUser(ctx, store.User{
		ID:        userID,
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      store.RoleSeller,
	}); err != nil {
		s.Logger.Warn("seller profile not stored", zap.String("user_id", userID), zap.Error(err))
		warnings = append(warnings, "seller profile could not be saved")
	}

	s.Logger.Info("seller registered", zap.String("user_id", userID), zap.Int("warnings", len(warnings)))
	env := httpx.Envelope{Success: true, Data: registeredSeller{UserID: userID, Email: email, Role: store.RoleSeller}}
	if len(warnings) > 0 {
		env.Message = "account created, but " + strings.Join(warnings, " and ")
	}
	httpx.WriteJSON(w, http.StatusCreated, env)
	return nil
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) error {
	var req passwordResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !httpx.ValidEmail(email) {
		return httpx.BadRequest("a valid email is required")
	}
	user, ok, err := s.Accounts.FindUserByEmail(r.Context(), email)
	if err != nil {
		return err
	}
	if !ok {
		return httpx.NotFound("no account with this email")
	}
	if err := s.Accounts.SendPasswordReset(r.Context(), user.ID); err != nil {
		return err
	}
	httpx.WriteOK(w, http.StatusOK, map[string]any{"sent": true})
	return nil
}
