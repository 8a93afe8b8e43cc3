// Package identity talks to the identity provider: its admin API for account
// management, and local verification of the session tokens it issues.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Nerzal/gocloak/v13"

	"erp/ecommerce/phone-storefront/internal/httpx"
)

// User is an account as the admin API reports it.
type User struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
}

type NewUser struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type AdminConfig struct {
	BaseURL   string
	Realm     string
	ClientID  string
	Username  string
	Password  string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Admin is a client for the provider's admin REST API. Tokens are obtained with
// the password grant against the master realm and reused until shortly before
// they expire.
type Admin struct {
	cfg    AdminConfig
	client *gocloak.GoCloak

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewAdmin(cfg AdminConfig) *Admin {
	if cfg.ClientID == "" {
		cfg.ClientID = "admin-cli"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := gocloak.NewClient(strings.TrimRight(cfg.BaseURL, "/"))
	client.RestyClient().SetTimeout(cfg.Timeout)
	if cfg.Transport != nil {
		client.RestyClient().SetTransport(cfg.Transport)
	}
	return &Admin{cfg: cfg, client: client}
}

// Token returns a bearer token for admin calls.
func (a *Admin) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.expires) {
		return a.token, nil
	}

	jwt, err := a.client.GetToken(ctx, "master", gocloak.TokenOptions{
		ClientID:  gocloak.StringP(a.cfg.ClientID),
		GrantType: gocloak.StringP("password"),
		Username:  gocloak.StringP(a.cfg.Username),
		Password:  gocloak.StringP(a.cfg.Password),
	})
	if err != nil {
		return "", upstreamError(err)
	}
	if jwt == nil || jwt.AccessToken == "" {
		return "", httpx.Upstream(http.StatusBadGateway, "identity provider returned no admin token", nil)
	}
	a.token = jwt.AccessToken
	a.expires = time.Now().Add(time.Duration(jwt.ExpiresIn)*time.Second - 10*time.Second)
	return a.token, nil
}

// FindUserByEmail returns the account with exactly this email, or ok=false.
func (a *Admin) FindUserByEmail(ctx context.Context, email string) (User, bool, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return User{}, false, err
	}
	users, err := a.client.GetUsers(ctx, token, a.cfg.Realm, gocloak.GetUsersParams{
		Email: gocloak.StringP(email),
		Exact: gocloak.BoolP(true),
	})
	if err != nil {
		return User{}, false, upstreamError(err)
	}
	for _, u := range users {
		if u != nil && strings.EqualFold(gocloak.PString(u.Email), email) {
			return fromGocloak(u), true, nil
		}
	}
	return User{}, false, nil
}

// CreateUser creates an enabled, unverified account and returns its id.
func (a *Admin) CreateUser(ctx context.Context, nu NewUser) (string, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return "", err
	}
	id, err := a.client.CreateUser(ctx, token, a.cfg.Realm, gocloak.User{
		Username:      gocloak.StringP(nu.Email),
		Email:         gocloak.StringP(nu.Email),
		FirstName:     gocloak.StringP(nu.FirstName),
		LastName:      gocloak.StringP(nu.LastName),
		Enabled:       gocloak.BoolP(true),
		EmailVerified: gocloak.BoolP(false),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type:      gocloak.StringP("password"),
			Value:     gocloak.StringP(nu.Password),
			Temporary: gocloak.BoolP(false),
		}},
	})
	if err != nil {
		var apiErr *gocloak.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return "", httpx.Conflict("an account with this email already exists")
		}
		return "", upstreamError(err)
	}
	if id == "" {
		found, ok, err := a.FindUserByEmail(ctx, nu.Email)
		if err != nil || !ok {
			return "", httpx.Upstream(http.StatusBadGateway, "created user could not be located", err)
		}
		return found.ID, nil
	}
	return id, nil
}

// SendVerifyEmail asks the provider to email a verification link.
func (a *Admin) SendVerifyEmail(ctx context.Context, userID string) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	return upstreamError(a.client.SendVerifyEmail(ctx, token, userID, a.cfg.Realm))
}

// SendPasswordReset asks the provider to email an update-password action.
func (a *Admin) SendPasswordReset(ctx context.Context, userID string) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	return upstreamError(a.client.ExecuteActionsEmail(ctx, token, a.cfg.Realm, gocloak.ExecuteActionsEmail{
		UserID:  gocloak.StringP(userID),
		Actions: &[]string{"UPDATE_PASSWORD"},
	}))
}

// AssignRealmRole maps an existing realm role onto the user, so tokens issued
// from now on carry it in realm_access.roles.
func (a *Admin) AssignRealmRole(ctx context.Context, userID, role string) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	r, err := a.client.GetRealmRole(ctx, token, a.cfg.Realm, role)
	if err != nil {
		return upstreamError(err)
	}
	return upstreamError(a.client.AddRealmRoleToUser(ctx, token, a.cfg.Realm, userID, []gocloak.Role{*r}))
}

func fromGocloak(u *gocloak.User) User {
	return User{
		ID:            gocloak.PString(u.ID),
		Username:      gocloak.PString(u.Username),
		Email:         gocloak.PString(u.Email),
		FirstName:     gocloak.PString(u.FirstName),
		LastName:      gocloak.PString(u.LastName),
		Enabled:       gocloak.PBool(u.Enabled),
		EmailVerified: gocloak.PBool(u.EmailVerified),
	}
}

// upstreamError maps a gocloak failure to an envelope error carrying the
// provider's status. A zero code means the provider was never reached.
func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *gocloak.APIError
	if !errors.As(err, &apiErr) || apiErr.Code == 0 {
		return httpx.Upstream(http.StatusBadGateway, "identity provider unreachable", err)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return httpx.Upstream(apiErr.Code, "identity provider: "+msg, err)
}
