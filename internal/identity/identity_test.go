package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp/ecommerce/phone-storefront/internal/httpx"
)

type fakeIdP struct {
	tokens   atomic.Int32
	users    map[string]User
	resets   []string
	verifies []string
	roles    map[string][]string
}

func newFakeIdP(t *testing.T) (*fakeIdP, *httptest.Server) {
	t.Helper()
	f := &fakeIdP{users: map[string]User{}, roles: map[string][]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("password") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "Invalid user credentials"})
			return
		}
		f.tokens.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "admin-token", "expires_in": 300})
	})
	mux.HandleFunc("/admin/realms/storefront/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			out := []User{}
			if u, ok := f.users[r.URL.Query().Get("email")]; ok {
				out = append(out, u)
			}
			_ = json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			email, _ := body["email"].(string)
			if _, exists := f.users[email]; exists {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"errorMessage": "User exists with same email"})
				return
			}
			id := "u-" + strings.Split(email, "@")[0]
			f.users[email] = User{ID: id, Email: email, Username: email, Enabled: true}
			w.Header().Set("Location", "http://idp/admin/realms/storefront/users/"+id)
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/admin/realms/storefront/roles/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/admin/realms/storefront/roles/")
		if name != "seller" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Could not find role"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "role-seller", "name": name})
	})
	mux.HandleFunc("/admin/realms/storefront/users/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/admin/realms/storefront/users/")
		id, action, _ := strings.Cut(rest, "/")
		switch action {
		case "send-verify-email":
			f.verifies = append(f.verifies, id)
		case "execute-actions-email":
			var actions []string
			_ = json.NewDecoder(r.Body).Decode(&actions)
			if len(actions) != 1 || actions[0] != "UPDATE_PASSWORD" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.resets = append(f.resets, id)
		case "role-mappings/realm":
			var roles []map[string]any
			_ = json.NewDecoder(r.Body).Decode(&roles)
			for _, role := range roles {
				name, _ := role["name"].(string)
				f.roles[id] = append(f.roles[id], name)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestAdmin(baseURL, password string) *Admin {
	return NewAdmin(AdminConfig{
		BaseURL:  baseURL,
		Realm:    "storefront",
		Username: "admin",
		Password: password,
		Timeout:  time.Second,
	})
}

func TestAdminCreateAndVerify(t *testing.T) {
	f, srv := newFakeIdP(t)
	admin := newTestAdmin(srv.URL, "s3cret")
	ctx := context.Background()

	id, err := admin.CreateUser(ctx, NewUser{Email: "seller@example.com", FirstName: "Sam", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u-seller", id)

	require.NoError(t, admin.SendVerifyEmail(ctx, id))
	assert.Equal(t, []string{"u-seller"}, f.verifies)

	u, ok, err := admin.FindUserByEmail(ctx, "seller@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u-seller", u.ID)

	assert.EqualValues(t, 1, f.tokens.Load(), "admin token is reused")
}

func TestAdminCreateDuplicateIsConflict(t *testing.T) {
	f, srv := newFakeIdP(t)
	f.users["dup@example.com"] = User{ID: "u-dup", Email: "dup@example.com"}

	_, err := newTestAdmin(srv.URL, "s3cret").CreateUser(context.Background(), NewUser{Email: "dup@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httpx.AsError(err).Status)
}

func TestAdminPasswordReset(t *testing.T) {
	f, srv := newFakeIdP(t)
	require.NoError(t, newTestAdmin(srv.URL, "s3cret").SendPasswordReset(context.Background(), "u-1"))
	assert.Equal(t, []string{"u-1"}, f.resets)
}

func TestAdminAssignRealmRole(t *testing.T) {
	f, srv := newFakeIdP(t)
	admin := newTestAdmin(srv.URL, "s3cret")

	require.NoError(t, admin.AssignRealmRole(context.Background(), "u-1", "seller"))
	assert.Equal(t, []string{"seller"}, f.roles["u-1"])

	err := admin.AssignRealmRole(context.Background(), "u-1", "wizard")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpx.AsError(err).Status)
}

func TestAdminFindMissingUser(t *testing.T) {
	_, srv := newFakeIdP(t)
	_, ok, err := newTestAdmin(srv.URL, "s3cret").FindUserByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminBadCredentials(t *testing.T) {
	_, srv := newFakeIdP(t)
	_, err := newTestAdmin(srv.URL, "wrong").Token(context.Background())
	require.Error(t, err)
	herr := httpx.AsError(err)
	assert.Equal(t, http.StatusUnauthorized, herr.Status)
	assert.Contains(t, herr.Message, "Invalid user credentials")
}

func TestAdminUnreachable(t *testing.T) {
	_, err := newTestAdmin("http://127.0.0.1:1", "s3cret").Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, httpx.AsError(err).Status)
}

func signHS(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifierHMAC(t *testing.T) {
	v, err := NewVerifier("", "shh", "http://idp/realms/storefront")
	require.NoError(t, err)

	claims := &Claims{Email: "a@example.com", PreferredUsername: "alice"}
	claims.Subject = "user-1"
	claims.Issuer = "http://idp/realms/storefront"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.RealmAccess.Roles = []string{"customer", "admin"}

	p, err := v.Verify(signHS(t, "shh", claims))
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, "alice", p.Name)
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("seller"))
}

func TestVerifierRejects(t *testing.T) {
	v, err := NewVerifier("", "shh", "http://idp/realms/storefront")
	require.NoError(t, err)

	base := func() *Claims {
		c := &Claims{}
		c.Subject = "user-1"
		c.Issuer = "http://idp/realms/storefront"
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		return c
	}

	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	otherIssuer := base()
	otherIssuer.Issuer = "http://elsewhere"
	noSubject := base()
	noSubject.Subject = ""

	cases := map[string]string{
		"garbage":      "not.a.token",
		"wrong secret": signHS(t, "nope", base()),
		"expired":      signHS(t, "shh", expired),
		"issuer":       signHS(t, "shh", otherIssuer),
		"no subject":   signHS(t, "shh", noSubject),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifierRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	// The provider's realm settings show the key body without PEM armour.
	body := strings.TrimSpace(string(block))
	body = strings.TrimPrefix(body, "-----BEGIN PUBLIC KEY-----")
	body = strings.TrimSuffix(body, "-----END PUBLIC KEY-----")

	v, err := NewVerifier(strings.TrimSpace(body), "", "")
	require.NoError(t, err)

	claims := &Claims{Email: "r@example.com"}
	claims.Subject = "user-rsa"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-rsa", p.Subject)

	// An HMAC token must not be accepted by an RSA verifier.
	_, err = v.Verify(signHS(t, "x", claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierNeedsKey(t *testing.T) {
	_, err := NewVerifier("", "", "")
	assert.Error(t, err)
}
