package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Principal is the signed-in caller as described by their session token.
type Principal struct {
	Subject string
	Email   string
	Name    string
	Roles   []string
}

func (p Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Claims is the subset of the provider's access token the storefront reads.
type Claims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid session token")

// Verifier checks session tokens locally, with the realm's RSA public key or,
// when none is configured, a shared HMAC secret.
type Verifier struct {
	rsaKey *rsa.PublicKey
	secret []byte
	issuer string
}

func NewVerifier(publicKeyPEM, hmacSecret, issuer string) (*Verifier, error) {
	v := &Verifier{issuer: issuer}
	if publicKeyPEM = strings.TrimSpace(publicKeyPEM); publicKeyPEM != "" {
		if !strings.HasPrefix(publicKeyPEM, "-----BEGIN") {
			publicKeyPEM = "-----BEGIN PUBLIC KEY-----\n" + publicKeyPEM + "\n-----END PUBLIC KEY-----"
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse identity public key: %w", err)
		}
		v.rsaKey = key
		return v, nil
	}
	if hmacSecret == "" {
		return nil, errors.New("identity verifier needs a public key or an HMAC secret")
	}
	v.secret = []byte(hmacSecret)
	return v, nil
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Principal{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    name,
		Roles:   claims.RealmAccess.Roles,
	}, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if v.rsaKey != nil {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.rsaKey, nil
	}
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return v.secret, nil
}
