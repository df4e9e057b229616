// Package identity resolves the viewer behind a request. Authentication
// itself lives elsewhere; this package only reads {uid, displayName}.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

type Viewer struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
}

type Provider interface {
	Viewer(r *http.Request) (Viewer, error)
}

// AnonymousProvider trusts the uid and name query parameters and invents a
// uid when none is given.
type AnonymousProvider struct{}

func (AnonymousProvider) Viewer(r *http.Request) (Viewer, error) {
	q := r.URL.Query()
	v := Viewer{UID: q.Get("uid"), DisplayName: q.Get("name")}
	if v.UID == "" {
		v.UID = uuid.NewString()
	}
	if v.DisplayName == "" {
		v.DisplayName = "anon"
	}
	return v, nil
}

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTProvider reads an HS256 token issued by the identity service, either
// from the Authorization header or the token query parameter.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Viewer(r *http.Request) (Viewer, error) {
	raw := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	}
	if raw == "" {
		return Viewer{}, ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Viewer{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return Viewer{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Viewer{UID: claims.Subject, DisplayName: name}, nil
}

// Sign issues a token for v. stroam-watch signs its own token this way when
// it is given the server's secret.
func (p *JWTProvider) Sign(v Viewer) (string, error) {
	claims := Claims{
		Name:             v.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{Subject: v.UID},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
