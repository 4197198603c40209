package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles understood by the staff API.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type Claims struct {
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verifier accepts HS256 tokens signed with the shared secret and, when a JWKS
// client is configured, RS256 tokens whose kid resolves through it.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	leeway time.Duration
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: []byte(secret), jwks: jwks, leeway: 30 * time.Second}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.BusinessID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 secret not configured")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("jwks not configured")
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}
