package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func staffClaims(sub, businessID, role string) Claims {
	now := time.Now()
	return Claims{
		BusinessID: businessID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	claims := staffClaims("user-1", "biz-1", RoleOwner)
	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	parsed, err := NewVerifier("test-secret", nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.BusinessID != "biz-1" || parsed.Role != RoleOwner {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestVerifyRejectsExpiredAndTenantless(t *testing.T) {
	expired := staffClaims("user-1", "biz-1", RoleStaff)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, err := SignHS256(expired, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("s", nil).Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	token, err = SignHS256(staffClaims("user-1", "", RoleStaff), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("s", nil).Verify(token); err == nil {
		t.Fatal("expected token without business_id to be rejected")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, staffClaims("user-2", "biz-2", RoleAdmin))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}

	parsed, err := NewVerifier("", NewJWKSClient(srv.URL, time.Minute)).Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-2" || parsed.BusinessID != "biz-2" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}
