package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "op-7", "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != "op-7" || claims["role"] != "ADMIN" {
		t.Errorf("claims = %v", claims)
	}
	if time.Until(tok.Exp) <= 59*time.Minute {
		t.Errorf("exp = %s", tok.Exp)
	}

	for _, tc := range []struct {
		secret, sub string
		ttl         time.Duration
	}{
		{"", "op", time.Hour},
		{"s", " ", time.Hour},
		{"s", "op", 0},
	} {
		if _, err := NewAccessToken(tc.secret, tc.sub, "OPERATOR", tc.ttl); err == nil {
			t.Errorf("NewAccessToken(%q, %q, %s) should fail", tc.secret, tc.sub, tc.ttl)
		}
	}
}
