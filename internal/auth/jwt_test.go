package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	token, err := GenerateJWT(42, "admin")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}

	if got, ok := claims["user_id"].(float64); !ok || uint(got) != 42 {
		t.Fatalf("user_id claim = %v, want 42", claims["user_id"])
	}
	if claims["role"] != "admin" {
		t.Fatalf("role claim = %v, want admin", claims["role"])
	}
}

func TestValidateJWTRejectsTamperedToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	token, err := GenerateJWT(1, "user")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := ValidateJWT(tampered); err == nil {
		t.Fatal("tampered token validated")
	}
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	token, err := GenerateJWT(1, "user")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	t.Setenv("JWT_SECRET", "second-secret")
	if _, err := ValidateJWT(token); err == nil {
		t.Fatal("token signed with a different secret validated")
	}
}

func TestValidateJWTRejectsExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	claims := jwt.MapClaims{
		"user_id": uint(1),
		"role":    "user",
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey())
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	if _, err := ValidateJWT(expired); err == nil {
		t.Fatal("expired token validated")
	}
}
