package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shrike/internal/support"
)

const (
	tokenLifetime = 24 * time.Hour

	// Fallback for local development only. Deployments set JWT_SECRET.
	defaultSigningSecret = "shrike-dev-secret-change-me"
)

var ErrInvalidToken = errors.New("invalid token")

func signingKey() []byte {
	return []byte(support.GetEnv("JWT_SECRET", defaultSigningSecret))
}

func GenerateJWT(userID uint, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey())
}

func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	token, err := parser.Parse(tokenString, func(*jwt.Token) (any, error) {
		return signingKey(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
