package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleStudent is the only role issued today.
const RoleStudent = "student"

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims is the JWT payload. The subject is the student's roll number.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 access token for a logged-in student.
func Issue(subject, name, issuer, key string, ttl time.Duration) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("subject required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Name: name,
		Role: RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("token has no subject")
	}
	return *claims, nil
}
