// Package utils issues access tokens in the shape JWTAuth accepts. The
// identity provider normally does this; the helper serves tests and local
// tooling.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emigresto/meal-reservation/internal/model"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an HS256 token for p valid for ttl. The claims are
// sub (user id), role, beneficiary_id when linked, exp and iat.
func NewAccessToken(secret string, p model.Principal, ttl time.Duration) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("empty signing secret")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  p.UserID,
		"role": string(p.Role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if p.BeneficiaryID != nil {
		claims["beneficiary_id"] = *p.BeneficiaryID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
