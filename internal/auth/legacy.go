package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyIssuer is stamped into self-issued HMAC tokens. These tokens
// predate the identity-provider integration and are kept for local
// development and tests, where no JWKS endpoint is available.
const LegacyIssuer = "voiceflow-api"

// LegacyClaims carries the user identity of a self-issued HMAC token.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken checks a self-issued HMAC token against the shared
// secret. Tokens signed with any other method or carrying a foreign
// issuer are rejected.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(LegacyIssuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
