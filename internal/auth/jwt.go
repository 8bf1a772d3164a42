package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const bearerPrefix = "Bearer "

// ValidFormat reports whether token looks usable: a non-empty bearer value,
// a three-part JWT, or an opaque token longer than ten characters.
func ValidFormat(token string) bool {
	if token == "" {
		return false
	}
	if strings.HasPrefix(token, bearerPrefix) {
		return len(token) > len(bearerPrefix)
	}
	if strings.Count(token, ".") == 2 {
		return true
	}
	return len(token) > 10
}

// Claims decodes the payload of a JWT without verifying its signature.
func Claims(token string) (map[string]any, error) {
	token = strings.TrimPrefix(token, bearerPrefix)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode JWT payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse JWT claims: %w", err)
	}
	return claims, nil
}

// Expired reports whether a JWT's exp claim is in the past. Tokens that
// cannot be decoded count as expired; tokens without exp never expire.
func Expired(token string) bool {
	claims, err := Claims(token)
	if err != nil {
		return true
	}
	exp, ok := expClaim(claims)
	return ok && time.Now().After(exp)
}

func expiry(token string) (time.Time, bool) {
	claims, err := Claims(token)
	if err != nil {
		return time.Time{}, false
	}
	return expClaim(claims)
}

func expClaim(claims map[string]any) (time.Time, bool) {
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}
