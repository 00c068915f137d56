// Package auth issues and verifies the two kinds of JWT Checkpoint uses:
// console session tokens and venue check-in tokens.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — one secret, two token shapes
// ────────────────────────────────────────────────────────────────────
// Both token kinds are HS256 JWTs signed with the server secret, but they
// carry different claims and are verified differently:
//
//	session token   user_id + role, 72 h expiry, expiry enforced.
//	check-in token  event_id + event code, 6 h expiry, expiry NOT enforced
//	                when a scan is synced later (see ParseCheckInToken).
//
// Keeping them as separate Go types means a check-in token can never be
// mistaken for a session token: its claims simply won't decode into Claims
// with a non-empty UserID.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the API.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Claims are the JWT claims of a console session.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// tokenDuration is how long a console session stays valid.
const tokenDuration = 72 * time.Hour

// CheckInTokenDuration is how long a venue QR code may be scanned after it
// was generated. The admission windows of the event's rules decide whether
// the scan itself is accepted.
const CheckInTokenDuration = 6 * time.Hour

// CheckInClaims are the claims embedded in a venue QR code.
type CheckInClaims struct {
	EventID string `json:"event_id"`
	// Code is the event's check-in code; rotating it invalidates old QRs.
	Code string `json:"code"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session JWT for the given user.
func GenerateToken(userID, role, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return sign(claims, secret, "sign token")
}

// ParseToken validates a session JWT and returns its claims. It rejects a
// bad signature, an expired token and any non-HMAC algorithm.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, keyFunc(secret))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GenerateCheckInToken creates the token shown as a QR code at the venue.
func GenerateCheckInToken(eventID, code, secret string) (string, error) {
	now := time.Now().UTC()
	return GenerateCheckInTokenWithExpiry(eventID, code, secret, now, now.Add(CheckInTokenDuration))
}

// GenerateCheckInTokenWithExpiry creates a check-in token with explicit
// iat/exp values. Tests use it to simulate QR codes scanned in the past.
func GenerateCheckInTokenWithExpiry(eventID, code, secret string, iat, exp time.Time) (string, error) {
	claims := CheckInClaims{
		EventID: eventID,
		Code:    code,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
	}
	return sign(claims, secret, "sign check-in token")
}

// ParseCheckInToken verifies the signature of a check-in token but skips the
// expiry check. A door scanner may be offline for hours; a scan captured
// while the QR was live must still be accepted when it is finally synced.
// Forged tokens still fail because the signature will not verify.
func ParseCheckInToken(tokenStr, secret string) (*CheckInClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CheckInClaims{}, keyFunc(secret), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("parse check-in token: %w", err)
	}
	claims, ok := token.Claims.(*CheckInClaims)
	if !ok || !token.Valid || claims.EventID == "" {
		return nil, errors.New("invalid check-in token")
	}
	return claims, nil
}

func sign(claims jwt.Claims, secret, what string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", what, err)
	}
	return signed, nil
}

// keyFunc guards against "alg:none" or RS256 tokens being passed to an HS256
// server (algorithm confusion).
func keyFunc(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
}
