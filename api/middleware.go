package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// CallerContextKey is the request context key holding the authenticated address.
const CallerContextKey = contextKey("caller")

// AuthMiddleware validates HS256 bearer tokens whose subject is the caller's
// hex address and injects that address into the request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			caller, err := ParseToken(secret, tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseToken verifies tokenString and returns the address in its subject.
func ParseToken(secret []byte, tokenString string) (common.Address, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid token claims: %w", err)
	}
	if !common.IsHexAddress(sub) {
		return common.Address{}, errors.New("token subject is not an address")
	}
	return common.HexToAddress(sub), nil
}

// IssueToken signs an HS256 token for caller valid for ttl.
func IssueToken(secret []byte, caller common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// CallerFromContext retrieves the authenticated address from the request context.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(CallerContextKey).(common.Address)
	return caller, ok
}
