package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	userHeader      = "X-User-ID"
	signatureHeader = "X-User-Signature"
)

type ctxKey struct{}

// identityService resolves the calling user. Without a secret any user id is
// trusted, which is only meant for local development.
type identityService struct {
	secret []byte
}

func newIdentityService(secret string) *identityService {
	return &identityService{secret: []byte(secret)}
}

func (a *identityService) signed() bool {
	return len(a.secret) > 0
}

func (a *identityService) sign(userID string) string {
	mac := hmac.New(sha256.New, a.secret)
	_, _ = mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *identityService) verify(userID, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, a.secret)
	_, _ = mac.Write([]byte(userID))
	return hmac.Equal(provided, mac.Sum(nil))
}

func (a *identityService) resolve(r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		return "", false
	}
	if a.signed() && !a.verify(userID, strings.TrimSpace(r.Header.Get(signatureHeader))) {
		return "", false
	}
	return userID, true
}

func (s *server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.identity.resolve(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "missing or invalid user identity"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(ctxKey{}).(string)
	return userID
}
