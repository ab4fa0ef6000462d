package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrMissingSubject          = errors.New("token has no subject")
)

type userIDKey struct{}

// IssueToken signs an access token for userID.
func (s *Server) IssueToken(userID string) (string, error) {
	now := s.opts.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, nil
}

// verify validates tok and returns its subject.
func (s *Server) verify(tok string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return s.opts.Secret, nil
	}, jwt.WithTimeFunc(s.opts.Now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// authenticate requires a valid bearer token and stores its subject in
// the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		userID, err := s.verify(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token is invalid or expired"})
			return
		}
		if _, ok := s.userByID(userID); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Unknown user"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}
