package credentials

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"choreline/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Principal is the identity carried by a verified token.
type Principal struct {
	UserID   int64
	Username string
	Roles    []string
}

// IssueToken signs an HS256 token for u with the user's current roles.
func (s Service) IssueToken(ctx context.Context, u domain.User) (string, time.Time, error) {
	if s.Config == nil || strings.TrimSpace(s.Config.Auth.TokenSecret) == "" {
		return "", time.Time{}, errors.New("token secret not configured")
	}
	roles, err := s.Repo.UserRoles(ctx, u.ID)
	if err != nil {
		return "", time.Time{}, domain.Unavailable("load roles", err)
	}
	now := s.now().UTC()
	exp := now.Add(s.Config.TokenTTL())
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    "choreline",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: u.Username,
		Roles:    roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.Auth.TokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies an HS256 token and returns its principal.
func ParseToken(token, secret string, now func() time.Time) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("token secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, errors.New("subject claim must be a user id")
	}
	return Principal{UserID: id, Username: claims.Username, Roles: claims.Roles}, nil
}
