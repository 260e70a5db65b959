package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/user"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload of an access token.
type Claims struct {
	UserID string    `json:"userId"`
	Phone  string    `json:"phone"`
	Role   user.Role `json:"role"`
	Admin  bool      `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	admins map[string]struct{}
	clock  clock.Clock
}

func NewIssuer(secret string, ttl time.Duration, adminPhones []string, c clock.Clock) *Issuer {
	admins := make(map[string]struct{}, len(adminPhones))
	for _, p := range adminPhones {
		if p = strings.ReplaceAll(strings.TrimSpace(p), " ", ""); p != "" {
			admins[p] = struct{}{}
		}
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, admins: admins, clock: c}
}

func (i *Issuer) Issue(u user.User) (string, error) {
	now := i.clock.Now()
	_, admin := i.admins[u.Phone]
	claims := Claims{
		UserID: u.ID,
		Phone:  u.Phone,
		Role:   u.Role,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock.Now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
