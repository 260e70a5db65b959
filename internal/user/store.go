package user

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
)

// Store owns every user record. Values handed out are copies, so callers never
// observe a record while it is being changed.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*User
	byPhone map[string]string
	hasher  Hasher
	clock   clock.Clock
}

func NewStore(h Hasher, c clock.Clock) *Store {
	return &Store{
		users:   make(map[string]*User),
		byPhone: make(map[string]string),
		hasher:  h,
		clock:   c,
	}
}

func normalizePhone(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), " ", "")
}

func (s *Store) Register(p Profile) (User, error) {
	phone := normalizePhone(p.Phone)
	name := strings.TrimSpace(p.FullName)
	if phone == "" || name == "" || p.Password == "" {
		return User{}, apperr.Validation("fullName, phone and password are required")
	}
	if p.Role == "" {
		p.Role = RoleClient
	}
	if !p.Role.Valid() {
		return User{}, apperr.Validation("userType must be provider, client or both")
	}

	// hash outside the lock, bcrypt is slow on purpose
	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPhone[phone]; exists {
		return User{}, apperr.ErrDuplicateIdentity
	}

	now := s.clock.Now()
	u := &User{
		ID:           uuid.New().String(),
		FullName:     name,
		Phone:        phone,
		Email:        strings.TrimSpace(p.Email),
		Role:         p.Role,
		PasswordHash: hash,
		Rating:       InitialRating,
		LastSeen:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byPhone[phone] = u.ID
	return *u, nil
}

func (s *Store) Authenticate(phone, secret string) (User, error) {
	s.mu.RLock()
	id, ok := s.byPhone[normalizePhone(phone)]
	var hash string
	if ok {
		hash = s.users[id].PasswordHash
	}
	s.mu.RUnlock()
	if !ok {
		return User{}, apperr.NotFound("user")
	}

	if err := s.hasher.Compare(hash, secret); err != nil {
		if errors.Is(err, ErrMismatch) {
			return User{}, apperr.ErrInvalidCredential
		}
		return User{}, fmt.Errorf("compare password: %w", err)
	}
	return s.Get(id)
}

func (s *Store) Get(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.NotFound("user")
	}
	return *u, nil
}

func (s *Store) SetOnline(id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.IsOnline = online
	u.LastSeen = s.clock.Now()
	return nil
}

// UpdateProfile changes the display fields; empty values leave a field as is.
func (s *Store) UpdateProfile(id, fullName, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.NotFound("user")
	}
	if v := strings.TrimSpace(fullName); v != "" {
		u.FullName = v
	}
	if v := strings.TrimSpace(email); v != "" {
		u.Email = v
	}
	u.UpdatedAt = s.clock.Now()
	return *u, nil
}

// Credit adds amount to the balance. Reserved for the wallet engine. A zero
// credit is valid: a payout can round down to nothing.
func (s *Store) Credit(id string, amount int64) (User, error) {
	if amount < 0 {
		return User{}, apperr.Validation("amount must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.NotFound("user")
	}
	u.Balance += amount
	u.UpdatedAt = s.clock.Now()
	return *u, nil
}

// Debit removes amount from the balance. The check and the write happen under
// the same lock so concurrent debits can never drive a balance negative.
func (s *Store) Debit(id string, amount int64) (User, error) {
	if amount <= 0 {
		return User{}, apperr.Validation("amount must be greater than zero")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.NotFound("user")
	}
	if u.Balance < amount {
		return User{}, apperr.ErrInsufficientBalance
	}
	u.Balance -= amount
	u.UpdatedAt = s.clock.Now()
	return *u, nil
}

// RecordCompletion bumps the completed counter and nudges the rating up by 0.1,
// capped at MaxRating.
func (s *Store) RecordCompletion(id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, apperr.NotFound("user")
	}
	u.CompletedServices++
	tenths := int(math.Round(u.Rating*10)) + ratingIncrement
	if tenths > int(MaxRating*10) {
		tenths = int(MaxRating * 10)
	}
	u.Rating = float64(tenths) / 10
	u.UpdatedAt = s.clock.Now()
	return *u, nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
