package marketplace

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/user"
)

// Directory is the slice of the identity store the listing store depends on.
type Directory interface {
	Get(id string) (user.User, error)
	RecordCompletion(id string) (user.User, error)
}

// Store owns listings. Every transition commits status and its dependent
// fields under one lock.
type Store struct {
	mu         sync.RWMutex
	listings   map[string]*Listing
	active     map[string]struct{}
	byProvider map[string][]string
	byClient   map[string][]string
	seq        uint64

	users Directory
	clock clock.Clock
}

func NewStore(users Directory, c clock.Clock) *Store {
	return &Store{
		listings:   make(map[string]*Listing),
		active:     make(map[string]struct{}),
		byProvider: make(map[string][]string),
		byClient:   make(map[string][]string),
		users:      users,
		clock:      c,
	}
}

func validateFields(f Fields) error {
	if strings.TrimSpace(f.Title) == "" {
		return apperr.Validation("title is required")
	}
	if f.Price <= 0 {
		return apperr.Validation("price must be a positive amount")
	}
	return nil
}

func (s *Store) Create(providerID string, f Fields) (Listing, error) {
	if err := validateFields(f); err != nil {
		return Listing{}, err
	}
	provider, err := s.users.Get(providerID)
	if err != nil {
		return Listing{}, err
	}
	if !provider.Role.CanProvide() {
		return Listing{}, apperr.Forbidden("only providers can post listings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.seq++
	l := &Listing{
		ID:           uuid.New().String(),
		ProviderID:   providerID,
		ProviderName: provider.FullName,
		Title:        strings.TrimSpace(f.Title),
		Description:  f.Description,
		Category:     f.Category,
		Location:     f.Location,
		Price:        f.Price,
		Images:       f.Images,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		seq:          s.seq,
	}
	s.listings[l.ID] = l
	s.active[l.ID] = struct{}{}
	s.byProvider[providerID] = append(s.byProvider[providerID], l.ID)
	return l.clone(), nil
}

func (s *Store) Get(id string) (Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, apperr.NotFound("listing")
	}
	return l.clone(), nil
}

// View is Get for public detail pages; it counts the view.
func (s *Store) View(id string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, apperr.NotFound("listing")
	}
	l.ViewCount++
	return l.clone(), nil
}

func (s *Store) Edit(id, requesterID string, p Patch) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, apperr.NotFound("listing")
	}
	if l.ProviderID != requesterID {
		return Listing{}, apperr.Forbidden("only the provider can edit this listing")
	}

	next := Fields{Title: l.Title, Description: l.Description, Category: l.Category, Location: l.Location, Price: l.Price, Images: l.Images}
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Category != nil {
		next.Category = *p.Category
	}
	if p.Location != nil {
		next.Location = *p.Location
	}
	if p.Price != nil {
		next.Price = *p.Price
	}
	if p.Images != nil {
		next.Images = *p.Images
	}
	if err := validateFields(next); err != nil {
		return Listing{}, err
	}

	l.Title = strings.TrimSpace(next.Title)
	l.Description = next.Description
	l.Category = next.Category
	l.Location = next.Location
	l.Price = next.Price
	l.Images = next.Images
	l.UpdatedAt = s.clock.Now()
	return l.clone(), nil
}

// Assign moves an active listing to in_progress for the paying client. It
// reports false, changing nothing, when the listing is missing or no longer active.
func (s *Store) Assign(id, clientID, transactionID string) (Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.Status != StatusActive {
		return Listing{}, false
	}
	l.Status = StatusInProgress
	l.ClientID = clientID
	l.TransactionID = transactionID
	l.UpdatedAt = s.clock.Now()
	delete(s.active, id)
	s.byClient[clientID] = append(s.byClient[clientID], id)
	return l.clone(), true
}

func participant(l *Listing, userID string) bool {
	return userID != "" && (l.ProviderID == userID || l.ClientID == userID)
}

// Complete closes an in_progress listing. Only settlement puts a listing in
// progress, so any other non-terminal status means there is nothing settled.
func (s *Store) Complete(id, requesterID string) (Listing, error) {
	s.mu.Lock()
	l, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return Listing{}, apperr.NotFound("listing")
	}
	if !participant(l, requesterID) {
		s.mu.Unlock()
		return Listing{}, apperr.Forbidden("only the provider or the assigned client can complete this listing")
	}
	switch l.Status {
	case StatusInProgress:
	case StatusActive:
		s.mu.Unlock()
		return Listing{}, apperr.ErrMissingSettlement
	default:
		s.mu.Unlock()
		return Listing{}, apperr.Conflict("listing is already " + string(l.Status))
	}
	now := s.clock.Now()
	l.Status = StatusCompleted
	l.CompletedAt = &now
	l.UpdatedAt = now
	out := l.clone()
	s.mu.Unlock()

	if _, err := s.users.RecordCompletion(out.ProviderID); err != nil {
		return out, err
	}
	return out, nil
}

// Cancel closes a non-terminal listing. The assigned client is cleared so a
// cancelled listing never carries one.
func (s *Store) Cancel(id, requesterID string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, apperr.NotFound("listing")
	}
	if !participant(l, requesterID) {
		return Listing{}, apperr.Forbidden("only the provider or the assigned client can cancel this listing")
	}
	if l.Status.Terminal() {
		return Listing{}, apperr.Conflict("listing is already " + string(l.Status))
	}
	l.Status = StatusCancelled
	l.ClientID = ""
	l.UpdatedAt = s.clock.Now()
	delete(s.active, id)
	return l.clone(), nil
}

func (f Filter) match(l *Listing) bool {
	if f.Category != "" && f.Category != "all" && l.Category != f.Category {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(l.Title), q) && !strings.Contains(strings.ToLower(l.Description), q) {
			return false
		}
	}
	if f.MinPrice > 0 && l.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	return true
}

func newestFirst(out []Listing) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].seq > out[j].seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

// Search returns active listings matching f, newest first.
func (s *Store) Search(f Filter) []Listing {
	s.mu.RLock()
	out := make([]Listing, 0, len(s.active))
	for id := range s.active {
		l := s.listings[id]
		if f.match(l) {
			out = append(out, l.clone())
		}
	}
	s.mu.RUnlock()

	newestFirst(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Listing{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// ListForUser returns listings the user provides, was assigned, or both.
func (s *Store) ListForUser(userID string, o Ownership) []Listing {
	s.mu.RLock()
	seen := make(map[string]struct{})
	var out []Listing
	add := func(ids []string) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s.listings[id].clone())
		}
	}
	if o != OwnershipRequested {
		add(s.byProvider[userID])
	}
	if o != OwnershipProvided {
		add(s.byClient[userID])
	}
	s.mu.RUnlock()

	newestFirst(out)
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.listings), Active: len(s.active)}
	for _, l := range s.listings {
		if l.Status == StatusCompleted {
			st.Completed++
		}
	}
	return st
}

func (s *Store) UserStats(userID string) UserStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st UserStats
	for _, id := range s.byProvider[userID] {
		switch s.listings[id].Status {
		case StatusCompleted:
			st.CompletedAsProvider++
		case StatusInProgress:
			st.ActiveAsProvider++
		}
	}
	for _, id := range s.byClient[userID] {
		l := s.listings[id]
		if l.ClientID != userID {
			continue
		}
		switch l.Status {
		case StatusCompleted:
			st.CompletedAsClient++
		case StatusInProgress:
			st.ActiveAsClient++
		}
	}
	return st
}
