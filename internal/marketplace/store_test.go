package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/user"
)

type fixture struct {
	clock    *clock.Manual
	users    *user.Store
	store    *Store
	provider user.User
	client   user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewManual(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	users := user.NewStore(user.BcryptHasher{Cost: bcrypt.MinCost}, c)
	provider, err := users.Register(user.Profile{FullName: "Ama", Phone: "0100000001", Role: user.RoleProvider, Password: "pw"})
	require.NoError(t, err)
	client, err := users.Register(user.Profile{FullName: "Kofi", Phone: "0100000002", Role: user.RoleClient, Password: "pw"})
	require.NoError(t, err)
	return &fixture{clock: c, users: users, store: NewStore(users, c), provider: provider, client: client}
}

func (f *fixture) create(t *testing.T, fields Fields) Listing {
	t.Helper()
	l, err := f.store.Create(f.provider.ID, fields)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return l
}

func TestCreateStartsActive(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000, Location: "Cotonou"})

	assert.Equal(t, StatusActive, l.Status)
	assert.Equal(t, "Ama", l.ProviderName)
	assert.Empty(t, l.ClientID)
	assert.Equal(t, []string{}, l.Images)
}

func TestCreateRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Create(f.client.ID, Fields{Title: "x", Price: 10})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.store.Create(f.provider.ID, Fields{Title: "x", Price: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.store.Create("ghost", Fields{Title: "x", Price: 10})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditOwnerOnly(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000})

	title := "Emergency plumbing"
	price := int64(1500)
	got, err := f.store.Edit(l.ID, f.provider.ID, Patch{Title: &title, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, price, got.Price)
	assert.True(t, got.UpdatedAt.After(l.UpdatedAt))

	_, err = f.store.Edit(l.ID, f.client.ID, Patch{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.store.Edit("nope", f.provider.ID, Patch{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	bad := int64(-1)
	_, err = f.store.Edit(l.ID, f.provider.ID, Patch{Price: &bad})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAssignOnlyFromActive(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000})

	got, ok := f.store.Assign(l.ID, f.client.ID, "tx-1")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, f.client.ID, got.ClientID)
	assert.Equal(t, "tx-1", got.TransactionID)

	_, ok = f.store.Assign(l.ID, "someone-else", "tx-2")
	assert.False(t, ok)
	again, _ := f.store.Get(l.ID)
	assert.Equal(t, f.client.ID, again.ClientID)
	assert.Equal(t, "tx-1", again.TransactionID)
}

func TestCompleteRequiresInProgress(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000})

	_, err := f.store.Complete(l.ID, f.provider.ID)
	assert.ErrorIs(t, err, apperr.ErrMissingSettlement)

	f.store.Assign(l.ID, f.client.ID, "tx-1")

	_, err = f.store.Complete(l.ID, "stranger")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.store.Complete(l.ID, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, f.client.ID, got.ClientID)

	provider, _ := f.users.Get(f.provider.ID)
	assert.Equal(t, 1, provider.CompletedServices)

	_, err = f.store.Complete(l.ID, f.provider.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000})
	f.store.Assign(l.ID, f.client.ID, "tx-1")

	got, err := f.store.Cancel(l.ID, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Empty(t, got.ClientID)

	_, err = f.store.Cancel(l.ID, f.provider.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	other := f.create(t, Fields{Title: "Painting", Price: 500})
	_, err = f.store.Cancel(other.ID, f.client.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAssignedClientIffInProgressOrCompleted(t *testing.T) {
	f := newFixture(t)
	active := f.create(t, Fields{Title: "a", Price: 1})
	inProgress := f.create(t, Fields{Title: "b", Price: 1})
	completed := f.create(t, Fields{Title: "c", Price: 1})
	cancelled := f.create(t, Fields{Title: "d", Price: 1})

	f.store.Assign(inProgress.ID, f.client.ID, "t1")
	f.store.Assign(completed.ID, f.client.ID, "t2")
	_, err := f.store.Complete(completed.ID, f.provider.ID)
	require.NoError(t, err)
	f.store.Assign(cancelled.ID, f.client.ID, "t3")
	_, err = f.store.Cancel(cancelled.ID, f.provider.ID)
	require.NoError(t, err)

	for _, id := range []string{active.ID, inProgress.ID, completed.ID, cancelled.ID} {
		l, err := f.store.Get(id)
		require.NoError(t, err)
		assigned := l.Status == StatusInProgress || l.Status == StatusCompleted
		assert.Equal(t, assigned, l.ClientID != "", "listing %s in %s", l.Title, l.Status)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, Fields{Title: "Plomberie", Description: "fuite d'eau", Category: "home", Location: "Cotonou", Price: 5000})
	b := f.create(t, Fields{Title: "Cours de maths", Category: "education", Location: "Porto-Novo", Price: 2000})
	c := f.create(t, Fields{Title: "Electricien", Description: "installation", Category: "home", Location: "cotonou centre", Price: 8000})
	taken := f.create(t, Fields{Title: "Plomberie bis", Category: "home", Location: "Cotonou", Price: 5000})
	f.store.Assign(taken.ID, f.client.ID, "tx")

	ids := func(ls []Listing) []string {
		out := make([]string, 0, len(ls))
		for _, l := range ls {
			out = append(out, l.ID)
		}
		return out
	}

	assert.Equal(t, []string{c.ID, b.ID, a.ID}, ids(f.store.Search(Filter{})))
	assert.Equal(t, []string{c.ID, a.ID}, ids(f.store.Search(Filter{Category: "home"})))
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, ids(f.store.Search(Filter{Category: "all"})))
	assert.Equal(t, []string{c.ID, a.ID}, ids(f.store.Search(Filter{Location: "COTONOU"})))
	assert.Equal(t, []string{a.ID}, ids(f.store.Search(Filter{Search: "FUITE"})))
	assert.Equal(t, []string{b.ID, a.ID}, ids(f.store.Search(Filter{MaxPrice: 5000})))
	assert.Equal(t, []string{c.ID, a.ID}, ids(f.store.Search(Filter{MinPrice: 5000})))
	assert.Equal(t, []string{b.ID}, ids(f.store.Search(Filter{Limit: 1, Offset: 1})))
	assert.Empty(t, f.store.Search(Filter{Offset: 10}))
}

func TestSearchSameTimestampKeepsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	first, err := f.store.Create(f.provider.ID, Fields{Title: "first", Price: 1})
	require.NoError(t, err)
	second, err := f.store.Create(f.provider.ID, Fields{Title: "second", Price: 1})
	require.NoError(t, err)

	got := f.store.Search(Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
}

func TestViewCountsAndStats(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, Fields{Title: "Plumbing", Price: 1000})
	f.create(t, Fields{Title: "Painting", Price: 1000})

	_, _ = f.store.View(l.ID)
	got, err := f.store.View(l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ViewCount)

	f.store.Assign(l.ID, f.client.ID, "tx")
	_, err = f.store.Complete(l.ID, f.provider.ID)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 2, Active: 1, Completed: 1}, f.store.Stats())
	assert.Equal(t, 1, f.store.UserStats(f.provider.ID).CompletedAsProvider)
	assert.Equal(t, 1, f.store.UserStats(f.client.ID).CompletedAsClient)

	assert.Len(t, f.store.ListForUser(f.provider.ID, OwnershipProvided), 2)
	assert.Len(t, f.store.ListForUser(f.client.ID, OwnershipRequested), 1)
	assert.Empty(t, f.store.ListForUser(f.client.ID, OwnershipProvided))
}
