package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/realtime"
	"github.com/sudo-init-do/servicehub/internal/tasks"
	"github.com/sudo-init-do/servicehub/internal/user"
)

// Balances is the identity store surface the engine is allowed to use. No
// other component receives it.
type Balances interface {
	Get(id string) (user.User, error)
	Credit(id string, amount int64) (user.User, error)
	Debit(id string, amount int64) (user.User, error)
}

// Listings is the listing store surface the engine drives.
type Listings interface {
	Get(id string) (marketplace.Listing, error)
	Assign(id, clientID, transactionID string) (marketplace.Listing, bool)
	Complete(id, requesterID string) (marketplace.Listing, error)
	Cancel(id, requesterID string) (marketplace.Listing, error)
}

const DefaultHistoryLimit = 20

type Options struct {
	Policy          PaymentPolicy
	Commission      Commission
	SettlementDelay time.Duration
	WithdrawalDelay time.Duration
	Journal         Journal
	Logger          zerolog.Logger
}

// Engine owns every transaction. All status transitions happen under mu, and
// listing assignment and balance changes made by a transition happen under
// the same critical section. Events and journal writes go out after unlock.
type Engine struct {
	mu        sync.Mutex
	txs       map[string]*Transaction
	byListing map[string][]string
	byUser    map[string][]string
	idem      map[string]string
	reserved  map[string]int64
	seq       uint64

	users     Balances
	listings  Listings
	pub       realtime.Publisher
	scheduler tasks.Scheduler
	clock     clock.Clock

	policy          PaymentPolicy
	commission      Commission
	settlementDelay time.Duration
	withdrawalDelay time.Duration
	journal         Journal
	log             zerolog.Logger
}

func NewEngine(users Balances, listings Listings, pub realtime.Publisher, sched tasks.Scheduler, c clock.Clock, opts Options) *Engine {
	if opts.Policy == nil {
		opts.Policy = DeferredPolicy{}
	}
	if opts.Journal == nil {
		opts.Journal = NopJournal{}
	}
	e := &Engine{
		txs:             make(map[string]*Transaction),
		byListing:       make(map[string][]string),
		byUser:          make(map[string][]string),
		idem:            make(map[string]string),
		reserved:        make(map[string]int64),
		users:           users,
		listings:        listings,
		pub:             pub,
		scheduler:       sched,
		clock:           c,
		policy:          opts.Policy,
		commission:      opts.Commission,
		settlementDelay: opts.SettlementDelay,
		withdrawalDelay: opts.WithdrawalDelay,
		journal:         opts.Journal,
		log:             opts.Logger,
	}
	sched.HandleFunc(tasks.TypeSettlePayment, e.settlePayment)
	sched.HandleFunc(tasks.TypeSettleWithdrawal, e.settleWithdrawal)
	return e
}

func (e *Engine) Policy() string { return e.policy.Name() }

func idemKey(clientID, key string) string { return clientID + "\x00" + key }

// insert indexes a new transaction. Caller holds mu.
func (e *Engine) insert(tx *Transaction) {
	e.seq++
	tx.seq = e.seq
	e.txs[tx.ID] = tx
	if tx.ListingID != "" {
		e.byListing[tx.ListingID] = append(e.byListing[tx.ListingID], tx.ID)
	}
	for _, id := range []string{tx.ClientID, tx.ProviderID, tx.UserID} {
		if id != "" {
			e.byUser[id] = append(e.byUser[id], tx.ID)
		}
	}
}

// finish moves tx to a terminal status. Caller holds mu.
func (e *Engine) finish(tx *Transaction, s Status, reason string) {
	now := e.clock.Now()
	tx.Status = s
	tx.CompletedAt = &now
	tx.FailureReason = reason
}

func (e *Engine) record(txs ...Transaction) {
	for _, tx := range txs {
		if err := e.journal.Record(context.Background(), tx); err != nil {
			e.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("journal write failed")
		}
	}
}

func (e *Engine) replay(clientID, key string) (Transaction, bool) {
	if key == "" {
		return Transaction{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.idem[idemKey(clientID, key)]
	if !ok {
		return Transaction{}, false
	}
	return e.txs[id].clone(), true
}

// InitiatePayment records a client's payment for a listing and hands it to
// the configured policy.
func (e *Engine) InitiatePayment(ctx context.Context, clientID string, req PaymentRequest) (Receipt, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if tx, ok := e.replay(clientID, req.IdempotencyKey); ok {
		return Receipt{Transaction: tx, Replayed: true}, nil
	}
	if req.ListingID == "" {
		return Receipt{}, apperr.Validation("serviceId is required")
	}

	listing, err := e.listings.Get(req.ListingID)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := e.users.Get(clientID); err != nil {
		return Receipt{}, err
	}
	if listing.ProviderID == clientID {
		return Receipt{}, apperr.Forbidden("providers cannot pay for their own listing")
	}
	if listing.Status != marketplace.StatusActive {
		return Receipt{}, apperr.Conflict("listing is not available")
	}
	if req.Amount == 0 {
		req.Amount = listing.Price
	}
	if req.Amount < 0 {
		return Receipt{}, apperr.Validation("amount must be greater than zero")
	}

	adm, err := e.policy.Admit(req)
	if err != nil {
		return Receipt{}, err
	}
	commission, payout := e.commission.Split(req.Amount)

	e.mu.Lock()
	if req.IdempotencyKey != "" {
		if id, ok := e.idem[idemKey(clientID, req.IdempotencyKey)]; ok {
			tx := e.txs[id].clone()
			e.mu.Unlock()
			return Receipt{Transaction: tx, Replayed: true}, nil
		}
	}
	tx := &Transaction{
		ID:           uuid.New().String(),
		Kind:         KindServicePayment,
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		ClientID:     clientID,
		ProviderID:   listing.ProviderID,
		Amount:       req.Amount,
		Commission:   commission,
		Payout:       payout,
		Payment: Payment{
			Operator:         req.Operator,
			Number:           req.PayerNumber,
			ConfirmationCode: req.ConfirmCode,
			Notes:            req.Notes,
		},
		Status:         adm.Status,
		Policy:         e.policy.Name(),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      e.clock.Now(),
	}
	e.insert(tx)
	if req.IdempotencyKey != "" {
		e.idem[idemKey(clientID, req.IdempotencyKey)] = tx.ID
	}
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.log.Info().
		Str("transaction_id", out.ID).
		Str("listing_id", out.ListingID).
		Str("status", string(out.Status)).
		Int64("amount", out.Amount).
		Msg("payment initiated")

	if adm.Settle {
		if err := e.schedule(ctx, tasks.TypeSettlePayment, out.ID, e.settlementDelay); err != nil {
			return Receipt{}, err
		}
	}

	r := Receipt{Transaction: out}
	if adm.MerchantNumbers != nil {
		r.Instructions = &Instructions{Amount: out.Amount, Reference: out.ID, MerchantNumbers: adm.MerchantNumbers}
	}
	return r, nil
}

// schedule queues settlement. If the task cannot be queued the transaction is
// cancelled so nothing stays reserved forever.
func (e *Engine) schedule(ctx context.Context, taskType, txID string, delay time.Duration) error {
	err := e.scheduler.Schedule(ctx, taskType, tasks.Payload{TransactionID: txID, ScheduledAt: e.clock.Now()}, delay)
	if err == nil {
		return nil
	}

	e.mu.Lock()
	var out []Transaction
	if tx, ok := e.txs[txID]; ok && !tx.Status.Terminal() {
		if tx.Kind == KindWithdrawal {
			e.reserved[tx.UserID] -= tx.Amount
		}
		e.finish(tx, StatusCancelled, "settlement could not be scheduled")
		out = append(out, tx.clone())
	}
	e.mu.Unlock()
	e.record(out...)
	return apperr.Wrap(apperr.CodeInternal, "could not schedule settlement", err)
}

func (e *Engine) settlePayment(ctx context.Context, p tasks.Payload) error {
	e.mu.Lock()
	tx, ok := e.txs[p.TransactionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("settle payment: unknown transaction %s: %w", p.TransactionID, tasks.ErrNoRetry)
	}
	if tx.Status != StatusPending {
		// cancelled or rejected while the task was waiting
		e.mu.Unlock()
		e.log.Debug().Str("transaction_id", tx.ID).Str("status", string(tx.Status)).Msg("settlement skipped")
		return nil
	}

	// credit first so a failed credit leaves the listing untouched
	if _, err := e.users.Credit(tx.ProviderID, tx.Payout); err != nil {
		e.failPayment(tx, "provider could not be credited")
		e.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("payment cancelled at settlement")
		return nil
	}
	listing, assigned := e.listings.Assign(tx.ListingID, tx.ClientID, tx.ID)
	if !assigned {
		if tx.Payout > 0 {
			if _, err := e.users.Debit(tx.ProviderID, tx.Payout); err != nil {
				e.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("payout rollback failed")
			}
		}
		e.failPayment(tx, "listing is no longer available")
		e.log.Warn().Str("transaction_id", tx.ID).Msg("payment cancelled at settlement")
		return nil
	}

	e.finish(tx, StatusSettled, "")
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.log.Info().Str("transaction_id", out.ID).Int64("payout", out.Payout).Msg("payment settled")

	client, _ := e.users.Get(out.ClientID)
	e.pub.Publish(realtime.Event{Type: realtime.EventPaymentCompleted, Data: echo.Map{
		"transactionId":  out.ID,
		"serviceId":      out.ListingID,
		"clientName":     client.FullName,
		"providerName":   listing.ProviderName,
		"amount":         out.Amount,
		"providerAmount": out.Payout,
		"commission":     out.Commission,
	}}, realtime.UserChannel(out.ClientID), realtime.UserChannel(out.ProviderID))
	e.pub.Publish(realtime.Event{Type: realtime.EventNewServiceAssignment, Data: echo.Map{
		"service":     listing,
		"transaction": out,
		"client":      client.Public(),
	}}, realtime.UserChannel(out.ProviderID))
	return nil
}

// failPayment cancels a pending payment, releases mu and tells the client.
// Caller holds mu.
func (e *Engine) failPayment(tx *Transaction, reason string) {
	e.finish(tx, StatusCancelled, reason)
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.pub.Publish(realtime.Event{Type: realtime.EventPaymentFailed, Data: echo.Map{
		"transactionId": out.ID,
		"serviceId":     out.ListingID,
		"reason":        out.FailureReason,
	}}, realtime.UserChannel(out.ClientID))
}

// settledPayments counts settled payments for a listing. Caller holds mu.
func (e *Engine) settledPayments(listingID string) int {
	n := 0
	for _, id := range e.byListing[listingID] {
		tx := e.txs[id]
		if tx.Kind == KindServicePayment && tx.Status == StatusSettled {
			n++
		}
	}
	return n
}

// CompleteService closes a listing whose payment has settled.
func (e *Engine) CompleteService(_ context.Context, listingID, requesterID string) (marketplace.Listing, error) {
	l, err := e.listings.Get(listingID)
	if err != nil {
		return marketplace.Listing{}, err
	}
	if requesterID != l.ProviderID && requesterID != l.ClientID {
		return marketplace.Listing{}, apperr.Forbidden("only the provider or the assigned client can complete this listing")
	}

	e.mu.Lock()
	if e.settledPayments(listingID) != 1 {
		e.mu.Unlock()
		return marketplace.Listing{}, apperr.ErrMissingSettlement
	}
	l, err = e.listings.Complete(listingID, requesterID)
	e.mu.Unlock()
	if err != nil {
		return marketplace.Listing{}, err
	}

	provider, _ := e.users.Get(l.ProviderID)
	e.pub.Publish(realtime.Event{Type: realtime.EventServiceCompleted, Data: echo.Map{
		"serviceId":         l.ID,
		"service":           l,
		"providerRating":    provider.Rating,
		"completedServices": provider.CompletedServices,
	}}, realtime.UserChannel(l.ProviderID), realtime.UserChannel(l.ClientID))
	e.log.Info().Str("listing_id", l.ID).Str("requester_id", requesterID).Msg("service completed")
	return l, nil
}

// Cancel cancels a listing and every open transaction attached to it. A
// pending settlement for one of them becomes a no-op.
func (e *Engine) Cancel(_ context.Context, listingID, requesterID string) (marketplace.Listing, []Transaction, error) {
	e.mu.Lock()
	l, err := e.listings.Cancel(listingID, requesterID)
	if err != nil {
		e.mu.Unlock()
		return marketplace.Listing{}, nil, err
	}
	var cancelled []Transaction
	for _, id := range e.byListing[listingID] {
		tx := e.txs[id]
		if tx.Status.Terminal() {
			continue
		}
		e.finish(tx, StatusCancelled, "listing cancelled")
		cancelled = append(cancelled, tx.clone())
	}
	e.mu.Unlock()

	e.record(cancelled...)
	for _, tx := range cancelled {
		e.pub.Publish(realtime.Event{Type: realtime.EventPaymentFailed, Data: echo.Map{
			"transactionId": tx.ID,
			"serviceId":     tx.ListingID,
			"reason":        tx.FailureReason,
		}}, realtime.UserChannel(tx.ClientID))
	}
	e.log.Info().Str("listing_id", listingID).Int("transactions_cancelled", len(cancelled)).Msg("listing cancelled")
	return l, cancelled, nil
}

// Withdraw reserves amount against the user's balance and schedules the
// payout. The balance is debited at settlement.
func (e *Engine) Withdraw(ctx context.Context, userID string, req WithdrawalRequest) (Transaction, error) {
	if req.Amount <= 0 {
		return Transaction{}, apperr.Validation("amount must be greater than zero")
	}

	e.mu.Lock()
	u, err := e.users.Get(userID)
	if err != nil {
		e.mu.Unlock()
		return Transaction{}, err
	}
	if u.Balance-e.reserved[userID] < req.Amount {
		e.mu.Unlock()
		return Transaction{}, apperr.ErrInsufficientBalance
	}
	tx := &Transaction{
		ID:        uuid.New().String(),
		Kind:      KindWithdrawal,
		UserID:    userID,
		Amount:    req.Amount,
		Payout:    req.Amount,
		Payment:   Payment{Operator: req.Operator, Number: req.Number},
		Status:    StatusPending,
		CreatedAt: e.clock.Now(),
	}
	e.insert(tx)
	e.reserved[userID] += req.Amount
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.log.Info().Str("transaction_id", out.ID).Int64("amount", out.Amount).Msg("withdrawal requested")

	if err := e.schedule(ctx, tasks.TypeSettleWithdrawal, out.ID, e.withdrawalDelay); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (e *Engine) settleWithdrawal(_ context.Context, p tasks.Payload) error {
	e.mu.Lock()
	tx, ok := e.txs[p.TransactionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("settle withdrawal: unknown transaction %s: %w", p.TransactionID, tasks.ErrNoRetry)
	}
	if tx.Status != StatusPending {
		e.mu.Unlock()
		return nil
	}
	e.reserved[tx.UserID] -= tx.Amount

	u, err := e.users.Debit(tx.UserID, tx.Amount)
	if err != nil {
		e.finish(tx, StatusRejected, "insufficient balance at settlement")
		out := tx.clone()
		e.mu.Unlock()

		e.record(out)
		e.pub.Publish(realtime.Event{Type: realtime.EventWithdrawalFailed, Data: echo.Map{
			"transactionId": out.ID,
			"amount":        out.Amount,
			"reason":        out.FailureReason,
		}}, realtime.UserChannel(out.UserID))
		e.log.Warn().Err(err).Str("transaction_id", out.ID).Msg("withdrawal rejected")
		return nil
	}
	e.finish(tx, StatusSettled, "")
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.pub.Publish(realtime.Event{Type: realtime.EventWithdrawalCompleted, Data: echo.Map{
		"transactionId": out.ID,
		"userId":        out.UserID,
		"amount":        out.Amount,
		"newBalance":    u.Balance,
	}}, realtime.UserChannel(out.UserID))
	e.log.Info().Str("transaction_id", out.ID).Int64("new_balance", u.Balance).Msg("withdrawal settled")
	return nil
}

// ConfirmManualPayment is the operator step that releases a payment held by
// the verification policy into settlement.
func (e *Engine) ConfirmManualPayment(ctx context.Context, txID string) (Transaction, error) {
	e.mu.Lock()
	tx, ok := e.txs[txID]
	if !ok {
		e.mu.Unlock()
		return Transaction{}, apperr.NotFound("transaction")
	}
	if tx.Status != StatusAwaitingConfirmation {
		e.mu.Unlock()
		return Transaction{}, apperr.Conflict("transaction is " + string(tx.Status))
	}
	tx.Status = StatusPending
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	if err := e.schedule(ctx, tasks.TypeSettlePayment, out.ID, e.settlementDelay); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (e *Engine) RejectManualPayment(_ context.Context, txID, reason string) (Transaction, error) {
	e.mu.Lock()
	tx, ok := e.txs[txID]
	if !ok {
		e.mu.Unlock()
		return Transaction{}, apperr.NotFound("transaction")
	}
	if tx.Status != StatusAwaitingConfirmation {
		e.mu.Unlock()
		return Transaction{}, apperr.Conflict("transaction is " + string(tx.Status))
	}
	if reason == "" {
		reason = "payment not received"
	}
	e.finish(tx, StatusRejected, reason)
	out := tx.clone()
	e.mu.Unlock()

	e.record(out)
	e.pub.Publish(realtime.Event{Type: realtime.EventPaymentFailed, Data: echo.Map{
		"transactionId": out.ID,
		"serviceId":     out.ListingID,
		"reason":        reason,
	}}, realtime.UserChannel(out.ClientID))
	return out, nil
}

// Get returns a transaction visible to userID.
func (e *Engine) Get(id, userID string) (Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.txs[id]
	if !ok {
		return Transaction{}, apperr.NotFound("transaction")
	}
	if !tx.involves(userID) {
		return Transaction{}, apperr.Forbidden("not a party to this transaction")
	}
	return tx.clone(), nil
}

// ListForUser returns the user's latest transactions, newest first.
func (e *Engine) ListForUser(userID string, limit int) []Transaction {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	e.mu.Lock()
	out := make([]Transaction, 0, len(e.byUser[userID]))
	for _, id := range e.byUser[userID] {
		out = append(out, e.txs[id].clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].seq > out[j].seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats aggregates settled payments platform-wide and for userID.
func (e *Engine) Stats(userID string) (PlatformStats, UserStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ps PlatformStats
	var us UserStats
	for _, tx := range e.txs {
		if tx.Status == StatusPending {
			ps.PendingTransactions++
		}
		if tx.Kind != KindServicePayment || tx.Status != StatusSettled {
			continue
		}
		ps.TotalTransactions++
		ps.TotalCommission += tx.Commission
		if tx.ProviderID == userID {
			us.TotalEarnings += tx.Payout
		}
		if tx.ClientID == userID {
			us.TotalSpent += tx.Amount
		}
	}
	return ps, us
}

// ListByStatus returns every transaction in status s, oldest first.
func (e *Engine) ListByStatus(s Status) []Transaction {
	e.mu.Lock()
	out := make([]Transaction, 0)
	for _, tx := range e.txs {
		if tx.Status == s {
			out = append(out, tx.clone())
		}
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Balance reports the user's balance and the part of it not reserved by
// pending withdrawals.
func (e *Engine) Balance(userID string) (balance, available int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, err := e.users.Get(userID)
	if err != nil {
		return 0, 0, err
	}
	return u.Balance, u.Balance - e.reserved[userID], nil
}
