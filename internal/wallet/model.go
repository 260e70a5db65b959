package wallet

import "time"

type Kind string

const (
	KindServicePayment Kind = "service_payment"
	KindWithdrawal     Kind = "withdrawal"
)

type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusSettled              Status = "settled"
	StatusCancelled            Status = "cancelled"
	StatusRejected             Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled || s == StatusRejected
}

// Payment is the mobile money metadata supplied by the payer, or the payout
// destination of a withdrawal.
type Payment struct {
	Operator         string `json:"operator,omitempty"`
	Number           string `json:"userNumber,omitempty"`
	ConfirmationCode string `json:"-"`
	Notes            string `json:"notes,omitempty"`
}

// Transaction is a service payment or a withdrawal.
type Transaction struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"type"`
	ListingID      string     `json:"serviceId,omitempty"`
	ListingTitle   string     `json:"serviceTitle,omitempty"`
	ClientID       string     `json:"clientId,omitempty"`
	ProviderID     string     `json:"providerId,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	Amount         int64      `json:"amount"`
	Commission     int64      `json:"commission"`
	Payout         int64      `json:"providerAmount"`
	Payment        Payment    `json:"payment"`
	Status         Status     `json:"status"`
	Policy         string     `json:"policy,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	seq uint64
}

func (t *Transaction) clone() Transaction {
	c := *t
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return c
}

// involves reports whether userID is a party to t.
func (t *Transaction) involves(userID string) bool {
	return t.ClientID == userID || t.ProviderID == userID || t.UserID == userID
}

// PaymentRequest is a client's request to pay for a listing.
type PaymentRequest struct {
	ListingID      string `json:"serviceId"`
	Amount         int64  `json:"amount"`
	Operator       string `json:"operator"`
	PayerNumber    string `json:"userNumber"`
	Notes          string `json:"notes"`
	ConfirmCode    string `json:"confirmCode"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// WithdrawalRequest moves funds out to a mobile money number.
type WithdrawalRequest struct {
	Amount   int64  `json:"amount"`
	Operator string `json:"operator"`
	Number   string `json:"withdrawalNumber"`
}

// Instructions tell the payer how to complete a manual payment.
type Instructions struct {
	Amount          int64             `json:"amount"`
	Reference       string            `json:"reference"`
	MerchantNumbers map[string]string `json:"merchantNumbers"`
}

// Receipt is what a payment initiation returns.
type Receipt struct {
	Transaction  Transaction   `json:"transaction"`
	Instructions *Instructions `json:"instructions,omitempty"`
	Replayed     bool          `json:"-"`
}

type PlatformStats struct {
	TotalTransactions   int   `json:"totalTransactions"`
	TotalCommission     int64 `json:"totalCommission"`
	PendingTransactions int   `json:"pendingTransactions"`
}

type UserStats struct {
	TotalEarnings int64 `json:"totalEarnings"`
	TotalSpent    int64 `json:"totalSpent"`
}
