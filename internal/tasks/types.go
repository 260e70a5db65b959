package tasks

import (
	"context"
	"errors"
	"time"
)

// Task type constants
const (
	TypeSettlePayment    = "wallet:settle_payment"
	TypeSettleWithdrawal = "wallet:settle_withdrawal"
)

// Payload is the body of every settlement task.
type Payload struct {
	TransactionID string    `json:"transaction_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// ErrNoRetry marks a handler failure that no retry can fix, such as a task
// naming a transaction this process does not hold.
var ErrNoRetry = errors.New("task cannot succeed")

type HandlerFunc func(ctx context.Context, p Payload) error

// Scheduler runs a handler for a task type once the delay has elapsed.
type Scheduler interface {
	HandleFunc(taskType string, h HandlerFunc)
	Schedule(ctx context.Context, taskType string, p Payload, delay time.Duration) error
}
