package wallet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Journal keeps a durable copy of every transaction state change.
type Journal interface {
	Record(ctx context.Context, tx Transaction) error
}

type NopJournal struct{}

func (NopJournal) Record(context.Context, Transaction) error { return nil }

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresJournal upserts transactions into wallet_transactions.
type PostgresJournal struct {
	pool Execer
}

func NewPostgresJournal(pool Execer) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (j *PostgresJournal) Record(ctx context.Context, tx Transaction) error {
	_, err := j.pool.Exec(ctx, `
        INSERT INTO wallet_transactions
            (id, kind, listing_id, client_id, provider_id, user_id, amount, commission, payout,
             operator, number, status, policy, failure_reason, created_at, completed_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            failure_reason = EXCLUDED.failure_reason,
            completed_at = EXCLUDED.completed_at,
            updated_at = NOW()`,
		tx.ID, string(tx.Kind), nullable(tx.ListingID), nullable(tx.ClientID), nullable(tx.ProviderID),
		nullable(tx.UserID), tx.Amount, tx.Commission, tx.Payout,
		nullable(tx.Payment.Operator), nullable(tx.Payment.Number), string(tx.Status),
		nullable(tx.Policy), nullable(tx.FailureReason), tx.CreatedAt, tx.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("journal transaction %s: %w", tx.ID, err)
	}
	return nil
}
