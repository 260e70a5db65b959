package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Init connects to Postgres and makes sure the journal schema exists.
func Init(ctx context.Context, url string, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("connected to postgres")

	if err = ensureWalletTransactionsTable(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if err = ensureWalletTransactionsIndexes(ctx, pool); err != nil {
		// the journal still works without them
		log.Warn().Err(err).Msg("could not create wallet_transactions indexes")
	}
	return pool, nil
}

// ensureWalletTransactionsTable creates the transaction journal if missing
func ensureWalletTransactionsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS wallet_transactions (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('service_payment','withdrawal')),
            listing_id TEXT,
            client_id TEXT,
            provider_id TEXT,
            user_id TEXT,
            amount BIGINT NOT NULL CHECK (amount > 0),
            commission BIGINT NOT NULL DEFAULT 0,
            payout BIGINT NOT NULL DEFAULT 0,
            operator TEXT,
            number TEXT,
            status TEXT NOT NULL CHECK (status IN ('pending','awaiting_confirmation','settled','cancelled','rejected')),
            policy TEXT,
            failure_reason TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            completed_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	if err != nil {
		return fmt.Errorf("ensure wallet_transactions: %w", err)
	}
	return nil
}

// ensureWalletTransactionsIndexes adds lookup indexes used by reports
func ensureWalletTransactionsIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_status ON wallet_transactions (status)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_listing ON wallet_transactions (listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_created ON wallet_transactions (created_at DESC)`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
