package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	url := flag.String("database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	since := flag.Duration("since", 0, "only include transactions created within this window, e.g. 168h")
	flag.Parse()

	_ = godotenv.Load()
	if *url == "" {
		*url = os.Getenv("DATABASE_URL")
	}
	if *url == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/ledger_report -database-url postgres://... [-since 168h]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// read-only: connect directly, no schema setup
	pool, err := pgxpool.New(ctx, *url)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	from := time.Time{}
	if *since > 0 {
		from = time.Now().Add(-*since)
	}
	if err := report(ctx, pool, from); err != nil {
		log.Fatalf("report failed: %v", err)
	}
}

func report(ctx context.Context, pool *pgxpool.Pool, from time.Time) error {
	rows, err := pool.Query(ctx, `
        SELECT kind, status, COUNT(*), COALESCE(SUM(amount),0), COALESCE(SUM(commission),0)
        FROM wallet_transactions
        WHERE created_at >= $1
        GROUP BY kind, status
        ORDER BY kind, status`, from)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tSTATUS\tCOUNT\tAMOUNT\tCOMMISSION")

	var count, settled, commission int64
	for rows.Next() {
		var kind, status string
		var n, amount, comm int64
		if err := rows.Scan(&kind, &status, &n, &amount, &comm); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", kind, status, n, amount, comm)
		count += n
		// only settled payments earn commission
		if kind == "service_payment" && status == "settled" {
			settled += amount
			commission += comm
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d transactions, %d collected in commission", count, commission)
	if settled > 0 {
		rate := decimal.NewFromInt(commission).Div(decimal.NewFromInt(settled)).Mul(decimal.NewFromInt(100))
		fmt.Printf(" (effective rate %s%% of %d settled)", rate.StringFixed(2), settled)
	}
	fmt.Println()
	return nil
}
