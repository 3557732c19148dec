// Command auditverify recomputes the audit ledger hash chain and reports
// whether it is intact. Exit code 1 means the chain failed verification,
// which indicates tampering or storage corruption.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"passq/internal/audit"
	"passq/internal/platform/database"
)

func main() {
	var (
		from    = flag.Uint64("from", 0, "first sequence to verify (0 = start)")
		to      = flag.Uint64("to", 0, "last sequence to verify (0 = end)")
		timeout = flag.Duration("timeout", 5*time.Minute, "verification timeout")
	)
	flag.Parse()

	if err := run(*from, *to, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "auditverify:", err)
		os.Exit(1)
	}
}

func run(from, to uint64, timeout time.Duration) error {
	dbURL := os.Getenv("PASSQ_DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("PASSQ_DATABASE_URL must be set")
	}
	auditKey := os.Getenv("PASSQ_AUDIT_SECRET")
	if auditKey == "" {
		return fmt.Errorf("PASSQ_AUDIT_SECRET must be set")
	}

	pool, err := database.New(database.DefaultConfig(dbURL))
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	ledger := audit.NewLedger(audit.NewPostgres(pool.DB()), []byte(auditKey))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var result *audit.VerifyResult
	if from == 0 && to == 0 {
		result, err = ledger.VerifyAll(ctx)
	} else {
		result, err = ledger.Verify(ctx, from, to)
	}
	if err != nil {
		return fmt.Errorf("verification aborted: %w", err)
	}

	if !result.Intact {
		return fmt.Errorf("chain broken at sequence %d (%d entries checked)",
			result.FirstMismatch, result.Checked)
	}
	fmt.Printf("chain intact: %d entries verified\n", result.Checked)
	return nil
}
