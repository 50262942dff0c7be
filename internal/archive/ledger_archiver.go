package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

const recordVersion = "1.0"

// ErrInvalidMonth is returned when a month is not formatted YYYY-MM.
var ErrInvalidMonth = errors.New("archive: month must be YYYY-MM")

// ErrDisabled is returned when no archive bucket is configured.
var ErrDisabled = errors.New("archive: ledger archive bucket not configured")

// TransactionSource lists ledger entries created in [from, to).
type TransactionSource interface {
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]credits.Transaction, error)
}

// LedgerArchiver copies a month of credit transactions to S3 as JSONL.
type LedgerArchiver struct {
	source TransactionSource
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewLedgerArchiver creates a LedgerArchiver.
func NewLedgerArchiver(source TransactionSource, store *Store, logger *logging.Logger) *LedgerArchiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &LedgerArchiver{source: source, store: store, logger: logger, now: time.Now}
}

// Enabled reports whether archive runs will write anything.
func (a *LedgerArchiver) Enabled() bool {
	return a != nil && a.store.Enabled()
}

// ParseMonth parses "YYYY-MM" into the UTC start of that month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return t.UTC(), nil
}

// TransactionKey returns the S3 key for a month's archive.
func TransactionKey(from time.Time) string {
	return fmt.Sprintf("ledger/v1/credit-transactions/%s.jsonl", from.Format("2006/01"))
}

// ArchiveMonth writes every transaction created during month (UTC) and
// records the run in the manifest. Re-running a month overwrites its object.
func (a *LedgerArchiver) ArchiveMonth(ctx context.Context, month string) (Result, error) {
	if !a.Enabled() {
		return Result{}, ErrDisabled
	}
	from, err := ParseMonth(month)
	if err != nil {
		return Result{}, err
	}
	to := from.AddDate(0, 1, 0)

	txns, err := a.source.TransactionsBetween(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("archive: list transactions: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	net := decimal.Zero
	for _, txn := range txns {
		txn.Description = ScrubPII(txn.Description)
		if err := enc.Encode(Record{Version: recordVersion, Transaction: txn}); err != nil {
			return Result{}, fmt.Errorf("archive: encode transaction %s: %w", txn.ID, err)
		}
		net = net.Add(txn.Amount)
	}

	key := TransactionKey(from)
	if err := a.store.Put(ctx, key, "application/x-ndjson", buf.Bytes()); err != nil {
		return Result{}, err
	}

	result := Result{
		Month:            from.Format("2006-01"),
		S3Key:            key,
		TransactionCount: len(txns),
		NetAmount:        net.StringFixed(2),
	}
	if err := a.store.AppendManifest(ctx, ManifestEntry{
		Month:            result.Month,
		S3Key:            key,
		TransactionCount: result.TransactionCount,
		NetAmount:        result.NetAmount,
		ArchivedAt:       a.now().UTC(),
	}); err != nil {
		a.logger.Warn("ledger archived but manifest update failed", "month", result.Month, "error", err)
	}

	a.logger.Info("ledger month archived", "month", result.Month, "key", key, "transactions", result.TransactionCount)
	return result, nil
}
