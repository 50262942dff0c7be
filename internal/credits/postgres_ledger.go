package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/events"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	uniqueViolation            = "23505"
	cancellationSourceUniqueIx = "credits_cancellation_source_uniq"

	creditColumns = `id, user_id, amount, category, description, expires_at, used, used_at,
		used_for_appointment_id, source_appointment_id, split_from_id, expired_at, created_at, updated_at`
	transactionColumns = `id, user_id, credit_id, kind, amount, balance_before, balance_after,
		description, appointment_id, created_by, created_at`
)

// PostgresLedger implements Ledger on PostgreSQL. Each mutation runs in one
// transaction holding a per-user advisory lock and writes its outbox event in
// that same transaction.
type PostgresLedger struct {
	db     DB
	logger *logging.Logger
}

func NewPostgresLedger(db DB, logger *logging.Logger) *PostgresLedger {
	if db == nil {
		panic("credits: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresLedger{db: db, logger: logger}
}

func (l *PostgresLedger) Grant(ctx context.Context, in GrantInput, now time.Time) (GrantResult, error) {
	if err := in.Validate(now); err != nil {
		return GrantResult{}, err
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return GrantResult{}, fmt.Errorf("credits: begin grant: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, in.UserID); err != nil {
		return GrantResult{}, err
	}
	before, err := expireUserTx(ctx, tx, in.UserID, now)
	if err != nil {
		return GrantResult{}, err
	}

	credit := Credit{
		ID:                  uuid.New(),
		UserID:              in.UserID,
		Amount:              in.Amount,
		Category:            in.Category,
		Description:         in.Description,
		ExpiresAt:           in.ExpiresAt,
		SourceAppointmentID: in.SourceAppointmentID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := insertCredit(ctx, tx, credit); err != nil {
		return GrantResult{}, err
	}
	txn := Transaction{
		ID:            uuid.New(),
		UserID:        in.UserID,
		CreditID:      &credit.ID,
		Kind:          in.Category.GrantKind(),
		Amount:        in.Amount,
		BalanceBefore: before,
		BalanceAfter:  before.Add(in.Amount),
		Description:   in.Description,
		AppointmentID: in.SourceAppointmentID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return GrantResult{}, err
	}

	evt := events.CreditEarnedV1{
		CreditID:     credit.ID.String(),
		UserID:       in.UserID,
		Category:     string(in.Category),
		Amount:       in.Amount.StringFixed(2),
		BalanceAfter: txn.BalanceAfter.StringFixed(2),
		ExpiresAt:    in.ExpiresAt,
		NotifyEmail:  in.NotifyEmail,
		OccurredAt:   now,
	}
	if in.SourceAppointmentID != nil {
		evt.AppointmentID = in.SourceAppointmentID.String()
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, events.UserAggregate(in.UserID), "", evt); err != nil {
		return GrantResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return GrantResult{}, fmt.Errorf("credits: commit grant: %w", err)
	}
	return GrantResult{Credit: credit, Transaction: txn}, nil
}

func (l *PostgresLedger) Use(ctx context.Context, in UseInput, now time.Time) (UseResult, error) {
	if err := in.Validate(); err != nil {
		return UseResult{}, err
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return UseResult{}, fmt.Errorf("credits: begin use: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := l.UseTx(ctx, tx, in, now)
	if err != nil {
		return UseResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return UseResult{}, fmt.Errorf("credits: commit use: %w", err)
	}
	return result, nil
}

// UseTx redeems credits inside a transaction owned by the caller, so a booking
// and the credits it spends commit together.
func (l *PostgresLedger) UseTx(ctx context.Context, tx pgx.Tx, in UseInput, now time.Time) (UseResult, error) {
	if err := in.Validate(); err != nil {
		return UseResult{}, err
	}
	if err := lockUser(ctx, tx, in.UserID); err != nil {
		return UseResult{}, err
	}
	before, err := expireUserTx(ctx, tx, in.UserID, now)
	if err != nil {
		return UseResult{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		WHERE user_id = $1 AND NOT used AND expired_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at, id
		FOR UPDATE`, in.UserID, now)
	if err != nil {
		return UseResult{}, fmt.Errorf("credits: select available: %w", err)
	}
	available, err := scanCredits(rows)
	if err != nil {
		return UseResult{}, err
	}

	plan, ok := planConsumption(available, in.Amount)
	if !ok {
		return UseResult{}, &InsufficientCreditError{Requested: in.Amount, Available: sumAmounts(available)}
	}

	var result UseResult
	for _, c := range plan.consumed {
		result.Consumed = append(result.Consumed, c.ID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE credits
		SET used = true, used_at = $2, used_for_appointment_id = $3, updated_at = $2
		WHERE id = ANY($1) AND NOT used`, result.Consumed, now, in.AppointmentID); err != nil {
		return UseResult{}, fmt.Errorf("credits: mark used: %w", err)
	}
	if plan.splitFrom != nil {
		rem := remainderOf(*plan.splitFrom, plan.excess, now)
		if err := insertCredit(ctx, tx, rem); err != nil {
			return UseResult{}, err
		}
		result.Remainder = &rem
	}

	apptID := in.AppointmentID
	txn := Transaction{
		ID:            uuid.New(),
		UserID:        in.UserID,
		Kind:          KindUsed,
		Amount:        in.Amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  before.Sub(in.Amount),
		AppointmentID: &apptID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
	}
	if len(result.Consumed) == 1 {
		txn.CreditID = &result.Consumed[0]
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return UseResult{}, err
	}
	result.Transaction = txn

	evt := events.CreditUsedV1{
		UserID:        in.UserID,
		AppointmentID: in.AppointmentID.String(),
		Amount:        in.Amount.StringFixed(2),
		BalanceAfter:  txn.BalanceAfter.StringFixed(2),
		NotifyEmail:   in.NotifyEmail,
		OccurredAt:    now,
	}
	for _, id := range result.Consumed {
		evt.CreditIDs = append(evt.CreditIDs, id.String())
	}
	if result.Remainder != nil {
		evt.RemainderID = result.Remainder.ID.String()
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, events.UserAggregate(in.UserID), "", evt); err != nil {
		return UseResult{}, err
	}
	return result, nil
}

// ExpireDue expires due credits user by user, each in its own transaction.
// Failures for one user do not stop the sweep; they are joined into the error.
func (l *PostgresLedger) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	rows, err := l.db.Query(ctx, `
		SELECT DISTINCT user_id
		FROM credits
		WHERE NOT used AND expired_at IS NULL AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("credits: list users with due credits: %w", err)
	}
	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("credits: scan user id: %w", err)
		}
		users = append(users, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("credits: list users with due credits: %w", err)
	}

	total := 0
	var errs []error
	for _, userID := range users {
		n, err := l.expireUser(ctx, userID, now)
		if err != nil {
			l.logger.Error("credit expiry failed", "user_id", userID, "error", err)
			errs = append(errs, err)
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

func (l *PostgresLedger) expireUser(ctx context.Context, userID string, now time.Time) (int, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("credits: begin expiry: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, userID); err != nil {
		return 0, err
	}
	n, err := expireUserCount(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("credits: commit expiry: %w", err)
	}
	return n, nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credits
		WHERE user_id = $1 AND NOT used AND expired_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)`, userID, now).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credits: balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) ListCredits(ctx context.Context, userID string) ([]Credit, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		WHERE user_id = $1
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("credits: list credits: %w", err)
	}
	return scanCredits(rows)
}

func (l *PostgresLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("credits: list transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (l *PostgresLedger) TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("credits: transactions between: %w", err)
	}
	return scanTransactions(rows)
}

// lockUser serializes ledger writes for one user until the transaction ends.
func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return fmt.Errorf("credits: lock user ledger: %w", err)
	}
	return nil
}

// expireUserTx expires the user's due credits and returns the available balance afterwards.
func expireUserTx(ctx context.Context, tx pgx.Tx, userID string, now time.Time) (decimal.Decimal, error) {
	balance, _, err := expireUserLocked(ctx, tx, userID, now)
	return balance, err
}

func expireUserCount(ctx context.Context, tx pgx.Tx, userID string, now time.Time) (int, error) {
	_, n, err := expireUserLocked(ctx, tx, userID, now)
	return n, err
}

// expireUserLocked requires the user's advisory lock. Outstanding credits that
// are past due still count in the opening balance, matching the transaction
// chain written so far.
func expireUserLocked(ctx context.Context, tx pgx.Tx, userID string, now time.Time) (decimal.Decimal, int, error) {
	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credits
		WHERE user_id = $1 AND NOT used AND expired_at IS NULL`, userID).Scan(&balance); err != nil {
		return decimal.Zero, 0, fmt.Errorf("credits: outstanding balance: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, amount
		FROM credits
		WHERE user_id = $1 AND NOT used AND expired_at IS NULL
		  AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at, id
		FOR UPDATE`, userID, now)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("credits: select due credits: %w", err)
	}
	type dueCredit struct {
		id     uuid.UUID
		amount decimal.Decimal
	}
	var due []dueCredit
	for rows.Next() {
		var d dueCredit
		if err := rows.Scan(&d.id, &d.amount); err != nil {
			rows.Close()
			return decimal.Zero, 0, fmt.Errorf("credits: scan due credit: %w", err)
		}
		due = append(due, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return decimal.Zero, 0, fmt.Errorf("credits: select due credits: %w", err)
	}

	for _, d := range due {
		if _, err := tx.Exec(ctx, `
			UPDATE credits
			SET expired_at = $2, updated_at = $2
			WHERE id = $1 AND expired_at IS NULL`, d.id, now); err != nil {
			return decimal.Zero, 0, fmt.Errorf("credits: mark expired: %w", err)
		}
		creditID := d.id
		txn := Transaction{
			ID:            uuid.New(),
			UserID:        userID,
			CreditID:      &creditID,
			Kind:          KindExpired,
			Amount:        d.amount.Neg(),
			BalanceBefore: balance,
			BalanceAfter:  balance.Sub(d.amount),
			CreatedBy:     identity.System.ID,
			CreatedAt:     now,
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return decimal.Zero, 0, err
		}
		if _, err := events.AppendCanonicalEvent(ctx, tx, events.UserAggregate(userID), "", events.CreditExpiredV1{
			CreditID:     creditID.String(),
			UserID:       userID,
			Amount:       d.amount.StringFixed(2),
			BalanceAfter: txn.BalanceAfter.StringFixed(2),
			ExpiredAt:    now,
		}); err != nil {
			return decimal.Zero, 0, err
		}
		balance = txn.BalanceAfter
	}
	return balance, len(due), nil
}

func insertCredit(ctx context.Context, tx pgx.Tx, c Credit) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credits (id, user_id, amount, category, description, expires_at,
			source_appointment_id, split_from_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.UserID, c.Amount, string(c.Category), c.Description, c.ExpiresAt,
		c.SourceAppointmentID, c.SplitFromID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateCancellation(err) {
			return ErrDuplicateCancellationCredit
		}
		return fmt.Errorf("credits: insert credit: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_transactions (id, user_id, credit_id, kind, amount, balance_before,
			balance_after, description, appointment_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.CreditID, string(t.Kind), t.Amount, t.BalanceBefore,
		t.BalanceAfter, t.Description, t.AppointmentID, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("credits: insert transaction: %w", err)
	}
	return nil
}

func isDuplicateCancellation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == cancellationSourceUniqueIx
}

func scanCredits(rows pgx.Rows) ([]Credit, error) {
	defer rows.Close()
	var out []Credit
	for rows.Next() {
		var c Credit
		var category string
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Amount, &category, &c.Description, &c.ExpiresAt, &c.Used, &c.UsedAt,
			&c.UsedForAppointmentID, &c.SourceAppointmentID, &c.SplitFromID, &c.ExpiredAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("credits: scan credit: %w", err)
		}
		c.Category = Category(category)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credits: iterate credits: %w", err)
	}
	return out, nil
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.CreditID, &kind, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.Description, &t.AppointmentID, &t.CreatedBy, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("credits: scan transaction: %w", err)
		}
		t.Kind = TransactionKind(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credits: iterate transactions: %w", err)
	}
	return out, nil
}
