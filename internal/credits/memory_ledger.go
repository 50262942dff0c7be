package credits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/identity"
)

// MemoryLedger is an in-process Ledger with the same semantics as
// PostgresLedger. It backs tests and USE_MEMORY_STORE dev mode; it does not
// write outbox events.
type MemoryLedger struct {
	mu           sync.Mutex
	credits      map[string][]*Credit
	transactions map[string][]Transaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		credits:      make(map[string][]*Credit),
		transactions: make(map[string][]Transaction),
	}
}

func (m *MemoryLedger) Grant(ctx context.Context, in GrantInput, now time.Time) (GrantResult, error) {
	if err := in.Validate(now); err != nil {
		return GrantResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Mirrors credits_cancellation_source_uniq: split remainders do not count.
	if in.Category == CategoryCancellation {
		for _, c := range m.credits[in.UserID] {
			if c.Category == CategoryCancellation && c.SplitFromID == nil &&
				c.SourceAppointmentID != nil && *c.SourceAppointmentID == *in.SourceAppointmentID {
				return GrantResult{}, ErrDuplicateCancellationCredit
			}
		}
	}

	before := m.expireUserLocked(in.UserID, now)
	credit := &Credit{
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
	m.credits[in.UserID] = append(m.credits[in.UserID], credit)
	txn := m.recordLocked(Transaction{
		UserID:        in.UserID,
		CreditID:      &credit.ID,
		Kind:          in.Category.GrantKind(),
		Amount:        in.Amount,
		BalanceBefore: before,
		Description:   in.Description,
		AppointmentID: in.SourceAppointmentID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
	})
	return GrantResult{Credit: *credit, Transaction: txn}, nil
}

func (m *MemoryLedger) Use(ctx context.Context, in UseInput, now time.Time) (UseResult, error) {
	if err := in.Validate(); err != nil {
		return UseResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.expireUserLocked(in.UserID, now)
	var available []Credit
	for _, c := range m.credits[in.UserID] {
		if c.Available(now) {
			available = append(available, *c)
		}
	}
	sortOldestFirst(available)

	plan, ok := planConsumption(available, in.Amount)
	if !ok {
		return UseResult{}, &InsufficientCreditError{Requested: in.Amount, Available: sumAmounts(available)}
	}

	var result UseResult
	apptID := in.AppointmentID
	for _, c := range plan.consumed {
		stored := m.findLocked(in.UserID, c.ID)
		usedAt := now
		stored.Used = true
		stored.UsedAt = &usedAt
		stored.UsedForAppointmentID = &apptID
		stored.UpdatedAt = now
		result.Consumed = append(result.Consumed, c.ID)
	}
	if plan.splitFrom != nil {
		rem := remainderOf(*plan.splitFrom, plan.excess, now)
		m.credits[in.UserID] = append(m.credits[in.UserID], &rem)
		remainder := rem
		result.Remainder = &remainder
	}
	txn := Transaction{
		UserID:        in.UserID,
		Kind:          KindUsed,
		Amount:        in.Amount.Neg(),
		BalanceBefore: before,
		AppointmentID: &apptID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
	}
	if len(result.Consumed) == 1 {
		txn.CreditID = &result.Consumed[0]
	}
	result.Transaction = m.recordLocked(txn)
	return result, nil
}

func (m *MemoryLedger) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for userID := range m.credits {
		before := len(m.transactions[userID])
		m.expireUserLocked(userID, now)
		count += len(m.transactions[userID]) - before
	}
	return count, nil
}

func (m *MemoryLedger) Balance(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return AvailableBalance(m.snapshotLocked(userID), now), nil
}

func (m *MemoryLedger) ListCredits(ctx context.Context, userID string) ([]Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snapshotLocked(userID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = normalizeLimit(limit)
	txns := m.transactions[userID]
	out := make([]Transaction, 0, min(limit, len(txns)))
	for i := len(txns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, txns[i])
	}
	return out, nil
}

func (m *MemoryLedger) TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, txns := range m.transactions {
		for _, t := range txns {
			if !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
				out = append(out, t)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// expireUserLocked marks the user's due credits expired, records one expired
// transaction per credit and returns the resulting available balance.
func (m *MemoryLedger) expireUserLocked(userID string, now time.Time) decimal.Decimal {
	balance := decimal.Zero
	var due []*Credit
	for _, c := range m.credits[userID] {
		if c.Used || c.ExpiredAt != nil {
			continue
		}
		balance = balance.Add(c.Amount)
		if c.dueForExpiry(now) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	for _, c := range due {
		expiredAt := now
		c.ExpiredAt = &expiredAt
		c.UpdatedAt = now
		txn := m.recordLocked(Transaction{
			UserID:        userID,
			CreditID:      &c.ID,
			Kind:          KindExpired,
			Amount:        c.Amount.Neg(),
			BalanceBefore: balance,
			CreatedBy:     identity.System.ID,
			CreatedAt:     now,
		})
		balance = txn.BalanceAfter
	}
	return balance
}

func (m *MemoryLedger) recordLocked(t Transaction) Transaction {
	t.ID = uuid.New()
	t.BalanceAfter = t.BalanceBefore.Add(t.Amount)
	m.transactions[t.UserID] = append(m.transactions[t.UserID], t)
	return t
}

func (m *MemoryLedger) findLocked(userID string, id uuid.UUID) *Credit {
	for _, c := range m.credits[userID] {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *MemoryLedger) snapshotLocked(userID string) []Credit {
	out := make([]Credit, 0, len(m.credits[userID]))
	for _, c := range m.credits[userID] {
		out = append(out, *c)
	}
	return out
}
