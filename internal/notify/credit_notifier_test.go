package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/internal/events"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type memoryProcessed struct {
	seen map[string]bool
}

func (m *memoryProcessed) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	return m.seen[consumer+"/"+eventID], nil
}

func (m *memoryProcessed) MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key := consumer + "/" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func outboxEntry(t *testing.T, evt events.CanonicalEvent) events.OutboxEntry {
	t.Helper()
	env, err := events.NewEnvelope("user:u-1", "", evt)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return events.OutboxEntry{ID: env.EventID, Aggregate: env.Aggregate, Type: env.EventType, Payload: data}
}

func TestCreditNotifier_EarnedEmailOnce(t *testing.T) {
	sender := &recordingSender{}
	processed := &memoryProcessed{seen: map[string]bool{}}
	n := NewCreditNotifier(sender, processed, nil)
	expires := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entry := outboxEntry(t, events.CreditEarnedV1{
		CreditID:     "c-1",
		UserID:       "u-1",
		Category:     "cancellation",
		Amount:       "75000.00",
		BalanceAfter: "125000.00",
		ExpiresAt:    &expires,
		NotifyEmail:  "ana@example.com",
	})
	require.NoError(t, n.Handle(context.Background(), entry))
	require.NoError(t, n.Handle(context.Background(), entry))

	require.Len(t, sender.sent, 1, "redelivery must not email twice")
	msg := sender.sent[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "You received 75000.00 in credit", msg.Subject)
	assert.Contains(t, msg.Body, "125000.00")
	assert.Contains(t, msg.Body, "2026-03-01")
}

func TestCreditNotifier_UsedEmail(t *testing.T) {
	sender := &recordingSender{}
	n := NewCreditNotifier(sender, nil, nil)

	require.NoError(t, n.Handle(context.Background(), outboxEntry(t, events.CreditUsedV1{
		UserID:        "u-1",
		AppointmentID: "a-1",
		Amount:        "30000.00",
		BalanceAfter:  "20000.00",
		NotifyEmail:   "ana@example.com",
	})))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "20000.00")
}

func TestCreditNotifier_SkipsWithoutAddressOrOtherTypes(t *testing.T) {
	sender := &recordingSender{}
	n := NewCreditNotifier(sender, nil, nil)

	require.NoError(t, n.Handle(context.Background(), outboxEntry(t, events.CreditEarnedV1{UserID: "u-1", Amount: "10.00"})))
	require.NoError(t, n.Handle(context.Background(), outboxEntry(t, events.CreditExpiredV1{UserID: "u-1", Amount: "10.00"})))
	require.NoError(t, n.Handle(context.Background(), outboxEntry(t, events.AppointmentBookedV1{AppointmentID: "a-1"})))
	assert.Empty(t, sender.sent)
}

func TestCreditNotifier_SendFailureIsRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	processed := &memoryProcessed{seen: map[string]bool{}}
	n := NewCreditNotifier(sender, processed, nil)
	entry := outboxEntry(t, events.CreditUsedV1{UserID: "u-1", Amount: "1.00", NotifyEmail: "ana@example.com"})

	assert.Error(t, n.Handle(context.Background(), entry))
	assert.Empty(t, processed.seen, "failed send must not be marked processed")

	sender.err = nil
	require.NoError(t, n.Handle(context.Background(), entry))
	assert.Len(t, sender.sent, 1)
}

func TestCreditNotifier_BadPayload(t *testing.T) {
	n := NewCreditNotifier(&recordingSender{}, nil, nil)
	err := n.Handle(context.Background(), events.OutboxEntry{Type: events.TypeCreditEarned, Payload: []byte("{")})
	assert.Error(t, err)
}
