package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExec struct {
	sql  string
	args []any
}

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func (s *stubExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = sql
	s.args = args
	return pgconn.CommandTag{}, nil
}

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("user:123", "corr-1", CreditEarnedV1{
		CreditID:     "c-1",
		UserID:       "user-123",
		Category:     "cancellation",
		Amount:       "75000.00",
		BalanceAfter: "75000.00",
		OccurredAt:   fixedNow,
	}, WithEventID(id))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if env.EventType != "credit.earned.v1" {
		t.Fatalf("unexpected type: %s", env.EventType)
	}
	if env.Aggregate != "user:123" {
		t.Fatalf("unexpected aggregate: %s", env.Aggregate)
	}

	var decoded CreditEarnedV1
	if err := env.DecodePayload(&decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Amount != "75000.00" || decoded.CreditID != "c-1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	if _, err := NewEnvelope(" ", "", CreditExpiredV1{}); err == nil {
		t.Fatal("expected missing aggregate error")
	}
	if _, err := NewEnvelope("user:1", "", nil); err == nil {
		t.Fatal("expected nil event error")
	}
	if _, err := NewEnvelope("user:1", "", badEvent{}); err == nil {
		t.Fatal("expected empty event type error")
	}
}

func TestAppendCanonicalEvent(t *testing.T) {
	exec := &stubExec{}
	env, err := AppendCanonicalEvent(context.Background(), exec, "appointment:a-1", "", AppointmentCancelledV1{
		AppointmentID: "a-1",
		UserID:        "u-1",
		CancelledBy:   "u-1",
		CancelledAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(exec.args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(exec.args))
	}
	if exec.args[0] != env.EventID {
		t.Fatalf("expected event id arg, got %v", exec.args[0])
	}
	if exec.args[2] != TypeAppointmentCancelled {
		t.Fatalf("expected event type arg, got %v", exec.args[2])
	}
	var stored Envelope
	if err := json.Unmarshal(exec.args[3].([]byte), &stored); err != nil {
		t.Fatalf("stored payload is not an envelope: %v", err)
	}
	if stored.EventID != env.EventID {
		t.Fatalf("stored envelope id mismatch")
	}

	if _, err := AppendCanonicalEvent(context.Background(), nil, "a", "", AppointmentCancelledV1{}); err == nil {
		t.Fatal("expected nil exec error")
	}
}

func TestAggregateNames(t *testing.T) {
	id := uuid.MustParse("5b0f2f0e-6d6a-4a4b-9b7e-0a6f3f1c2d11")
	if got := AppointmentAggregate(id); got != "appointment:"+id.String() {
		t.Fatalf("unexpected appointment aggregate %q", got)
	}
	kind, userID, err := SplitAggregate(UserAggregate(" u-9 "))
	if err != nil || kind != AggregateUser || userID != "u-9" {
		t.Fatalf("unexpected split: %q %q %v", kind, userID, err)
	}
	for _, bad := range []string{"u-9", "clinic:1", "user:"} {
		if _, _, err := SplitAggregate(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if _, err := NewEnvelope("booking-42", "", CreditExpiredV1{}); err == nil {
		t.Fatal("expected unknown aggregate to be rejected")
	}
}
