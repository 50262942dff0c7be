package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CanonicalEvent is a versioned appointment or credit event. EventType returns
// the dotted name with its version suffix, e.g. "credit.used.v1".
type CanonicalEvent interface {
	EventType() string
}

// Aggregate prefixes. Credit events are keyed by the ledger owner, appointment
// events by the appointment, so consumers see each stream in order.
const (
	AggregateUser        = "user"
	AggregateAppointment = "appointment"
)

// UserAggregate names the credit ledger stream of a user.
func UserAggregate(userID string) string {
	return AggregateUser + ":" + strings.TrimSpace(userID)
}

// AppointmentAggregate names the event stream of one appointment.
func AppointmentAggregate(id uuid.UUID) string {
	return AggregateAppointment + ":" + id.String()
}

// SplitAggregate returns the kind and id of an aggregate name.
func SplitAggregate(aggregate string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(aggregate), ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("%w: %q", errBadAggregate, aggregate)
	}
	switch kind {
	case AggregateUser, AggregateAppointment:
		return kind, id, nil
	default:
		return "", "", fmt.Errorf("%w: %q", errBadAggregate, aggregate)
	}
}

// Envelope is the outbox row payload and the SQS message body.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")
	errBadAggregate     = errors.New("events: aggregate must be user:<id> or appointment:<id>")
	nowFunc             = time.Now
)

// NewEnvelope wraps evt for a user or appointment aggregate.
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if _, _, err := SplitAggregate(aggregate); err != nil {
		return Envelope{}, err
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal canonical payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		Aggregate:       strings.TrimSpace(aggregate),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		CorrelationID:   strings.TrimSpace(correlationID),
		Payload:         append([]byte(nil), payload...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Execer is satisfied by pgx pools and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AppendCanonicalEvent writes evt to the outbox through exec. Ledger and booking
// writes pass their open pgx.Tx so the event commits with the change.
func AppendCanonicalEvent(ctx context.Context, exec Execer, aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, fmt.Errorf("events: exec required")
	}
	env, err := NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, data); err != nil {
		return Envelope{}, fmt.Errorf("events: append canonical event: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("events: empty payload for %s", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", e.EventType, err)
	}
	return nil
}
