package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/wellness-booking/internal/events"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// CreditEmailConsumer is the processed_events consumer name for credit emails.
const CreditEmailConsumer = "credit-email"

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// CreditNotifier emails users when they earn or spend credits. It is an
// outbox delivery handler; events without an address are skipped.
type CreditNotifier struct {
	sender    EmailSender
	processed processedTracker
	logger    *logging.Logger
}

// NewCreditNotifier builds the handler. processed may be nil, in which case a
// redelivered event is emailed again.
func NewCreditNotifier(sender EmailSender, processed processedTracker, logger *logging.Logger) *CreditNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CreditNotifier{sender: sender, processed: processed, logger: logger}
}

func (n *CreditNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeCreditEarned && entry.Type != events.TypeCreditUsed {
		return nil
	}
	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	msg, ok, err := creditMessage(env)
	if err != nil || !ok {
		return err
	}

	eventID := env.EventID.String()
	if n.processed != nil {
		done, err := n.processed.AlreadyProcessed(ctx, CreditEmailConsumer, eventID)
		if err != nil {
			return err
		}
		if done {
			n.logger.Debug("credit email already sent", "event_id", eventID)
			return nil
		}
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error("credit email failed", "event_id", eventID, "event_type", env.EventType, "error", err)
		return err
	}
	if n.processed != nil {
		if _, err := n.processed.MarkProcessed(ctx, CreditEmailConsumer, eventID); err != nil {
			return err
		}
	}
	return nil
}

func creditMessage(env events.Envelope) (EmailMessage, bool, error) {
	switch env.EventType {
	case events.TypeCreditEarned:
		var evt events.CreditEarnedV1
		if err := env.DecodePayload(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		if evt.NotifyEmail == "" {
			return EmailMessage{}, false, nil
		}
		var body strings.Builder
		fmt.Fprintf(&body, "A credit of %s (%s) was added to your account.\n", evt.Amount, categoryLabel(evt.Category))
		fmt.Fprintf(&body, "Your credit balance is now %s.\n", evt.BalanceAfter)
		if evt.ExpiresAt != nil {
			fmt.Fprintf(&body, "This credit expires on %s.\n", evt.ExpiresAt.Format("2006-01-02"))
		}
		return EmailMessage{
			To:      evt.NotifyEmail,
			Subject: fmt.Sprintf("You received %s in credit", evt.Amount),
			Body:    body.String(),
		}, true, nil
	case events.TypeCreditUsed:
		var evt events.CreditUsedV1
		if err := env.DecodePayload(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		if evt.NotifyEmail == "" {
			return EmailMessage{}, false, nil
		}
		return EmailMessage{
			To:      evt.NotifyEmail,
			Subject: fmt.Sprintf("%s in credit applied to your appointment", evt.Amount),
			Body: fmt.Sprintf("We applied %s of your credit to appointment %s.\nYour remaining balance is %s.\n",
				evt.Amount, evt.AppointmentID, evt.BalanceAfter),
		}, true, nil
	}
	return EmailMessage{}, false, nil
}

func categoryLabel(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}
