package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

type fakeSendGrid struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "care@example.com"}, nil), "no API key")

	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "care@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Wellness Booking", sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "care@example.com", FromName: "Spa Norte"}, nil)
	assert.Equal(t, "Spa Norte", sender.fromName)
}

func TestSendGridSender_Send(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: client, fromEmail: "care@example.com", fromName: "Wellness Booking", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "Credit", Body: "hello"})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "Credit", client.sent[0].Subject)
	assert.Equal(t, "care@example.com", client.sent[0].From.Address)
	require.Len(t, client.sent[0].Content, 2, "plain text and html parts")

	client.status = 401
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}))

	client.err = errors.New("dial tcp: timeout")
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}), client.err)
}

func TestSendGridSender_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}))
}

func TestStubEmailSender_Send(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "hi"}))
}
