package main

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/wellness-booking/internal/config"
	"github.com/wolfman30/wellness-booking/internal/events"
	"github.com/wolfman30/wellness-booking/internal/notify"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

type memoryProcessed struct{ seen map[string]bool }

func (m *memoryProcessed) AlreadyProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	return m.seen[consumer+"/"+eventID], nil
}

func (m *memoryProcessed) MarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + "/" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func TestDeliveryHandlerEmailOnly(t *testing.T) {
	logger := logging.New("error")
	handler := deliveryHandler(&appconfig.Config{}, nil, notify.NewStubEmailSender(logger), &memoryProcessed{seen: map[string]bool{}}, logger)

	fan, ok := handler.(events.FanOut)
	require.True(t, ok)
	assert.Len(t, fan, 1)
}

func TestDeliveryHandlerAddsSQSWhenQueueConfigured(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{OutboxQueueURL: "http://localhost:4566/000000000000/wellness-outbox"}
	awsCfg := aws.Config{Region: "us-east-1"}

	handler := deliveryHandler(cfg, &awsCfg, notify.NewStubEmailSender(logger), &memoryProcessed{seen: map[string]bool{}}, logger)

	fan, ok := handler.(events.FanOut)
	require.True(t, ok)
	assert.Len(t, fan, 2)
}

func TestDeliveryHandlerSkipsSQSWithoutAWS(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{OutboxQueueURL: "http://localhost:4566/000000000000/wellness-outbox"}

	handler := deliveryHandler(cfg, nil, notify.NewStubEmailSender(logger), &memoryProcessed{seen: map[string]bool{}}, logger)

	fan := handler.(events.FanOut)
	assert.Len(t, fan, 1)
}
