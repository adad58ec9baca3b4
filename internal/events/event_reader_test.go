package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"searchsync/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Close() error { return nil }

func (m *MockBus) Subscribe(subject, group string, handler events.Handler) (events.Subscription, error) {
	args := m.Called(subject, group, handler)
	return args.Get(0).(events.Subscription), args.Error(1)
}

func TestSubscribe_Wiring_CorrectSubjectAndQueue(t *testing.T) {
	// SCENARIO: Verify the Reader connects to the configured subject and
	// the shared queue group.

	mockBus := new(MockBus)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	config := &events.EventConfig{ReindexItem: "item.reindex"}

	reader := events.NewEventReader(mockBus, config, logger)

	mockBus.On("Subscribe", "item.reindex", "searchsync", mock.Anything).
		Return(events.Subscription{}, nil)

	_, err := reader.SubscribeToReindexEvents(func(ctx context.Context, e events.ReindexItemEvent) error { return nil })

	assert.NoError(t, err)
	mockBus.AssertExpectations(t)
}

func TestSubscribe_PoisonPill_AcksBadJSON(t *testing.T) {
	// SCENARIO: NATS delivers malformed JSON.
	// EXPECT: The handler returns nil (Ack) to discard the message and the
	// service logic is never called.

	mockBus := new(MockBus)
	reader := events.NewEventReader(mockBus, &events.EventConfig{ReindexItem: "subj"}, slog.Default())

	var natsHandler events.Handler
	mockBus.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			natsHandler = args.Get(2).(events.Handler)
		}).
		Return(events.Subscription{}, nil)

	serviceCalled := false
	_, _ = reader.SubscribeToReindexEvents(func(ctx context.Context, e events.ReindexItemEvent) error {
		serviceCalled = true
		return nil
	})

	err := natsHandler(context.Background(), []byte(`{ NOT VALID JSON`))

	assert.NoError(t, err, "Handler MUST return nil (Ack) for bad JSON")
	assert.False(t, serviceCalled, "Service logic must NOT be called for bad JSON")
}

func TestSubscribe_HappyPath_ParsesAndForwards(t *testing.T) {
	// SCENARIO: Valid JSON arrives.
	// EXPECT: JSON is parsed into the event struct and forwarded.

	mockBus := new(MockBus)
	reader := events.NewEventReader(mockBus, &events.EventConfig{ReindexItem: "subj"}, slog.Default())

	var natsHandler events.Handler
	mockBus.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			natsHandler = args.Get(2).(events.Handler)
		}).
		Return(events.Subscription{}, nil)

	var captured events.ReindexItemEvent
	_, _ = reader.SubscribeToReindexEvents(func(ctx context.Context, e events.ReindexItemEvent) error {
		captured = e
		return nil
	})

	validJSON := []byte(`{"type_name": "Article", "id": "550e8400-e29b-41d4-a716-446655440000"}`)
	err := natsHandler(context.Background(), validJSON)

	assert.NoError(t, err)
	assert.Equal(t, "Article", captured.TypeName)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", captured.ID)
}

func TestSubscribe_LogicFailure_Nacks(t *testing.T) {
	// SCENARIO: The downstream logic fails (e.g. DB down).
	// EXPECT: Handler returns the error (Nack) so NATS retries.

	mockBus := new(MockBus)
	reader := events.NewEventReader(mockBus, &events.EventConfig{DeindexItem: "subj"}, slog.Default())

	var natsHandler events.Handler
	mockBus.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			natsHandler = args.Get(2).(events.Handler)
		}).
		Return(events.Subscription{}, nil)

	_, _ = reader.SubscribeToDeindexEvents(func(ctx context.Context, e events.DeindexItemEvent) error {
		return errors.New("db connection lost")
	})

	err := natsHandler(context.Background(), []byte(`{"type_name":"Article","id":"123"}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db connection lost")
}
