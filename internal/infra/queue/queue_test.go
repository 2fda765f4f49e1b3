package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// MockPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

// fakeAcknowledger records the ack decision for one delivery.
type fakeAcknowledger struct {
	acked, nacked, requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error { a.acked = true; return nil }
func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error { a.nacked = true; return nil }

func lead() entity.Lead {
	return entity.Lead{
		ID: "lead-1", FullName: "Maria Clara", Phone: "+63 917 555 0101",
		Email: "maria@example.com", PreferredClass: "Muay Thai",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStaffPublisherPublishesPersistentJSON(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishWithContext", mock.Anything, ExchangeName, RoutingKey, false, false, mock.MatchedBy(func(msg amqp.Publishing) bool {
		var n StaffNotification
		return msg.DeliveryMode == amqp.Persistent &&
			msg.ContentType == "application/json" &&
			msg.MessageId == "lead-1" &&
			json.Unmarshal(msg.Body, &n) == nil &&
			n.FullName == "Maria Clara"
	})).Return(nil)

	res := NewStaffPublisher(pub).Send(context.Background(), lead())

	assert.True(t, res.Success)
	pub.AssertExpectations(t)
}

func TestStaffPublisherReportsBrokerError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(amqp.ErrClosed)

	res := NewStaffPublisher(pub).Send(context.Background(), lead())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rabbitmq publish")
}

func TestWorkerAcksHandledMessage(t *testing.T) {
	body, err := json.Marshal(NotificationFromLead(lead()))
	require.NoError(t, err)
	ack := &fakeAcknowledger{}

	var got StaffNotification
	w := NewWorker(nil, func(ctx context.Context, n StaffNotification) error {
		got = n
		return nil
	})
	w.process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})

	assert.True(t, ack.acked)
	assert.Equal(t, lead(), got.Lead())
}

func TestWorkerRejectsToDLQ(t *testing.T) {
	cases := map[string]struct {
		body   []byte
		handle HandlerFunc
	}{
		"malformed": {
			body:   []byte("{not json"),
			handle: func(context.Context, StaffNotification) error { return nil },
		},
		"handler error": {
			body:   []byte(`{"lead_id":"lead-1"}`),
			handle: func(context.Context, StaffNotification) error { return errors.New("telegram: 429") },
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			NewWorker(nil, tc.handle).process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tc.body})

			assert.True(t, ack.nacked)
			assert.False(t, ack.requeued)
			assert.False(t, ack.acked)
		})
	}
}
