package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chryzcode/ycsyh-site/internal/analytics/router"
	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
)

type recordingHandler struct {
	err  error
	seen []types.Envelope
}

func (h *recordingHandler) Handle(_ context.Context, env types.Envelope) error {
	h.seen = append(h.seen, env)
	return h.err
}

// memDedupe marks event ids in a map. failCheck makes every check error.
type memDedupe struct {
	marked    map[uuid.UUID]bool
	failCheck error
	checks    int
	unmarked  int
}

func newMemDedupe() *memDedupe { return &memDedupe{marked: map[uuid.UUID]bool{}} }

func (d *memDedupe) CheckAndMarkProcessed(_ context.Context, consumer string, id uuid.UUID) (bool, error) {
	d.checks++
	if d.failCheck != nil {
		return false, d.failCheck
	}
	if consumer != salesConsumerName {
		return false, errors.New("unexpected consumer " + consumer)
	}
	if d.marked[id] {
		return true, nil
	}
	d.marked[id] = true
	return false, nil
}

func (d *memDedupe) Delete(_ context.Context, _ string, id uuid.UUID) error {
	d.unmarked++
	delete(d.marked, id)
	return nil
}

// sliceSource delivers its messages in order and returns.
type sliceSource []*gcppubsub.Message

func (s sliceSource) Receive(ctx context.Context, fn func(context.Context, *gcppubsub.Message)) error {
	for _, msg := range s {
		fn(ctx, msg)
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "analytics-worker-test"})
}

func orderMessage(t *testing.T, eventID string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"9d6f7d57-0d6b-4d3b-9a59-3f1d1c7f2b10"}`),
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-" + eventID,
		Data: data,
		Attributes: map[string]string{
			"event_type":     "order_created",
			"aggregate_type": "order",
			"aggregate_id":   "9d6f7d57-0d6b-4d3b-9a59-3f1d1c7f2b10",
		},
	}
}

func TestProcess(t *testing.T) {
	cases := []struct {
		name       string
		msg        func(t *testing.T) *gcppubsub.Message
		handlerErr error
		checkErr   error
		want       verdict
		handled    int
		checks     int
		unmarked   int
	}{
		{
			name:    "new event is recorded",
			msg:     func(t *testing.T) *gcppubsub.Message { return orderMessage(t, uuid.NewString()) },
			want:    ack,
			handled: 1,
			checks:  1,
		},
		{
			name: "malformed body is dropped",
			msg:  func(*testing.T) *gcppubsub.Message { return &gcppubsub.Message{Data: []byte("invalid json")} },
			want: ack,
		},
		{
			name: "non uuid event id is dropped",
			msg:  func(t *testing.T) *gcppubsub.Message { return orderMessage(t, "evt-1") },
			want: ack,
		},
		{
			name:       "unsupported event is acked and stays marked",
			msg:        func(t *testing.T) *gcppubsub.Message { return orderMessage(t, uuid.NewString()) },
			handlerErr: router.ErrUnsupportedEventType,
			want:       ack,
			handled:    1,
			checks:     1,
		},
		{
			name:       "handler failure unmarks and redelivers",
			msg:        func(t *testing.T) *gcppubsub.Message { return orderMessage(t, uuid.NewString()) },
			handlerErr: errors.New("bigquery unavailable"),
			want:       nack,
			handled:    1,
			checks:     1,
			unmarked:   1,
		},
		{
			name:     "dedupe outage redelivers without handling",
			msg:      func(t *testing.T) *gcppubsub.Message { return orderMessage(t, uuid.NewString()) },
			checkErr: errors.New("redis down"),
			want:     nack,
			checks:   1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &recordingHandler{err: tc.handlerErr}
			dd := newMemDedupe()
			dd.failCheck = tc.checkErr
			svc, err := newService(sliceSource{}, handler, dd, testLogger())
			require.NoError(t, err)

			assert.Equal(t, tc.want, svc.process(context.Background(), tc.msg(t)))
			assert.Len(t, handler.seen, tc.handled)
			assert.Equal(t, tc.checks, dd.checks)
			assert.Equal(t, tc.unmarked, dd.unmarked)
		})
	}
}

func TestProcessSkipsRedeliveredEvent(t *testing.T) {
	handler := &recordingHandler{}
	svc, err := newService(sliceSource{}, handler, newMemDedupe(), testLogger())
	require.NoError(t, err)

	msg := orderMessage(t, uuid.NewString())
	assert.Equal(t, ack, svc.process(context.Background(), msg))
	assert.Equal(t, ack, svc.process(context.Background(), msg))
	assert.Len(t, handler.seen, 1)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, &recordingHandler{}, newMemDedupe(), testLogger())
	assert.Error(t, err)
	_, err = newService(sliceSource{}, nil, newMemDedupe(), testLogger())
	assert.Error(t, err)
	_, err = newService(sliceSource{}, &recordingHandler{}, nil, testLogger())
	assert.Error(t, err)
	_, err = newService(sliceSource{}, &recordingHandler{}, newMemDedupe(), nil)
	assert.Error(t, err)
}

func TestRunAcksEveryMessage(t *testing.T) {
	handler := &recordingHandler{}
	src := sliceSource{
		orderMessage(t, uuid.NewString()),
		{ID: "bad", Data: []byte("{")},
		orderMessage(t, uuid.NewString()),
	}
	svc, err := newService(src, handler, newMemDedupe(), testLogger())
	require.NoError(t, err)

	require.NoError(t, svc.Run(context.Background()))
	assert.Len(t, handler.seen, 2)
}
