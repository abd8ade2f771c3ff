package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/db/dbtest"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	orderID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Kind: ActorCustomer},
			Data:          map[string]any{"order_id": orderID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderCreated, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.True(t, envelope.OccurredAt.Equal(fixed))
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorCustomer, envelope.Actor.Kind)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"reason": "checkout_expired"},
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	assert.Error(t, svc.Emit(ctx, nil, DomainEvent{}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: "nope", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: "beat", AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder}))
}

func TestEmitReportsEveryInvalidField(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope", AggregateType: "beat"})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}

func TestEmitKeepsCallerVersionAndTime(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	at := time.Date(2026, 2, 14, 9, 30, 0, 0, time.FixedZone("BST", 3600))

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderFulfilled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]bool{"beat_sold": true},
		Version:       1,
		OccurredAt:    at,
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.True(t, env.OccurredAt.Equal(at))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.Nil(t, env.Actor)
}
