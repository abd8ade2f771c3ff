package orders

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/db/dbtest"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

func TestRepositoryCreateWithoutSession(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := &models.Order{
		BeatID:        beat.ID,
		CustomerEmail: "  Buyer@Example.COM ",
		CustomerName:  "Buyer",
		LicenseType:   enums.LicenseTypeWAV,
		AmountCents:   beat.WAVPriceCents,
	}
	require.NoError(t, repo.Create(ctx, order))
	require.NotEqual(t, uuid.Nil, order.ID)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", stored.CustomerEmail)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.StripeSessionID)
	assert.False(t, stored.FilesDelivered)

	require.NoError(t, repo.AttachSession(ctx, order.ID, "cs_test_attach"))
	bySession, err := repo.FindBySessionID(ctx, "cs_test_attach")
	require.NoError(t, err)
	assert.Equal(t, order.ID, bySession.ID)

	err = repo.AttachSession(ctx, order.ID, "cs_test_other")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySessionIDUnique(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	existing := dbtest.SeedOrder(t, conn, beat, nil)
	repo := NewRepository(conn)

	dup := &models.Order{
		BeatID:          beat.ID,
		CustomerEmail:   "other@example.com",
		CustomerName:    "Other",
		LicenseType:     enums.LicenseTypeMP3,
		AmountCents:     beat.MP3PriceCents,
		StripeSessionID: existing.StripeSessionID,
	}
	assert.Error(t, repo.Create(context.Background(), dup))
}

func TestRepositoryClaimOnce(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	order := dbtest.SeedOrder(t, conn, beat, nil)
	repo := NewRepository(conn)
	ctx := context.Background()
	completedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	claimed, err := repo.Claim(ctx, order.ID, "pi_123", completedAt)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, order.ID, "pi_456", completedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	assert.True(t, stored.FilesDelivered)
	require.NotNil(t, stored.StripePaymentIntentID)
	assert.Equal(t, "pi_123", *stored.StripePaymentIntentID)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(completedAt))
}

func TestRepositoryConcurrentClaimHasOneWinner(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	order := dbtest.SeedOrder(t, conn, beat, nil)
	repo := NewRepository(conn)

	const callers = 8
	var winners int32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				claimed, err := repo.WithTx(tx).Claim(context.Background(), order.ID, "pi_race", time.Now())
				if claimed {
					atomic.AddInt32(&winners, 1)
				}
				return err
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), winners)
}

func TestRepositoryMarkFailedOnlyFromPending(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	pending := dbtest.SeedOrder(t, conn, beat, nil)
	completed := dbtest.SeedOrder(t, conn, beat, func(o *models.Order) {
		o.Status = enums.OrderStatusCompleted
		o.FilesDelivered = true
	})
	repo := NewRepository(conn)
	ctx := context.Background()

	failed, err := repo.MarkFailed(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, failed)

	failed, err = repo.MarkFailed(ctx, completed.ID)
	require.NoError(t, err)
	assert.False(t, failed)

	// a failed order can no longer be claimed
	claimed, err := repo.Claim(ctx, pending.ID, "pi_late", time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := repo.FindByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
}

func TestRepositoryListPendingBefore(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	now := time.Now().UTC()
	old := dbtest.SeedOrder(t, conn, beat, func(o *models.Order) { o.CreatedAt = now.Add(-72 * time.Hour) })
	dbtest.SeedOrder(t, conn, beat, func(o *models.Order) { o.CreatedAt = now.Add(-time.Hour) })
	dbtest.SeedOrder(t, conn, beat, func(o *models.Order) {
		o.CreatedAt = now.Add(-96 * time.Hour)
		o.Status = enums.OrderStatusCompleted
	})

	rows, err := NewRepository(conn).ListPendingBefore(context.Background(), now.Add(-48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)
}

func TestRepositoryRecordEmail(t *testing.T) {
	conn := dbtest.Open(t)
	beat := dbtest.SeedBeat(t, conn, nil)
	order := dbtest.SeedOrder(t, conn, beat, nil)
	repo := NewRepository(conn)
	ctx := context.Background()
	sentAt := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, repo.RecordEmail(ctx, order.ID, "msg-1", sentAt))
	require.NoError(t, repo.RecordLicenseURL(ctx, order.ID, "https://cdn.example.com/contracts/license.pdf"))

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EmailSentAt)
	assert.True(t, stored.EmailSentAt.Equal(sentAt))
	require.NotNil(t, stored.EmailMessageID)
	assert.Equal(t, "msg-1", *stored.EmailMessageID)
	require.NotNil(t, stored.LicensePDFURL)
}
