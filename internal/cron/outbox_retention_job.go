package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	retentionBatchSize     = 500
	// Caps one run so a large backlog is worked off over several cycles.
	retentionMaxBatches = 40
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedEventPurger
	// Retention is how long published events are kept for replay and
	// debugging. Unpublished rows are never purged.
	Retention time.Duration
}

// outboxRetentionJob deletes published outbox rows past retention, one short
// transaction per batch.
type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      publishedEventPurger
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		batchSize: retentionBatchSize,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for ; batches < retentionMaxBatches; batches++ {
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.batchSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("purge outbox before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += n
		if n < int64(j.batchSize) {
			batches++
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"batches":      batches,
	}), "cron.outbox_retention.complete")
	return nil
}
