// Package dbtest opens throwaway sqlite databases carrying the same tables as
// the Postgres migrations, for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

const schema = `
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  is_admin INTEGER NOT NULL DEFAULT 0,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE beats (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  producer TEXT NOT NULL DEFAULT 'Heard Music',
  category TEXT NOT NULL,
  bpm INTEGER NOT NULL CHECK (bpm BETWEEN 60 AND 200),
  musical_key TEXT NOT NULL,
  mp3_price_cents INTEGER NOT NULL DEFAULT 4500,
  wav_price_cents INTEGER NOT NULL DEFAULT 6000,
  trackout_price_cents INTEGER NOT NULL DEFAULT 30000,
  exclusive_price_cents INTEGER,
  description TEXT,
  image_url TEXT,
  preview_url TEXT,
  mp3_url TEXT NOT NULL,
  wav_url TEXT,
  trackouts_url TEXT,
  is_sold INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  beat_id TEXT NOT NULL REFERENCES beats(id) ON DELETE RESTRICT,
  customer_email TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  license_type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
  stripe_session_id TEXT,
  stripe_payment_intent_id TEXT,
  license_pdf_url TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  files_delivered INTEGER NOT NULL DEFAULT 0,
  completed_at DATETIME,
  email_sent_at DATETIME,
  email_message_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (NOT files_delivered OR status = 'completed')
);
CREATE UNIQUE INDEX orders_stripe_session_id_key ON orders (stripe_session_id) WHERE stripe_session_id IS NOT NULL;
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
`

// Open returns a private in-memory database with every table created. A single
// connection is used so concurrent transactions serialize instead of failing
// with SQLITE_LOCKED.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

// SeedBeat inserts an unsold Drill beat with standard prices; mutate may adjust it first.
func SeedBeat(t *testing.T, conn *gorm.DB, mutate func(*models.Beat)) models.Beat {
	t.Helper()
	exclusive := int64(100000)
	wav := "https://cdn.example.com/beats/audio/night.wav"
	beat := models.Beat{
		ID:                  uuid.New(),
		Title:               "Night Shift",
		Producer:            "Heard Music",
		Category:            enums.BeatCategoryDrill,
		BPM:                 140,
		MusicalKey:          "F# minor",
		MP3PriceCents:       4500,
		WAVPriceCents:       6000,
		TrackoutPriceCents:  30000,
		ExclusivePriceCents: &exclusive,
		MP3URL:              "https://cdn.example.com/beats/audio/night.mp3",
		WAVURL:              &wav,
	}
	if mutate != nil {
		mutate(&beat)
	}
	require.NoError(t, conn.Create(&beat).Error)
	return beat
}

// SeedOrder inserts an order for beat; mutate may adjust it first.
func SeedOrder(t *testing.T, conn *gorm.DB, beat models.Beat, mutate func(*models.Order)) models.Order {
	t.Helper()
	sessionID := "cs_test_" + uuid.NewString()
	order := models.Order{
		ID:              uuid.New(),
		BeatID:          beat.ID,
		CustomerEmail:   "buyer@example.com",
		CustomerName:    "Buyer One",
		LicenseType:     enums.LicenseTypeMP3,
		AmountCents:     beat.MP3PriceCents,
		StripeSessionID: &sessionID,
		Status:          enums.OrderStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}
