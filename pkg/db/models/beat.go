package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

// Beat is a licensable instrumental listed in the catalog. Prices are stored in pence.
type Beat struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title               string             `gorm:"column:title;not null"`
	Producer            string             `gorm:"column:producer;not null;default:'Heard Music'"`
	Category            enums.BeatCategory `gorm:"column:category;type:beat_category_enum;not null"`
	BPM                 int                `gorm:"column:bpm;not null"`
	MusicalKey          string             `gorm:"column:musical_key;not null"`
	MP3PriceCents       int64              `gorm:"column:mp3_price_cents;not null"`
	WAVPriceCents       int64              `gorm:"column:wav_price_cents;not null"`
	TrackoutPriceCents  int64              `gorm:"column:trackout_price_cents;not null"`
	ExclusivePriceCents *int64             `gorm:"column:exclusive_price_cents"`
	Description         *string            `gorm:"column:description"`
	ImageURL            *string            `gorm:"column:image_url"`
	PreviewURL          *string            `gorm:"column:preview_url"`
	MP3URL              string             `gorm:"column:mp3_url;not null"`
	WAVURL              *string            `gorm:"column:wav_url"`
	TrackoutsURL        *string            `gorm:"column:trackouts_url"`
	IsSold              bool               `gorm:"column:is_sold;not null;default:false"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
