package beats

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/money"
)

// Default tier prices in pence, applied when a create request omits them.
const (
	DefaultMP3PriceCents      int64 = 4500
	DefaultWAVPriceCents      int64 = 6000
	DefaultTrackoutPriceCents int64 = 30000
	DefaultProducer                 = "Heard Music"
)

// BeatDTO is the public catalog view. Download URLs are never included.
type BeatDTO struct {
	ID                  uuid.UUID          `json:"id"`
	Title               string             `json:"title"`
	Producer            string             `json:"producer"`
	Category            enums.BeatCategory `json:"category"`
	BPM                 int                `json:"bpm"`
	Key                 string             `json:"key"`
	MP3Price            money.Pounds       `json:"mp3Price"`
	WAVPrice            money.Pounds       `json:"wavPrice"`
	TrackoutPrice       money.Pounds       `json:"trackoutPrice"`
	ExclusivePrice      *money.Pounds      `json:"exclusivePrice,omitempty"`
	Description         *string            `json:"description,omitempty"`
	ImageURL            *string            `json:"imageUrl,omitempty"`
	PreviewURL          string             `json:"previewUrl"`
	IsUsingMP3AsPreview bool               `json:"isUsingMp3AsPreview"`
	IsSold              bool               `json:"isSold"`
	CreatedAt           time.Time          `json:"createdAt"`
}

// AdminBeatDTO adds the file URLs the admin edit form needs.
type AdminBeatDTO struct {
	BeatDTO
	MP3URL       string    `json:"mp3Url"`
	WAVURL       *string   `json:"wavUrl,omitempty"`
	TrackoutsURL *string   `json:"trackoutsUrl,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeatInput is the create/update body. Omitted prices fall back to the tier
// defaults on create and keep their stored value on update.
type BeatInput struct {
	Title          string        `json:"title" validate:"required,max=200"`
	Producer       string        `json:"producer" validate:"max=200"`
	Category       string        `json:"category" validate:"required,beat_category"`
	BPM            int           `json:"bpm" validate:"required,min=60,max=200"`
	Key            string        `json:"key" validate:"required,max=50"`
	MP3Price       *money.Pounds `json:"mp3Price"`
	WAVPrice       *money.Pounds `json:"wavPrice"`
	TrackoutPrice  *money.Pounds `json:"trackoutPrice"`
	ExclusivePrice *money.Pounds `json:"exclusivePrice"`
	Description    *string       `json:"description"`
	ImageURL       *string       `json:"imageUrl"`
	PreviewURL     *string       `json:"previewUrl"`
	MP3URL         string        `json:"mp3Url" validate:"required,url"`
	WAVURL         *string       `json:"wavUrl"`
	TrackoutsURL   *string       `json:"trackoutsUrl"`
}

// ListParams filters the public catalog.
type ListParams struct {
	Category    *enums.BeatCategory
	IncludeSold bool
}

// PreviewPath is the redirect endpoint used when a beat has no dedicated preview.
func PreviewPath(id uuid.UUID) string {
	return fmt.Sprintf("/api/beats/%s/preview", id)
}

func FromModel(b *models.Beat) *BeatDTO {
	if b == nil {
		return nil
	}
	dto := &BeatDTO{
		ID:             b.ID,
		Title:          b.Title,
		Producer:       b.Producer,
		Category:       b.Category,
		BPM:            b.BPM,
		Key:            b.MusicalKey,
		MP3Price:       money.PoundsFromCents(b.MP3PriceCents),
		WAVPrice:       money.PoundsFromCents(b.WAVPriceCents),
		TrackoutPrice:  money.PoundsFromCents(b.TrackoutPriceCents),
		ExclusivePrice: money.PoundsFromCentsPtr(b.ExclusivePriceCents),
		Description:    b.Description,
		ImageURL:       b.ImageURL,
		IsSold:         b.IsSold,
		CreatedAt:      b.CreatedAt,
	}
	if b.PreviewURL != nil && *b.PreviewURL != "" {
		dto.PreviewURL = *b.PreviewURL
	} else {
		dto.PreviewURL = PreviewPath(b.ID)
		dto.IsUsingMP3AsPreview = true
	}
	return dto
}

func AdminFromModel(b *models.Beat) *AdminBeatDTO {
	if b == nil {
		return nil
	}
	return &AdminBeatDTO{
		BeatDTO:      *FromModel(b),
		MP3URL:       b.MP3URL,
		WAVURL:       b.WAVURL,
		TrackoutsURL: b.TrackoutsURL,
		UpdatedAt:    b.UpdatedAt,
	}
}

// PreviewTarget is where /preview redirects: the preview file, else the MP3.
func PreviewTarget(b *models.Beat) string {
	if b == nil {
		return ""
	}
	if b.PreviewURL != nil && strings.TrimSpace(*b.PreviewURL) != "" {
		return *b.PreviewURL
	}
	return strings.TrimSpace(b.MP3URL)
}

func optionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
