package beats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/money"
)

const (
	beatNotFoundMessage  = "Beat not found"
	beatHasOrdersMessage = "Beat has orders and cannot be deleted"
)

// Service is the catalog surface used by controllers and checkout.
type Service interface {
	List(ctx context.Context, params ListParams) ([]BeatDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*BeatDTO, error)
	GetAdmin(ctx context.Context, id uuid.UUID) (*AdminBeatDTO, error)
	PreviewURL(ctx context.Context, id uuid.UUID) (string, error)
	Create(ctx context.Context, input BeatInput) (*AdminBeatDTO, error)
	Update(ctx context.Context, id uuid.UUID, input BeatInput) (*AdminBeatDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository interface {
	List(ctx context.Context, params ListParams) ([]models.Beat, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
	Create(ctx context.Context, beat *models.Beat) error
	Save(ctx context.Context, beat *models.Beat) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("beats repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]BeatDTO, error) {
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list beats")
	}
	out := make([]BeatDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BeatDTO, error) {
	beat, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(beat), nil
}

func (s *service) GetAdmin(ctx context.Context, id uuid.UUID) (*AdminBeatDTO, error) {
	beat, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return AdminFromModel(beat), nil
}

func (s *service) PreviewURL(ctx context.Context, id uuid.UUID) (string, error) {
	beat, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	target := PreviewTarget(beat)
	if target == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "Preview not available")
	}
	return target, nil
}

func (s *service) Create(ctx context.Context, input BeatInput) (*AdminBeatDTO, error) {
	beat := &models.Beat{
		ID:                 uuid.New(),
		MP3PriceCents:      DefaultMP3PriceCents,
		WAVPriceCents:      DefaultWAVPriceCents,
		TrackoutPriceCents: DefaultTrackoutPriceCents,
	}
	if err := applyInput(beat, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, beat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create beat")
	}
	return AdminFromModel(beat), nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input BeatInput) (*AdminBeatDTO, error) {
	beat, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyInput(beat, input); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, beat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update beat")
	}
	return AdminFromModel(beat), nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, beatNotFoundMessage)
		}
		if db.IsForeignKeyViolation(err) {
			return pkgerrors.New(pkgerrors.CodeConflict, beatHasOrdersMessage)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete beat")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeConflict, beatHasOrdersMessage)
	}
	return nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Beat, error) {
	beat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, beatNotFoundMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load beat")
	}
	return beat, nil
}

// applyInput copies validated input onto beat, leaving omitted prices untouched.
func applyInput(beat *models.Beat, input BeatInput) error {
	details := map[string]string{}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		details["title"] = "is required"
	}
	category, err := enums.ParseBeatCategory(input.Category)
	if err != nil {
		details["category"] = "is invalid"
	}
	if input.BPM < 60 || input.BPM > 200 {
		details["bpm"] = "must be between 60 and 200"
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		details["key"] = "is required"
	}
	mp3URL := strings.TrimSpace(input.MP3URL)
	if mp3URL == "" {
		details["mp3Url"] = "is required"
	}

	prices := []struct {
		field string
		in    *money.Pounds
		apply func(int64)
	}{
		{"mp3Price", input.MP3Price, func(c int64) { beat.MP3PriceCents = c }},
		{"wavPrice", input.WAVPrice, func(c int64) { beat.WAVPriceCents = c }},
		{"trackoutPrice", input.TrackoutPrice, func(c int64) { beat.TrackoutPriceCents = c }},
		{"exclusivePrice", input.ExclusivePrice, func(c int64) {
			if c == 0 {
				beat.ExclusivePriceCents = nil
				return
			}
			beat.ExclusivePriceCents = &c
		}},
	}
	resolved := make([]int64, len(prices))
	for i, p := range prices {
		if p.in == nil {
			resolved[i] = -1
			continue
		}
		cents, err := p.in.Cents()
		if err != nil {
			details[p.field] = "must be a non-negative amount in pounds and pence"
			continue
		}
		resolved[i] = cents
	}

	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	for i, p := range prices {
		if resolved[i] >= 0 {
			p.apply(resolved[i])
		}
	}
	beat.Title = title
	beat.Producer = strings.TrimSpace(input.Producer)
	if beat.Producer == "" {
		beat.Producer = DefaultProducer
	}
	beat.Category = category
	beat.BPM = input.BPM
	beat.MusicalKey = key
	beat.Description = optionalString(input.Description)
	beat.ImageURL = optionalString(input.ImageURL)
	beat.PreviewURL = optionalString(input.PreviewURL)
	beat.MP3URL = mp3URL
	beat.WAVURL = optionalString(input.WAVURL)
	beat.TrackoutsURL = optionalString(input.TrackoutsURL)
	return nil
}
