package enums

import (
	"fmt"
	"strings"
)

// BeatCategory is the genre bucket a beat is listed under.
type BeatCategory string

const (
	BeatCategoryDrill      BeatCategory = "Drill"
	BeatCategoryUKRap      BeatCategory = "UK Rap"
	BeatCategoryJerseyClub BeatCategory = "Jersey Club"
	BeatCategoryCinematic  BeatCategory = "Cinematic"
	BeatCategoryTrap       BeatCategory = "Trap"
	BeatCategoryRnB        BeatCategory = "R&B"
	BeatCategoryHipHop     BeatCategory = "Hip-Hop"
	BeatCategoryOther      BeatCategory = "Other"
)

var beatCategories = set[BeatCategory]{
	BeatCategoryDrill,
	BeatCategoryUKRap,
	BeatCategoryJerseyClub,
	BeatCategoryCinematic,
	BeatCategoryTrap,
	BeatCategoryRnB,
	BeatCategoryHipHop,
	BeatCategoryOther,
}

func (c BeatCategory) String() string {
	return string(c)
}

func (c BeatCategory) IsValid() bool {
	return beatCategories.has(c)
}

// ParseBeatCategory accepts the canonical name, case-insensitively.
func ParseBeatCategory(value string) (BeatCategory, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range beatCategories {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid beat category %q", value)
}
