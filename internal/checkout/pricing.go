package checkout

import (
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
)

// ResolvePrice returns the price in pence for licenseType on beat.
func ResolvePrice(beat *models.Beat, licenseType enums.LicenseType) (int64, error) {
	var price int64
	switch licenseType {
	case enums.LicenseTypeMP3:
		price = beat.MP3PriceCents
	case enums.LicenseTypeWAV:
		price = beat.WAVPriceCents
	case enums.LicenseTypeTrackout:
		price = beat.TrackoutPriceCents
	case enums.LicenseTypeExclusive:
		if beat.ExclusivePriceCents == nil || *beat.ExclusivePriceCents == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "Exclusive license not available. Please contact for pricing.")
		}
		price = *beat.ExclusivePriceCents
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "Valid license type is required")
	}
	if price <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "Invalid price for selected license type")
	}
	return price, nil
}
