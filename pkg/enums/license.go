package enums

// LicenseType is the tier a buyer purchases for a beat.
type LicenseType string

const (
	LicenseTypeMP3       LicenseType = "MP3 Lease"
	LicenseTypeWAV       LicenseType = "WAV Lease"
	LicenseTypeTrackout  LicenseType = "Trackout Lease"
	LicenseTypeExclusive LicenseType = "Exclusive"
)

var licenseTypes = set[LicenseType]{
	LicenseTypeMP3,
	LicenseTypeWAV,
	LicenseTypeTrackout,
	LicenseTypeExclusive,
}

// LicenseTypes returns the purchasable tiers in display order.
func LicenseTypes() []LicenseType {
	return licenseTypes.clone()
}

func (l LicenseType) String() string {
	return string(l)
}

// IsValid reports whether the value is one of the four license tiers.
func (l LicenseType) IsValid() bool {
	return licenseTypes.has(l)
}

// IsExclusive reports whether the tier transfers exclusive rights.
func (l LicenseType) IsExclusive() bool {
	return l == LicenseTypeExclusive
}

// ParseLicenseType matches value exactly after trimming whitespace.
func ParseLicenseType(value string) (LicenseType, error) {
	return licenseTypes.parse("license type", value)
}
