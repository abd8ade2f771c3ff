package licenses

import "github.com/chryzcode/ycsyh-site/pkg/enums"

const (
	publishingSplit   = "50% Buyer / 50% Heard Music (YCSYH)"
	creditRequirement = "Must credit: Produced by Heard Music"
	nonExclusiveNote  = "Non-exclusive - beat may be sold to other artists"
)

// Terms is the legal content of one license tier.
type Terms struct {
	Rights            []string
	Restrictions      []string
	PublishingSplit   string
	CreditRequirement string
}

var termsByType = map[enums.LicenseType]Terms{
	enums.LicenseTypeMP3: {
		Rights: []string{
			"MP3 file",
			"Non-exclusive usage",
			"50,000 streaming cap",
			"1 commercial music video",
			"Radio play allowed",
		},
		Restrictions: []string{
			nonExclusiveNote,
			"Streaming limited to 50,000 streams",
			"Only 1 commercial music video allowed",
		},
		PublishingSplit:   publishingSplit,
		CreditRequirement: creditRequirement,
	},
	enums.LicenseTypeWAV: {
		Rights: []string{
			"WAV file",
			"Non-exclusive usage",
			"100,000 streaming cap",
			"2 commercial music videos",
			"Radio play allowed",
		},
		Restrictions: []string{
			nonExclusiveNote,
			"Streaming limited to 100,000 streams",
			"Maximum 2 commercial music videos",
		},
		PublishingSplit:   publishingSplit,
		CreditRequirement: creditRequirement,
	},
	enums.LicenseTypeTrackout: {
		Rights: []string{
			"Full tracked-out stems",
			"Non-exclusive usage",
			"Unlimited streams",
			"Unlimited music videos",
			"Radio play allowed",
			"Live performances allowed",
		},
		Restrictions: []string{
			nonExclusiveNote,
		},
		PublishingSplit:   publishingSplit,
		CreditRequirement: creditRequirement,
	},
	enums.LicenseTypeExclusive: {
		Rights: []string{
			"Exclusive usage rights",
			"Unlimited streams",
			"Unlimited videos",
			"Sync rights allowed",
			"Beat removed from store",
			"Full ownership of master recording",
		},
		Restrictions: []string{
			"Beat will be removed from store after purchase",
		},
		PublishingSplit:   publishingSplit,
		CreditRequirement: creditRequirement,
	},
}

// TermsFor returns a copy of the terms for licenseType; callers may modify it freely.
func TermsFor(licenseType enums.LicenseType) (Terms, bool) {
	t, ok := termsByType[licenseType]
	if !ok {
		return Terms{}, false
	}
	return Terms{
		Rights:            append([]string(nil), t.Rights...),
		Restrictions:      append([]string(nil), t.Restrictions...),
		PublishingSplit:   t.PublishingSplit,
		CreditRequirement: t.CreditRequirement,
	}, true
}
