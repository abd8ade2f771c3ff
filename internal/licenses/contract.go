package licenses

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/money"
)

const (
	brandHeader    = "HEARD MUSIC / YCSYH"
	agreementTitle = "LICENSE AGREEMENT"
	publisherName  = "YOU CAN SAY YOU HEARD (YCSYH)"
	producerBrand  = "Heard Music"
	dateLayout     = "2 January 2006"
)

// LineStyle controls how a contract line is rendered.
type LineStyle int

const (
	StyleTitle LineStyle = iota
	StyleField
	StyleHeading
	StyleClause
	StyleSignature
	StyleSpacer
)

// Line is one rendered line of the agreement.
type Line struct {
	Style LineStyle
	Text  string
}

// ContractInput is everything printed on an agreement.
type ContractInput struct {
	OrderID       uuid.UUID
	LicenseType   enums.LicenseType
	AmountCents   int64
	BeatTitle     string
	Producer      string
	BPM           int
	Key           string
	CustomerName  string
	CustomerEmail string
	// IssuedAt is printed as the agreement date. Fulfillment passes the
	// order's completion time so a resent contract matches the original.
	IssuedAt time.Time
}

// ContractLines lays out the agreement text in reading order.
func ContractLines(in ContractInput) ([]Line, error) {
	terms, ok := TermsFor(in.LicenseType)
	if !ok {
		return nil, fmt.Errorf("unknown license type %q", in.LicenseType)
	}
	exclusive := in.LicenseType.IsExclusive()

	lines := []Line{
		{StyleTitle, brandHeader},
		{StyleTitle, agreementTitle},
		{StyleSpacer, ""},
		{StyleField, "License Type: " + string(in.LicenseType)},
		{StyleField, "Price: " + money.FormatGBP(in.AmountCents)},
		{StyleSpacer, ""},
		{StyleField, "Beat Title: " + in.BeatTitle},
		{StyleField, "Producer: " + in.Producer},
		{StyleField, "Publisher: " + publisherName},
		{StyleField, fmt.Sprintf("BPM: %d", in.BPM)},
		{StyleField, "Key: " + in.Key},
		{StyleSpacer, ""},
		{StyleHeading, "Licensee Information:"},
		{StyleField, "Name: " + in.CustomerName},
		{StyleField, "Email: " + in.CustomerEmail},
		{StyleSpacer, ""},
		{StyleHeading, "Rights Granted:"},
	}
	lines = append(lines, numbered(terms.Rights)...)
	lines = append(lines, Line{StyleSpacer, ""})

	if len(terms.Restrictions) > 0 {
		lines = append(lines, Line{StyleHeading, "Restrictions:"})
		lines = append(lines, numbered(terms.Restrictions)...)
		lines = append(lines, Line{StyleSpacer, ""})
	}

	lines = append(lines,
		Line{StyleHeading, "Publishing Split:"},
		Line{StyleClause, terms.PublishingSplit},
		Line{StyleSpacer, ""},
		Line{StyleHeading, "Credit Requirement:"},
		Line{StyleClause, terms.CreditRequirement},
		Line{StyleSpacer, ""},
		Line{StyleHeading, "Ownership:"},
	)
	if exclusive {
		lines = append(lines,
			Line{StyleClause, "Buyer owns 100% master of the new song."},
			Line{StyleClause, "Heard Music (YCSYH) retains publishing rights as specified above."},
		)
	} else {
		lines = append(lines,
			Line{StyleClause, "Heard Music retains full ownership of the beat."},
			Line{StyleClause, "Buyer receives usage rights only as specified in this agreement."},
		)
	}

	general := []string{
		"This license is non-transferable and applies only to the original purchaser.",
		"The licensee may not resell, lease, or transfer this license to any third party.",
		"Compositions must be registered with PRS only when songs are released.",
		"All uses must include proper credit as specified above.",
	}
	if !exclusive {
		general = append(general, "This is a non-exclusive license. The beat may be licensed to other artists.")
	}
	lines = append(lines, Line{StyleSpacer, ""}, Line{StyleHeading, "General Terms:"})
	lines = append(lines, numbered(general)...)

	lines = append(lines,
		Line{StyleSpacer, ""},
		Line{StyleField, "Date: " + in.IssuedAt.UTC().Format(dateLayout)},
		Line{StyleField, "Order ID: " + in.OrderID.String()},
		Line{StyleSpacer, ""},
		Line{StyleSpacer, ""},
		Line{StyleSignature, publisherName},
		Line{StyleSignature, producerBrand},
	)
	return lines, nil
}

func numbered(items []string) []Line {
	out := make([]Line, 0, len(items))
	for i, item := range items {
		out = append(out, Line{StyleClause, fmt.Sprintf("%d. %s", i+1, item)})
	}
	return out
}
