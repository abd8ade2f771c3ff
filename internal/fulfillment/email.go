package fulfillment

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/email"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// FileLink is one downloadable deliverable listed in the purchase email.
type FileLink struct {
	Name string
	URL  string
}

type purchaseEmail struct {
	CustomerName string
	BeatTitle    string
	LicenseType  string
	Files        []FileLink
}

// FileLinks lists the beat's non-empty deliverables in MP3, WAV, Trackouts order.
func FileLinks(beat *models.Beat) []FileLink {
	var links []FileLink
	add := func(name string, url *string) {
		if url != nil && strings.TrimSpace(*url) != "" {
			links = append(links, FileLink{Name: name, URL: *url})
		}
	}
	mp3 := beat.MP3URL
	add("MP3", &mp3)
	add("WAV", beat.WAVURL)
	add("Trackouts", beat.TrackoutsURL)
	return links
}

func Subject(beatTitle string) string {
	return fmt.Sprintf("Your Purchase: %s - YCSYH", beatTitle)
}

func AttachmentName(order *models.Order) string {
	return fmt.Sprintf("license-%s.pdf", order.ID)
}

func composePurchaseEmail(order *models.Order, beat *models.Beat, contract []byte) (email.Message, error) {
	var body bytes.Buffer
	err := templates.ExecuteTemplate(&body, "purchase.html", purchaseEmail{
		CustomerName: order.CustomerName,
		BeatTitle:    beat.Title,
		LicenseType:  string(order.LicenseType),
		Files:        FileLinks(beat),
	})
	if err != nil {
		return email.Message{}, fmt.Errorf("render purchase email: %w", err)
	}
	return email.Message{
		To:      order.CustomerEmail,
		ToName:  order.CustomerName,
		Subject: Subject(beat.Title),
		HTML:    body.String(),
		Attachments: []email.Attachment{{
			Filename:    AttachmentName(order),
			ContentType: "application/pdf",
			Content:     contract,
		}},
		Categories: []string{"purchase"},
	}, nil
}
