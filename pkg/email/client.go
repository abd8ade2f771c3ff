package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/chryzcode/ycsyh-site/pkg/config"
)

const messageIDHeader = "X-Message-Id"

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a single transactional email.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	Categories  []string
}

// Result identifies the accepted message for later lookups in SendGrid.
type Result struct {
	MessageID  string
	StatusCode int
}

// Sender is implemented by Client and by test fakes.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

type mailAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// Client sends mail through the SendGrid v3 API.
type Client struct {
	api  mailAPI
	from *sgmail.Email
}

// NewClient requires an API key and a valid sender address.
func NewClient(cfg config.SendgridConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.DefaultFrom))
	if err != nil {
		return nil, fmt.Errorf("invalid sendgrid from address: %w", err)
	}
	name := cfg.FromName
	if name == "" {
		name = from.Name
	}
	return &Client{
		api:  sendgrid.NewSendClient(key),
		from: sgmail.NewEmail(name, from.Address),
	}, nil
}

func (m Message) validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("subject is required")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("message body is required")
	}
	for _, a := range m.Attachments {
		if a.Filename == "" || len(a.Content) == 0 {
			return errors.New("attachments need a filename and content")
		}
	}
	return nil
}

func (c *Client) build(msg Message) *sgmail.SGMailV3 {
	out := sgmail.NewV3Mail()
	out.SetFrom(c.from)
	out.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))
	out.AddPersonalizations(p)

	// SendGrid requires text/plain before text/html.
	if msg.Text != "" {
		out.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		out.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out.AddAttachment(sgmail.NewAttachment().
			SetContent(base64.StdEncoding.EncodeToString(a.Content)).
			SetType(contentType).
			SetFilename(a.Filename).
			SetDisposition("attachment"))
	}
	if len(msg.Categories) > 0 {
		out.AddCategories(msg.Categories...)
	}
	return out
}

// Send delivers msg; any non-2xx response is an error.
func (c *Client) Send(ctx context.Context, msg Message) (*Result, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	resp, err := c.api.SendWithContext(ctx, c.build(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, truncate(resp.Body, 512))
	}
	return &Result{MessageID: headerValue(resp.Headers, messageIDHeader), StatusCode: resp.StatusCode}, nil
}

func headerValue(headers map[string][]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
