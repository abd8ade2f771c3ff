package email

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chryzcode/ycsyh-site/pkg/config"
)

type fakeAPI struct {
	sent *sgmail.SGMailV3
	resp *rest.Response
	err  error
}

func (f *fakeAPI) SendWithContext(_ context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	return f.resp, f.err
}

func testClient(api *fakeAPI) *Client {
	return &Client{api: api, from: sgmail.NewEmail("YCSYH", "noreply@ycsyh.example")}
}

func purchaseMessage() Message {
	return Message{
		To:      "buyer@example.com",
		ToName:  "Buyer",
		Subject: "Your Purchase: Night Drive - YCSYH",
		HTML:    "<p>thanks</p>",
		Text:    "thanks",
		Attachments: []Attachment{{
			Filename:    "license-1.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF-1.3"),
		}},
	}
}

func TestSendBuildsMailAndReturnsMessageID(t *testing.T) {
	api := &fakeAPI{resp: &rest.Response{StatusCode: 202, Headers: map[string][]string{"X-Message-Id": {"msg-123"}}}}
	client := testClient(api)

	res, err := client.Send(context.Background(), purchaseMessage())
	require.NoError(t, err)
	assert.Equal(t, "msg-123", res.MessageID)
	assert.Equal(t, 202, res.StatusCode)

	sent := api.sent
	require.NotNil(t, sent)
	assert.Equal(t, "noreply@ycsyh.example", sent.From.Address)
	assert.Equal(t, "Your Purchase: Night Drive - YCSYH", sent.Subject)
	require.Len(t, sent.Personalizations, 1)
	assert.Equal(t, "buyer@example.com", sent.Personalizations[0].To[0].Address)
	require.Len(t, sent.Content, 2)
	assert.Equal(t, "text/plain", sent.Content[0].Type)
	assert.Equal(t, "text/html", sent.Content[1].Type)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "license-1.pdf", sent.Attachments[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.3")), sent.Attachments[0].Content)
	assert.Equal(t, "attachment", sent.Attachments[0].Disposition)
}

func TestSendRejectsNon2xx(t *testing.T) {
	api := &fakeAPI{resp: &rest.Response{StatusCode: 401, Body: `{"errors":[{"message":"bad key"}]}`}}
	_, err := testClient(api).Send(context.Background(), purchaseMessage())
	assert.ErrorContains(t, err, "status 401")
}

func TestSendWrapsTransportError(t *testing.T) {
	api := &fakeAPI{err: errors.New("dial tcp")}
	_, err := testClient(api).Send(context.Background(), purchaseMessage())
	assert.ErrorContains(t, err, "dial tcp")
}

func TestSendValidatesMessage(t *testing.T) {
	api := &fakeAPI{resp: &rest.Response{StatusCode: 202}}
	client := testClient(api)

	msg := purchaseMessage()
	msg.To = "not-an-email"
	_, err := client.Send(context.Background(), msg)
	assert.Error(t, err)

	msg = purchaseMessage()
	msg.HTML, msg.Text = "", ""
	_, err = client.Send(context.Background(), msg)
	assert.Error(t, err)

	msg = purchaseMessage()
	msg.Attachments[0].Content = nil
	_, err = client.Send(context.Background(), msg)
	assert.Error(t, err)
	assert.Nil(t, api.sent)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(config.SendgridConfig{DefaultFrom: "a@b.c"})
	assert.Error(t, err)
	_, err = NewClient(config.SendgridConfig{APIKey: "SG.x", DefaultFrom: "nope"})
	assert.Error(t, err)

	client, err := NewClient(config.SendgridConfig{APIKey: "SG.x", DefaultFrom: "Heard <noreply@ycsyh.example>", FromName: ""})
	require.NoError(t, err)
	assert.Equal(t, "Heard", client.from.Name)
	assert.Equal(t, "noreply@ycsyh.example", client.from.Address)
}
