package fetcher

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

const multipartMessage = "From: Alice <alice@customer.com>\r\n" +
	"To: help@acme.io\r\n" +
	"Subject: Printer\r\n" +
	"Message-ID: <m1@customer.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>ignored html</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The printer is on fire.\r\n" +
	"--b1--\r\n"

const htmlOnlyMessage = "From: alice@customer.com\r\n" +
	"To: help@acme.io\r\n" +
	"Subject: Printer\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<div>Hello</div><p>It&#39;s <b>broken</b> &amp; smoking</p>\r\n"

func TestExtractTextPrefersPlainPart(t *testing.T) {
	body, err := extractText(strings.NewReader(multipartMessage))
	require.NoError(t, err)
	assert.Equal(t, "The printer is on fire.", body)
}

func TestExtractTextFallsBackToHTML(t *testing.T) {
	body, err := extractText(strings.NewReader(htmlOnlyMessage))
	require.NoError(t, err)
	assert.Equal(t, "Hello\n\nIt's broken & smoking", body)
}

func TestHTMLToPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line breaks", "one<br>two<br />three", "one\ntwo\nthree"},
		{"entities", "a &lt;b&gt; &quot;c&quot;&nbsp;d", "a <b> \"c\" d"},
		{"escaped entity stays literal", "&amp;lt;", "&lt;"},
		{"collapses blank lines", "<p>a</p>\n\n\n<p>b</p>", "a\n\nb"},
		{"empty", "<span></span>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlToPlainText(tt.in))
		})
	}
}

func TestSummaryFromEnvelope(t *testing.T) {
	internal := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	sent := time.Date(2024, 4, 1, 8, 59, 0, 0, time.UTC)

	msg := &imap.Message{
		Uid:          42,
		InternalDate: internal,
		Envelope: &imap.Envelope{
			Date:      sent,
			Subject:   "Re: Printer",
			MessageId: "<m2@customer.com>",
			InReplyTo: "<m1@acme.io>",
			From:      []*imap.Address{{PersonalName: "Alice", MailboxName: "alice", HostName: "customer.com"}},
			To:        []*imap.Address{{MailboxName: "help", HostName: "acme.io"}},
		},
	}

	s := summaryFromEnvelope(msg)
	assert.EqualValues(t, 42, s.UID)
	assert.Equal(t, "<m2@customer.com>", s.MessageID)
	assert.Equal(t, "<m1@acme.io>", s.InReplyTo)
	assert.Equal(t, "Re: Printer", s.Subject)
	assert.Equal(t, "alice@customer.com", s.From)
	assert.Equal(t, "help@acme.io", s.To)
	assert.True(t, s.Date.Equal(sent))

	bare := summaryFromEnvelope(&imap.Message{Uid: 7, InternalDate: internal})
	assert.EqualValues(t, 7, bare.UID)
	assert.True(t, bare.Date.Equal(internal))
	assert.Empty(t, bare.MessageID)
}

func TestSummaryFromGmail(t *testing.T) {
	encode := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	at := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	msg := &gmail.Message{
		Id:           "abc",
		InternalDate: at.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <Alice@Customer.com>"},
				{Name: "TO", Value: "Help Desk <help@acme.io>, other@acme.io"},
				{Name: "Subject", Value: "Printer"},
				{Name: "Message-Id", Value: "<m1@customer.com>"},
				{Name: "In-Reply-To", Value: "<m0@acme.io>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain body")}},
			},
		},
	}

	s := summaryFromGmail(msg)
	assert.Equal(t, "<m1@customer.com>", s.MessageID)
	assert.Equal(t, "<m0@acme.io>", s.InReplyTo)
	assert.Equal(t, "Alice@Customer.com", s.From)
	assert.Equal(t, "help@acme.io", s.To)
	assert.Equal(t, "Printer", s.Subject)
	assert.Equal(t, "plain body", s.Body)
	assert.True(t, s.Date.Equal(at))
}

func TestSummaryFromGmailHTMLOnlyAndRawEncoding(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("<div>hi</div>"))
	s := summaryFromGmail(&gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Body:     &gmail.MessagePartBody{Data: raw},
		},
	})
	assert.Equal(t, "hi", s.Body)
	assert.True(t, s.Date.IsZero())
}
