package sender

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeReply(t *testing.T) {
	date := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	raw, err := composeReply("help@acme.io", "abc@acme.io", ReplyParams{
		To:         "alice@customer.com",
		Subject:    "Printer",
		Body:       "Have you tried turning it off?",
		InReplyTo:  "m2@customer.com",
		References: []string{"m1@customer.com", "m2@customer.com"},
		Date:       date,
	})
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Printer", subject)

	id, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "abc@acme.io", id)

	inReplyTo, err := r.Header.MsgIDList("In-Reply-To")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2@customer.com"}, inReplyTo)

	refs, err := r.Header.MsgIDList("References")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1@customer.com", "m2@customer.com"}, refs)

	from, err := r.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "help@acme.io", from[0].Address)

	sent, err := r.Header.Date()
	require.NoError(t, err)
	assert.True(t, sent.Equal(date))

	p, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Equal(t, "Have you tried turning it off?", strings.TrimSpace(string(body)))
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Printer", replySubject("Printer"))
	assert.Equal(t, "RE: Printer", replySubject("RE: Printer"))
	assert.Equal(t, "Re: ", replySubject(""))
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("help@acme.io")
	assert.True(t, strings.HasSuffix(id, "@acme.io"))
	assert.NotEqual(t, id, NewMessageID("help@acme.io"))
	assert.True(t, strings.HasSuffix(NewMessageID("broken"), "@localhost"))
}
