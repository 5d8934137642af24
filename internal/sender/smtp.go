package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	mailmsg "helpdesk-mail-go/internal/mail"
)

const implicitTLSPort = 465

// ReplyParams describes an outbound reply in an existing conversation.
// MessageID is generated from the sender's domain when empty.
type ReplyParams struct {
	MessageID  string
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
	Date       time.Time
}

// SMTPSender delivers replies through the bot's own SMTP account.
type SMTPSender struct {
	dial func(creds mailmsg.Credentials) (*smtp.Client, error)
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender() *SMTPSender {
	return &SMTPSender{dial: dial}
}

func dial(creds mailmsg.Credentials) (*smtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: creds.SMTPHost}
	if creds.SMTPPort == implicitTLSPort {
		return smtp.DialTLS(creds.SMTPAddr(), tlsConfig)
	}
	return smtp.DialStartTLS(creds.SMTPAddr(), tlsConfig)
}

// withClient connects and authenticates, then runs fn. Cancelling ctx closes
// the connection.
func (s *SMTPSender) withClient(ctx context.Context, creds mailmsg.Credentials, fn func(c *smtp.Client) error) error {
	c, err := s.dial(creds)
	if err != nil {
		return apperr.Dependency("connect to SMTP server "+creds.SMTPAddr(), err)
	}
	defer c.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	if err := c.Auth(sasl.NewPlainClient("", creds.Email, creds.Password)); err != nil {
		return apperr.Dependency("SMTP auth as "+creds.Email, err)
	}
	if err := fn(c); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		logrus.Debugf("SMTP quit for %s failed: %v", creds.Email, err)
	}
	return nil
}

// SendReply sends a threaded reply and returns the Message-ID it was sent with.
func (s *SMTPSender) SendReply(ctx context.Context, creds mailmsg.Credentials, p ReplyParams) (string, error) {
	messageID := p.MessageID
	if messageID == "" {
		messageID = NewMessageID(creds.Email)
	}
	raw, err := composeReply(creds.Email, messageID, p)
	if err != nil {
		return "", fmt.Errorf("failed to compose reply: %w", err)
	}

	err = s.withClient(ctx, creds, func(c *smtp.Client) error {
		if err := c.Mail(creds.Email, nil); err != nil {
			return apperr.Dependency("SMTP MAIL FROM", err)
		}
		if err := c.Rcpt(p.To, nil); err != nil {
			return apperr.Dependency("SMTP RCPT TO "+p.To, err)
		}
		w, err := c.Data()
		if err != nil {
			return apperr.Dependency("SMTP DATA", err)
		}
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return apperr.Dependency("write message body", err)
		}
		if err := w.Close(); err != nil {
			return apperr.Dependency("finish message body", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"from":       creds.Email,
		"to":         p.To,
		"message_id": messageID,
	}).Info("Reply sent")
	return messageID, nil
}

// TestConnection authenticates against the SMTP server without sending.
func (s *SMTPSender) TestConnection(ctx context.Context, creds mailmsg.Credentials) error {
	return s.withClient(ctx, creds, func(c *smtp.Client) error {
		if err := c.Noop(); err != nil {
			return apperr.Dependency("SMTP NOOP", err)
		}
		return nil
	})
}

// NewMessageID returns a fresh Message-ID on the domain of from.
func NewMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return uuid.NewString() + "@" + domain
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func composeReply(from, messageID string, p ReplyParams) ([]byte, error) {
	var h mail.Header
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: p.To}})
	h.SetSubject(replySubject(p.Subject))
	date := p.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetMessageID(messageID)
	if p.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{p.InReplyTo})
	}
	if len(p.References) > 0 {
		h.SetMsgIDList("References", p.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, p.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
