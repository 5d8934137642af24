package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/config"
	"helpdesk-mail-go/internal/mail"
)

const (
	inboxName     = "INBOX"
	sentAttr      = "\\Sent"
	clientTimeout = time.Minute
)

var sentFallbacks = []string{"Sent", "Sent Items", "Sent Messages", "[Gmail]/Sent Mail", "INBOX.Sent"}

// IMAPMailbox reads bot mailboxes over IMAP. Every call opens its own
// connection with the credentials it is given.
type IMAPMailbox struct {
	maxDepth int
	markSeen bool
	now      func() time.Time
}

// NewIMAPMailbox creates a new IMAP mailbox client
func NewIMAPMailbox(cfg config.ReconcileConfig) *IMAPMailbox {
	return &IMAPMailbox{
		maxDepth: cfg.MaxChainDepth,
		markSeen: cfg.MarkSeen,
		now:      time.Now,
	}
}

// withClient dials, logs in and runs fn, logging out afterwards. Cancelling
// ctx terminates the connection.
func (m *IMAPMailbox) withClient(ctx context.Context, creds mail.Credentials, fn func(c *client.Client) error) error {
	c, err := client.DialTLS(creds.IMAPAddr(), nil)
	if err != nil {
		return apperr.Dependency("connect to IMAP server "+creds.IMAPAddr(), err)
	}
	c.Timeout = clientTimeout

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Terminate()
		case <-stop:
		}
	}()

	if err := c.Login(creds.Email, creds.Password); err != nil {
		c.Logout()
		return apperr.Dependency("login to IMAP server as "+creds.Email, err)
	}
	defer func() {
		if err := c.Logout(); err != nil {
			logrus.Debugf("IMAP logout for %s failed: %v", creds.Email, err)
		}
	}()

	return fn(c)
}

// FetchUnread returns every unseen INBOX message and flags them seen.
func (m *IMAPMailbox) FetchUnread(ctx context.Context, creds mail.Credentials) ([]mail.Summary, error) {
	var summaries []mail.Summary
	err := m.withClient(ctx, creds, func(c *client.Client) error {
		if _, err := c.Select(inboxName, false); err != nil {
			return apperr.Dependency("select INBOX", err)
		}

		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return apperr.Dependency("search unseen messages", err)
		}
		if len(uids) == 0 {
			return nil
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		if summaries, err = fetchSummaries(c, seqset, true, true); err != nil {
			return err
		}

		if m.markSeen {
			flags := []interface{}{imap.SeenFlag}
			if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
				return apperr.Dependency("mark messages seen", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("mailbox", creds.Email).Debugf("Fetched %d unread messages", len(summaries))
	return summaries, nil
}

// FetchRecent returns up to count of the newest messages across INBOX and
// the sent folder, newest first, without touching flags.
func (m *IMAPMailbox) FetchRecent(ctx context.Context, creds mail.Credentials, count int) ([]mail.Summary, error) {
	var merged []mail.Summary
	err := m.withClient(ctx, creds, func(c *client.Client) error {
		inbox, err := recentIn(c, inboxName, count)
		if err != nil {
			return err
		}

		sentName, err := findSentMailbox(c)
		if err != nil {
			return err
		}
		var sent []mail.Summary
		if sentName == "" {
			logrus.WithField("mailbox", creds.Email).Warn("No sent folder found, using INBOX only")
		} else if sent, err = recentIn(c, sentName, count); err != nil {
			return err
		}

		merged = mail.MergeRecent(count, inbox, sent)
		return nil
	})
	return merged, err
}

// ResolveReplyChains rebuilds the INBOX threads behind the dangling replies.
// Only envelopes are scanned; bodies are fetched for planned messages only.
func (m *IMAPMailbox) ResolveReplyChains(ctx context.Context, creds mail.Credentials, pending []mail.DanglingReply) (map[string][]mail.RawMessage, error) {
	result := make(map[string][]mail.RawMessage)
	if len(pending) == 0 {
		return result, nil
	}

	err := m.withClient(ctx, creds, func(c *client.Client) error {
		mbox, err := c.Select(inboxName, true)
		if err != nil {
			return apperr.Dependency("select INBOX", err)
		}

		var envelopes []mail.Envelope
		if mbox.Messages > 0 {
			all := new(imap.SeqSet)
			all.AddRange(1, mbox.Messages)
			heads, err := fetchSummaries(c, all, false, false)
			if err != nil {
				return err
			}
			for _, s := range heads {
				envelopes = append(envelopes, mail.Envelope{
					UID:       s.UID,
					MessageID: mail.CanonicalMessageID(s.MessageID),
					InReplyTo: mail.CanonicalMessageID(s.InReplyTo),
					Date:      s.Date,
				})
			}
		}

		plans, problems := mail.PlanChains(envelopes, pending, m.maxDepth)
		for _, p := range problems {
			logrus.WithField("mailbox", creds.Email).Warnf("Dropping reply chain: %v", p)
		}

		uids := new(imap.SeqSet)
		for _, plan := range plans {
			uids.AddNum(plan.UIDs()...)
		}
		byID := make(map[string]mail.Summary)
		if !uids.Empty() {
			full, err := fetchSummaries(c, uids, true, true)
			if err != nil {
				return err
			}
			for _, s := range full {
				byID[mail.CanonicalMessageID(s.MessageID)] = s
			}
		}

		now := m.now().UTC()
		for _, plan := range plans {
			msgs, problems := mail.MaterializeChain(plan, byID, creds.Email, now)
			for _, p := range problems {
				logrus.WithField("mailbox", creds.Email).Warnf("Skipping chain message: %v", p)
			}
			if len(msgs) > 0 {
				result[plan.RootID] = msgs
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TestConnection logs in and opens INBOX read-only.
func (m *IMAPMailbox) TestConnection(ctx context.Context, creds mail.Credentials) error {
	return m.withClient(ctx, creds, func(c *client.Client) error {
		if _, err := c.Select(inboxName, true); err != nil {
			return apperr.Dependency("select INBOX", err)
		}
		return nil
	})
}

func recentIn(c *client.Client, mailbox string, count int) ([]mail.Summary, error) {
	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, apperr.Dependency("select "+mailbox, err)
	}
	if mbox.Messages == 0 || count <= 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(count) {
		from = mbox.Messages - uint32(count) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)
	return fetchSummaries(c, seqset, false, true)
}

func findSentMailbox(c *client.Client) (string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var names []string
	sent := ""
	for info := range mailboxes {
		names = append(names, info.Name)
		for _, attr := range info.Attributes {
			if strings.EqualFold(attr, sentAttr) && sent == "" {
				sent = info.Name
			}
		}
	}
	if err := <-done; err != nil {
		return "", apperr.Dependency("list mailboxes", err)
	}
	if sent != "" {
		return sent, nil
	}
	for _, candidate := range sentFallbacks {
		for _, name := range names {
			if strings.EqualFold(name, candidate) {
				return name, nil
			}
		}
	}
	return "", nil
}

// fetchSummaries fetches envelopes, and optionally bodies, for seqset.
// Bodies are read with BODY.PEEK so flags are left alone.
func fetchSummaries(c *client.Client, seqset *imap.SeqSet, byUID, withBody bool) ([]mail.Summary, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate}
	if withBody {
		items = append(items, section.FetchItem())
	}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		if byUID {
			done <- c.UidFetch(seqset, items, messages)
		} else {
			done <- c.Fetch(seqset, items, messages)
		}
	}()

	var summaries []mail.Summary
	for msg := range messages {
		s := summaryFromEnvelope(msg)
		if withBody {
			if r := msg.GetBody(section); r != nil {
				body, err := extractText(r)
				if err != nil {
					logrus.Warnf("Failed to parse body of message %s: %v", s.MessageID, err)
				}
				s.Body = body
			}
		}
		summaries = append(summaries, s)
	}

	if err := <-done; err != nil {
		return nil, apperr.Dependency("fetch messages", err)
	}
	return summaries, nil
}

func summaryFromEnvelope(msg *imap.Message) mail.Summary {
	s := mail.Summary{UID: msg.Uid, Date: msg.InternalDate}
	env := msg.Envelope
	if env == nil {
		return s
	}

	s.MessageID = env.MessageId
	s.InReplyTo = env.InReplyTo
	s.Subject = env.Subject
	if !env.Date.IsZero() {
		s.Date = env.Date
	}
	if len(env.From) > 0 && env.From[0] != nil {
		s.From = env.From[0].Address()
	}
	if len(env.To) > 0 && env.To[0] != nil {
		s.To = env.To[0].Address()
	}
	return s
}

// IMAPSource adapts an IMAPMailbox with fixed credentials to a discovery source.
type IMAPSource struct {
	mailbox *IMAPMailbox
	creds   mail.Credentials
}

func NewIMAPSource(mailbox *IMAPMailbox, cfg config.DiscoveryConfig) *IMAPSource {
	return &IMAPSource{
		mailbox: mailbox,
		creds: mail.Credentials{
			Email:    cfg.Address,
			Password: cfg.IMAPPassword,
			IMAPHost: cfg.IMAPHost,
			IMAPPort: cfg.IMAPPort,
		},
	}
}

func (s *IMAPSource) Address() string {
	return s.creds.Email
}

func (s *IMAPSource) FetchUnread(ctx context.Context) ([]mail.Summary, error) {
	summaries, err := s.mailbox.FetchUnread(ctx, s.creds)
	if err != nil {
		return nil, fmt.Errorf("discovery mailbox: %w", err)
	}
	return summaries, nil
}
