package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/config"
	"helpdesk-mail-go/internal/mail"
)

const (
	gmailUser        = "me"
	gmailUnreadQuery = "is:unread in:inbox"
	gmailUnreadLabel = "UNREAD"
)

// GmailScopes are the OAuth2 scopes the discovery source needs.
var GmailScopes = []string{gmail.GmailModifyScope}

// OAuthConfig builds the OAuth2 client configuration for the Gmail API.
func OAuthConfig(cfg config.DiscoveryConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       GmailScopes,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
	}
}

// GmailSource reads the discovery mailbox through the Gmail REST API.
type GmailSource struct {
	service  *gmail.Service
	address  string
	markSeen bool
}

// NewGmailSource creates a discovery source from a refresh token
func NewGmailSource(ctx context.Context, cfg config.DiscoveryConfig, markSeen bool) (*GmailSource, error) {
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	tokenSource := OAuthConfig(cfg).TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailSource{service: service, address: cfg.Address, markSeen: markSeen}, nil
}

func (g *GmailSource) Address() string {
	return g.address
}

// FetchUnread returns unread INBOX messages and removes their UNREAD label.
func (g *GmailSource) FetchUnread(ctx context.Context) ([]mail.Summary, error) {
	var ids []string
	err := g.service.Users.Messages.List(gmailUser).Q(gmailUnreadQuery).Context(ctx).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, apperr.Dependency("list unread Gmail messages", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	summaries := make([]mail.Summary, 0, len(ids))
	for _, id := range ids {
		msg, err := g.service.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, apperr.Dependency("get Gmail message "+id, err)
		}
		summaries = append(summaries, summaryFromGmail(msg))
	}

	if g.markSeen {
		req := &gmail.BatchModifyMessagesRequest{Ids: ids, RemoveLabelIds: []string{gmailUnreadLabel}}
		if err := g.service.Users.Messages.BatchModify(gmailUser, req).Context(ctx).Do(); err != nil {
			return nil, apperr.Dependency("mark Gmail messages read", err)
		}
	}

	logrus.WithField("mailbox", g.address).Debugf("Fetched %d unread messages from Gmail", len(summaries))
	return summaries, nil
}

func summaryFromGmail(msg *gmail.Message) mail.Summary {
	s := mail.Summary{}
	if msg.InternalDate > 0 {
		s.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return s
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "message-id":
			s.MessageID = h.Value
		case "in-reply-to":
			s.InReplyTo = h.Value
		case "subject":
			s.Subject = h.Value
		case "from":
			s.From = firstAddress(h.Value)
		case "to":
			s.To = firstAddress(h.Value)
		}
	}

	var plain, html string
	collectGmailParts(msg.Payload, &plain, &html)
	s.Body = pick(plain, html)
	return s
}

func collectGmailParts(part *gmail.MessagePart, plain, html *string) {
	if part.Body != nil && part.Body.Data != "" {
		content := decodeGmailData(part.Body.Data)
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain") && *plain == "":
			*plain = content
		case strings.HasPrefix(part.MimeType, "text/html") && *html == "":
			*html = content
		}
	}
	for _, sub := range part.Parts {
		collectGmailParts(sub, plain, html)
	}
}

func decodeGmailData(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// firstAddress returns the bare address of the first entry of a header
// address list, or the raw value when it does not parse.
func firstAddress(value string) string {
	list, err := gomail.ParseAddressList(value)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(value)
	}
	return list[0].Address
}
