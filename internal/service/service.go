package service

import (
	"context"
	"sync/atomic"
	"time"

	"helpdesk-mail-go/internal/config"
	"helpdesk-mail-go/internal/mail"
	"helpdesk-mail-go/internal/metrics"
	"helpdesk-mail-go/internal/reconcile"
	"helpdesk-mail-go/internal/repository"
	"helpdesk-mail-go/internal/sender"
)

// Mailbox is the per-bot mail transport.
type Mailbox interface {
	FetchUnread(ctx context.Context, creds mail.Credentials) ([]mail.Summary, error)
	FetchRecent(ctx context.Context, creds mail.Credentials, count int) ([]mail.Summary, error)
	ResolveReplyChains(ctx context.Context, creds mail.Credentials, pending []mail.DanglingReply) (map[string][]mail.RawMessage, error)
	TestConnection(ctx context.Context, creds mail.Credentials) error
}

// UnreadSource is the discovery mailbox polled by ReconcileNewMail.
type UnreadSource interface {
	Address() string
	FetchUnread(ctx context.Context) ([]mail.Summary, error)
}

// Sender delivers agent replies.
type Sender interface {
	SendReply(ctx context.Context, creds mail.Credentials, p sender.ReplyParams) (string, error)
	TestConnection(ctx context.Context, creds mail.Credentials) error
}

// State is the orchestrator's position in a poll.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateGrouping
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateGrouping:
		return "grouping"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// Service coordinates mailbox polling, bot bootstrap and agent replies.
type Service struct {
	repo      *repository.Repository
	discovery UnreadSource
	mailbox   Mailbox
	sender    Sender
	resolver  *reconcile.Resolver
	metrics   *metrics.Metrics
	cfg       config.ReconcileConfig
	now       func() time.Time
	state     atomic.Int32
}

// New creates the service
func New(repo *repository.Repository, discovery UnreadSource, mailbox Mailbox, s Sender, m *metrics.Metrics, cfg config.ReconcileConfig) *Service {
	svc := &Service{
		repo:      repo,
		discovery: discovery,
		mailbox:   mailbox,
		sender:    s,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
	svc.resolver = reconcile.NewResolver(func() time.Time { return svc.now() })
	return svc
}

// State returns what the most recent poll is doing.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

// botChains binds a mailbox to one bot's credentials for the resolver.
type botChains struct {
	mailbox Mailbox
	creds   mail.Credentials
}

func (b botChains) ResolveReplyChains(ctx context.Context, pending []mail.DanglingReply) (map[string][]mail.RawMessage, error) {
	return b.mailbox.ResolveReplyChains(ctx, b.creds, pending)
}
