package reconcile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/mail"
	"helpdesk-mail-go/internal/models"
)

// Store is the transactional persistence surface the resolver writes through.
type Store interface {
	RequesterStore
	MessageExists(ctx context.Context, messageID string) (bool, error)
	FindMessage(ctx context.Context, messageID string) (*models.EmailMessage, error)
	InsertMessage(ctx context.Context, msg *models.EmailMessage) error
	FindConversation(ctx context.Context, id uint) (*models.EmailConversation, error)
	CreateConversation(ctx context.Context, conv *models.EmailConversation) (*models.EmailConversation, bool, error)
}

// ChainResolver reconstructs the full thread behind replies whose ancestor
// is unknown locally. Results are keyed by root message id.
type ChainResolver interface {
	ResolveReplyChains(ctx context.Context, pending []mail.DanglingReply) (map[string][]mail.RawMessage, error)
}

// Report summarizes one resolver run.
type Report struct {
	Received             int
	ConversationsCreated int
	RequestersCreated    int
	MessagesStored       int
	Duplicates           int
	Skipped              int
	Deferred             int
	Unresolved           int
}

// Resolver threads a bot's batch of raw messages into conversations.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a resolver using now as the clock; nil means time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Run files every message of batch into a conversation of bot. Invalid and
// already stored messages are skipped; storage, consistency and chain
// resolution failures abort the run and should roll back the transaction
// behind store. chains may be nil, in which case replies to unknown
// ancestors stay unresolved.
func (r *Resolver) Run(ctx context.Context, store Store, chains ChainResolver, bot *models.EmailBot, batch []mail.RawMessage) (Report, error) {
	rn := &run{
		ctx:      ctx,
		store:    store,
		bot:      bot,
		now:      r.now().UTC(),
		registry: NewRegistry(store),
		filed:    make(map[string]*models.EmailConversation),
		convs:    make(map[uint]*models.EmailConversation),
		log:      logrus.WithFields(logrus.Fields{"bot_id": bot.ID, "bot_email": bot.Email}),
	}
	batch = mail.Dedupe(batch)
	rn.report.Received = len(batch)

	var replies []mail.RawMessage
	for _, m := range batch {
		if !m.IsRoot() {
			replies = append(replies, m)
			continue
		}
		if _, err := rn.fileRoot(m); err != nil {
			return rn.finish(), err
		}
	}

	// Oldest first so in-batch parents are usually filed before their replies.
	sort.SliceStable(replies, func(i, j int) bool { return replies[i].Date.Before(replies[j].Date) })
	deferred, err := rn.fileReplies(replies)
	if err != nil {
		return rn.finish(), err
	}

	if len(deferred) > 0 && chains != nil {
		rn.report.Deferred = len(deferred)
		if deferred, err = rn.resolveChains(chains, deferred); err != nil {
			return rn.finish(), err
		}
	}

	for _, m := range deferred {
		rn.report.Unresolved++
		rn.log.WithFields(logrus.Fields{"message_id": m.MessageID, "reply_to": m.ReplyToMessageID}).
			Warn("Could not resolve the thread of reply, leaving it unfiled")
	}

	return rn.finish(), nil
}

type run struct {
	ctx      context.Context
	store    Store
	bot      *models.EmailBot
	now      time.Time
	registry *Registry
	filed    map[string]*models.EmailConversation
	convs    map[uint]*models.EmailConversation
	report   Report
	log      *logrus.Entry
}

func (rn *run) finish() Report {
	rn.report.RequestersCreated = rn.registry.Created()
	return rn.report
}

// fileRoot anchors a conversation at m and stores m as its first message.
// It returns nil without error when m was skipped.
func (rn *run) fileRoot(m mail.RawMessage) (*models.EmailConversation, error) {
	existing, err := rn.store.FindMessage(rn.ctx, m.MessageID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		rn.duplicate(m)
		conv, err := rn.conversation(existing.EmailConversationID)
		if err != nil {
			return nil, err
		}
		rn.filed[m.MessageID] = conv
		return conv, nil
	}

	requester, err := rn.registry.GetOrCreate(rn.ctx, m.RequesterEmail)
	if err != nil {
		return nil, rn.skip(m, err)
	}

	// Validate the message before anchoring a conversation on it.
	msg, err := rn.build(m, requester.ID)
	if err != nil {
		return nil, rn.skip(m, err)
	}
	conv, err := models.NewEmailConversation(models.EmailConversationParams{
		CompanyID:     rn.bot.CompanyID,
		BotID:         rn.bot.ID,
		RequesterID:   requester.ID,
		RootMessageID: m.MessageID,
		Subject:       m.Subject,
		StartedAt:     m.Date,
	})
	if err != nil {
		return nil, rn.skip(m, err)
	}

	stored, created, err := rn.store.CreateConversation(rn.ctx, conv)
	if err != nil {
		return nil, err
	}
	if created {
		rn.report.ConversationsCreated++
	}
	rn.convs[stored.ID] = stored

	if err := rn.insert(m, msg, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// fileReplies files every reply whose ancestor is known, repeating until no
// more progress is made, and returns the rest.
func (rn *run) fileReplies(replies []mail.RawMessage) ([]mail.RawMessage, error) {
	pending := replies
	for len(pending) > 0 {
		var next []mail.RawMessage
		for _, m := range pending {
			ok, err := rn.fileReply(m)
			if err != nil {
				return nil, err
			}
			if !ok {
				next = append(next, m)
			}
		}
		if len(next) == len(pending) {
			return next, nil
		}
		pending = next
	}
	return nil, nil
}

// fileReply files m next to its ancestor, first looking at what this run
// filed and then at storage. It reports false when the ancestor is unknown.
func (rn *run) fileReply(m mail.RawMessage) (bool, error) {
	if conv, ok := rn.filed[m.ReplyToMessageID]; ok {
		return true, rn.fileInto(m, conv)
	}

	parent, err := rn.store.FindMessage(rn.ctx, m.ReplyToMessageID)
	if err != nil {
		return false, err
	}
	if parent == nil {
		return false, nil
	}
	conv, err := rn.conversation(parent.EmailConversationID)
	if err != nil {
		return false, err
	}
	return true, rn.fileInto(m, conv)
}

func (rn *run) resolveChains(chains ChainResolver, deferred []mail.RawMessage) ([]mail.RawMessage, error) {
	pending := make([]mail.DanglingReply, 0, len(deferred))
	for _, m := range deferred {
		pending = append(pending, mail.DanglingReply{
			MessageID:        m.MessageID,
			ReplyToMessageID: m.ReplyToMessageID,
			RequesterEmail:   m.RequesterEmail,
			Date:             m.Date,
		})
	}

	resolved, err := chains.ResolveReplyChains(rn.ctx, pending)
	if err != nil {
		if !errors.Is(err, apperr.ErrDependency) {
			err = apperr.Dependency("resolve reply chains", err)
		}
		return nil, err
	}

	roots := make([]string, 0, len(resolved))
	for root := range resolved {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	for _, root := range roots {
		if err := rn.fileChain(root, resolved[root]); err != nil {
			return nil, err
		}
	}

	// Chains may have filed the ancestors of replies that were not part of them.
	var rest []mail.RawMessage
	for _, m := range deferred {
		if _, done := rn.filed[m.MessageID]; !done {
			rest = append(rest, m)
		}
	}
	return rn.fileReplies(rest)
}

// fileChain files a reconstructed thread under its root's conversation,
// creating the conversation from the chain's root message when needed.
func (rn *run) fileChain(rootID string, chain []mail.RawMessage) error {
	conv, ok := rn.filed[rootID]
	if !ok {
		existing, err := rn.store.FindMessage(rn.ctx, rootID)
		if err != nil {
			return err
		}
		if existing != nil {
			if conv, err = rn.conversation(existing.EmailConversationID); err != nil {
				return err
			}
		} else {
			root, found := findMessage(chain, rootID)
			if !found {
				rn.log.WithField("root_id", rootID).Warn("Resolved chain does not contain its root, skipping")
				return nil
			}
			root.ReplyToMessageID = ""
			if conv, err = rn.fileRoot(root); err != nil {
				return err
			}
			if conv == nil {
				return nil
			}
		}
	}

	for _, m := range chain {
		if m.MessageID == rootID {
			continue
		}
		if _, done := rn.filed[m.MessageID]; done {
			continue
		}
		if err := rn.fileInto(m, conv); err != nil {
			return err
		}
	}
	return nil
}

func (rn *run) fileInto(m mail.RawMessage, conv *models.EmailConversation) error {
	exists, err := rn.store.MessageExists(rn.ctx, m.MessageID)
	if err != nil {
		return err
	}
	if exists {
		rn.duplicate(m)
		return nil
	}
	msg, err := rn.build(m, conv.EmailRequesterID)
	if err != nil {
		return rn.skip(m, err)
	}
	return rn.insert(m, msg, conv)
}

func (rn *run) build(m mail.RawMessage, requesterID uint) (*models.EmailMessage, error) {
	// Placeholders carry a synthesized date that may come from a later clock.
	if m.Type == models.MessageTypeDeleted && m.Date.After(rn.now) {
		m.Date = rn.now
	}
	subject := m.Subject
	return models.NewEmailMessage(models.EmailMessageParams{
		RequesterID: requesterID,
		MessageID:   m.MessageID,
		Subject:     &subject,
		Body:        m.Body,
		Date:        m.Date,
		Type:        m.Type,
	}, rn.now)
}

func (rn *run) insert(m mail.RawMessage, msg *models.EmailMessage, conv *models.EmailConversation) error {
	msg.EmailConversationID = conv.ID
	if err := rn.store.InsertMessage(rn.ctx, msg); err != nil {
		return rn.skip(m, err)
	}

	rn.report.MessagesStored++
	rn.filed[m.MessageID] = conv
	if m.Date.After(conv.LastUpdateAt) {
		conv.LastUpdateAt = m.Date
	}
	return nil
}

func (rn *run) conversation(id uint) (*models.EmailConversation, error) {
	if conv, ok := rn.convs[id]; ok {
		return conv, nil
	}
	conv, err := rn.store.FindConversation(rn.ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.Consistency("conversation %d referenced by a stored message does not exist", id)
	}
	rn.convs[id] = conv
	return conv, nil
}

// skip absorbs per-message validation and duplicate errors and passes
// anything else through.
func (rn *run) skip(m mail.RawMessage, err error) error {
	switch {
	case errors.Is(err, apperr.ErrDuplicate):
		rn.duplicate(m)
		return nil
	case errors.Is(err, apperr.ErrValidation):
		rn.report.Skipped++
		rn.log.WithField("message_id", m.MessageID).Warnf("Skipping invalid message: %v", err)
		return nil
	default:
		return err
	}
}

func (rn *run) duplicate(m mail.RawMessage) {
	rn.report.Duplicates++
	rn.log.WithField("message_id", m.MessageID).Debug("Message already exists, skipping")
}

func findMessage(chain []mail.RawMessage, id string) (mail.RawMessage, bool) {
	for _, m := range chain {
		if m.MessageID == id {
			return m, true
		}
	}
	return mail.RawMessage{}, false
}
