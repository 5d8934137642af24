package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/db/dbtest"
	"helpdesk-mail-go/internal/models"
)

var t0 = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *Repository
	bot       *models.EmailBot
	requester *models.EmailRequester
	conv      *models.EmailConversation
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := New(dbtest.New(t))

	bot := &models.EmailBot{CompanyID: 1, Email: "help@acme.io", Password: "pw", SMTPHost: "smtp", SMTPPort: 465, IMAPHost: "imap", IMAPPort: 993}
	require.NoError(t, repo.CreateBot(ctx, bot))

	req, created, err := repo.CreateRequester(ctx, &models.EmailRequester{Email: "alice@customer.com"})
	require.NoError(t, err)
	require.True(t, created)

	conv, created, err := repo.CreateConversation(ctx, &models.EmailConversation{
		CompanyID:        1,
		EmailBotID:       bot.ID,
		EmailRequesterID: req.ID,
		RootMessageID:    "m1",
		Subject:          "Printer",
		LastUpdateAt:     t0,
	})
	require.NoError(t, err)
	require.True(t, created)

	return fixture{repo: repo, bot: bot, requester: req, conv: conv}
}

func (f fixture) message(id string, at time.Time) *models.EmailMessage {
	return &models.EmailMessage{
		EmailConversationID: f.conv.ID,
		EmailRequesterID:    f.requester.ID,
		MessageID:           id,
		Body:                "body " + id,
		Date:                at,
		Type:                models.MessageTypeQuestion,
	}
}

func TestInsertMessageBumpsConversation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m1", t0)))
	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m2", t0.Add(2*time.Hour))))
	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m3", t0.Add(time.Hour))))

	conv, err := f.repo.FindConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.True(t, conv.LastUpdateAt.Equal(t0.Add(2*time.Hour)), "last update never regresses, got %v", conv.LastUpdateAt)

	exists, err := f.repo.MessageExists(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, exists)

	msgs, err := f.repo.ConversationMessages(ctx, f.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m3", "m2"}, []string{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID})
}

func TestInsertMessageDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m1", t0)))
	err := f.repo.InsertMessage(ctx, f.message("m1", t0.Add(time.Hour)))
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	conv, err := f.repo.FindConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.True(t, conv.LastUpdateAt.Equal(t0))
}

func TestInsertMessageMissingConversation(t *testing.T) {
	f := setup(t)
	msg := f.message("orphan", t0)
	msg.EmailConversationID = 999

	err := f.repo.InsertMessage(context.Background(), msg)
	assert.ErrorIs(t, err, apperr.ErrConsistency)
}

func TestDuplicateInsideTransactionKeepsItUsable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m1", t0)))

	err := f.repo.Transaction(ctx, func(tx *Repository) error {
		err := tx.InsertMessage(ctx, f.message("m1", t0))
		require.ErrorIs(t, err, apperr.ErrDuplicate)
		return tx.InsertMessage(ctx, f.message("m2", t0.Add(time.Minute)))
	})
	require.NoError(t, err)

	exists, err := f.repo.MessageExists(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransactionRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := f.repo.Transaction(ctx, func(tx *Repository) error {
		require.NoError(t, tx.InsertMessage(ctx, f.message("m9", t0)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := f.repo.MessageExists(ctx, "m9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRequesterReturnsExistingOnConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	again, created, err := f.repo.CreateRequester(ctx, &models.EmailRequester{Email: "alice@customer.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.requester.ID, again.ID)

	var count int64
	require.NoError(t, f.repo.DB().Model(&models.EmailRequester{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateConversationReturnsExistingOnConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	conv, created, err := f.repo.CreateConversation(ctx, &models.EmailConversation{
		CompanyID:        1,
		EmailBotID:       f.bot.ID,
		EmailRequesterID: f.requester.ID,
		RootMessageID:    "m1",
		Subject:          "Printer again",
		LastUpdateAt:     t0,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.conv.ID, conv.ID)
}

func TestFindBotsByEmails(t *testing.T) {
	f := setup(t)
	bots, err := f.repo.FindBotsByEmails(context.Background(), []string{"HELP@acme.io", "unknown@acme.io"})
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, f.bot.ID, bots[0].ID)

	err = f.repo.CreateBot(context.Background(), &models.EmailBot{CompanyID: 2, Email: "help@acme.io", Password: "x", SMTPHost: "s", SMTPPort: 1, IMAPHost: "i", IMAPPort: 1})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestListConversationsAndLatestMessages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m1", t0)))
	require.NoError(t, f.repo.InsertMessage(ctx, f.message("m2", t0.Add(time.Hour))))

	other, _, err := f.repo.CreateConversation(ctx, &models.EmailConversation{
		CompanyID:        1,
		EmailBotID:       f.bot.ID,
		EmailRequesterID: f.requester.ID,
		RootMessageID:    "n1",
		Subject:          "Older",
		LastUpdateAt:     t0.Add(-time.Hour),
	})
	require.NoError(t, err)

	convs, total, err := f.repo.ListConversations(ctx, 1, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, convs, 2)
	assert.Equal(t, f.conv.ID, convs[0].ID)
	assert.Equal(t, other.ID, convs[1].ID)
	require.NotNil(t, convs[0].Bot)
	assert.Equal(t, "help@acme.io", convs[0].Bot.Email)

	latest, err := f.repo.LatestMessages(ctx, []uint{f.conv.ID, other.ID})
	require.NoError(t, err)
	assert.Equal(t, "m2", latest[f.conv.ID].MessageID)
	_, ok := latest[other.ID]
	assert.False(t, ok)

	none, _, err := f.repo.ListConversations(ctx, 2, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	scoped, err := f.repo.FindCompanyConversation(ctx, f.conv.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, scoped)
}

func TestReconcileLogs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.repo.CreateReconcileLog(ctx, &models.ReconcileLog{EmailBotID: f.bot.ID, Mode: models.ReconcileModePoll, Status: models.ReconcileStatusSuccess, StartedAt: t0, FinishedAt: t0}))
	require.NoError(t, f.repo.CreateReconcileLog(ctx, &models.ReconcileLog{EmailBotID: f.bot.ID, Mode: models.ReconcileModePoll, Status: models.ReconcileStatusFailure, ErrorKind: "dependency", StartedAt: t0, FinishedAt: t0}))

	logs, total, err := f.repo.ListReconcileLogs(ctx, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReconcileStatusFailure, logs[0].Status)
	require.NotNil(t, logs[0].Bot)

	entry, err := f.repo.FindReconcileLog(ctx, logs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "dependency", entry.ErrorKind)

	missing, err := f.repo.FindReconcileLog(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
