package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/db/dbtest"
	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/reconcile"
	"helpdesk-mail-go/internal/service"
)

type fakeService struct {
	reconcileErr error
	registerBot  *models.EmailBot
	registerErr  error
	registered   models.EmailBotParams
	replyErr     error
	replyBody    string
	replyAuthor  uuid.UUID
	companyID    uint
	offset       int
	limit        int
}

func (f *fakeService) ReconcileNewMail(context.Context) error { return f.reconcileErr }
func (f *fakeService) State() service.State                   { return service.StateIdle }

func (f *fakeService) RegisterBot(_ context.Context, p models.EmailBotParams) (*models.EmailBot, reconcile.Report, error) {
	f.registered = p
	return f.registerBot, reconcile.Report{Received: 3, MessagesStored: 3}, f.registerErr
}

func (f *fakeService) InitializeBot(_ context.Context, companyID, botID uint) (reconcile.Report, error) {
	if botID != 5 {
		return reconcile.Report{}, apperr.NotFound("bot %d", botID)
	}
	return reconcile.Report{MessagesStored: 2}, nil
}

func (f *fakeService) ListConversations(_ context.Context, companyID uint, offset, limit int) ([]service.ConversationSummary, int64, error) {
	f.companyID, f.offset, f.limit = companyID, offset, limit
	return []service.ConversationSummary{{ID: 1, Subject: "Printer"}}, 41, nil
}

func (f *fakeService) GetConversation(_ context.Context, id, companyID uint) (*models.EmailConversation, error) {
	if id != 1 {
		return nil, apperr.NotFound("conversation %d", id)
	}
	return &models.EmailConversation{ID: 1, CompanyID: companyID, Subject: "Printer"}, nil
}

func (f *fakeService) SendReply(_ context.Context, id, companyID uint, body string, author uuid.UUID) (*models.EmailMessage, error) {
	f.replyBody, f.replyAuthor = body, author
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return &models.EmailMessage{ID: 9, EmailConversationID: id, Body: body, Type: models.MessageTypeAnswer, UserID: &author}, nil
}

func (f *fakeService) ListLogs(context.Context, int, int) ([]models.ReconcileLog, int64, error) {
	return nil, 0, errors.New("connection reset")
}

func (f *fakeService) GetLog(_ context.Context, id uint) (*models.ReconcileLog, error) {
	return &models.ReconcileLog{ID: id, Status: models.ReconcileStatusSuccess}, nil
}

type fakeScheduler struct {
	running bool
	runErr  error
}

func (f *fakeScheduler) Start() error {
	if f.running {
		return errors.New("scheduler is already running")
	}
	f.running = true
	return nil
}
func (f *fakeScheduler) Stop() error                   { f.running = false; return nil }
func (f *fakeScheduler) RunOnce(context.Context) error { return f.runErr }
func (f *fakeScheduler) IsRunning() bool               { return f.running }
func (f *fakeScheduler) GetNextRun() time.Time         { return time.Time{} }
func (f *fakeScheduler) GetLastRun() time.Time         { return time.Time{} }

func setup(t *testing.T) (*gin.Engine, *fakeService, *fakeScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &fakeService{}
	sched := &fakeScheduler{}
	router := gin.New()
	NewHandlers(dbtest.New(t), svc, sched).SetupRoutes(router)
	return router, svc, sched
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStatusForTaxonomy(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperr.Validation("bad")))
	assert.Equal(t, http.StatusNotFound, statusFor(apperr.NotFound("missing")))
	assert.Equal(t, http.StatusConflict, statusFor(apperr.Duplicate("again")))
	assert.Equal(t, http.StatusConflict, statusFor(apperr.Consistency("broken")))
	assert.Equal(t, http.StatusBadGateway, statusFor(apperr.Dependency("smtp", errors.New("down"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := setup(t)
	w := do(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "idle", resp.Reconcile)
	assert.Equal(t, "stopped", resp.Metrics["scheduler"])
}

func TestReconcileEndpoint(t *testing.T) {
	router, svc, _ := setup(t)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/reconcile", "").Code)

	svc.reconcileErr = apperr.Dependency("discovery mailbox", errors.New("timeout"))
	w := do(router, http.MethodPost, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "dependency_error", resp.Error)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestRegisterBot(t *testing.T) {
	router, svc, _ := setup(t)
	body := `{"email":"help@acme.io","password":"pw","smtp_host":"smtp","smtp_port":465,"imap_host":"imap","imap_port":993}`

	svc.registerBot = &models.EmailBot{ID: 5, CompanyID: 3, Email: "help@acme.io", Password: "secret"}
	w := do(router, http.MethodPost, "/api/v1/companies/3/bots", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 3, svc.registered.CompanyID)
	assert.NotContains(t, w.Body.String(), "secret")

	var resp RegisterBotResponse
	decode(t, w, &resp)
	assert.Equal(t, 3, resp.Import.MessagesStored)
	assert.Nil(t, resp.Error)

	svc.registerErr = apperr.Dependency("fetch unread mail", errors.New("locked"))
	w = do(router, http.MethodPost, "/api/v1/companies/3/bots", body)
	require.Equal(t, http.StatusBadGateway, w.Code)
	decode(t, w, &resp)
	require.NotNil(t, resp.Bot)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "dependency_error", resp.Error.Error)

	svc.registerBot, svc.registerErr = nil, apperr.Duplicate("bot help@acme.io is already registered")
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/api/v1/companies/3/bots", body).Code)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/companies/3/bots", `{"email":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/companies/abc/bots", body).Code)
}

func TestBootstrapBot(t *testing.T) {
	router, _, _ := setup(t)

	w := do(router, http.MethodPost, "/api/v1/companies/3/bots/5/bootstrap", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report ImportReport
	decode(t, w, &report)
	assert.Equal(t, 2, report.MessagesStored)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/v1/companies/3/bots/6/bootstrap", "").Code)
}

func TestConversations(t *testing.T) {
	router, svc, _ := setup(t)

	w := do(router, http.MethodGet, "/api/v1/companies/3/conversations?page=3&limit=20", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, svc.companyID)
	assert.Equal(t, 40, svc.offset)
	assert.Equal(t, 20, svc.limit)

	var list struct {
		Conversations []service.ConversationSummary `json:"conversations"`
		Pagination    struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, w, &list)
	require.Len(t, list.Conversations, 1)
	assert.EqualValues(t, 41, list.Pagination.Total)

	do(router, http.MethodGet, "/api/v1/companies/3/conversations?limit=1000", "")
	assert.Equal(t, 50, svc.limit)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/companies/3/conversations/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/companies/3/conversations/2", "").Code)
}

func TestSendReplyEndpoint(t *testing.T) {
	router, svc, _ := setup(t)
	author := uuid.New()

	w := do(router, http.MethodPost, "/api/v1/companies/3/conversations/1/reply", `{"body":"On it","author_user_id":"`+author.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "On it", svc.replyBody)
	assert.Equal(t, author, svc.replyAuthor)

	w = do(router, http.MethodPost, "/api/v1/companies/3/conversations/1/reply", `{"body":"On it","author_user_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.replyErr = apperr.Dependency("send reply", errors.New("550"))
	w = do(router, http.MethodPost, "/api/v1/companies/3/conversations/1/reply", `{"body":"On it","author_user_id":"`+author.String()+`"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLogs(t *testing.T) {
	router, _, _ := setup(t)

	w := do(router, http.MethodGet, "/api/v1/logs", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "Internal server error", resp.Message)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/logs/4", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/logs/0", "").Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	router, _, sched := setup(t)

	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/scheduler/start", "").Code)
	assert.True(t, sched.running)
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/api/v1/scheduler/start", "").Code)

	w := do(router, http.MethodGet, "/api/v1/scheduler/status", "")
	assert.Contains(t, w.Body.String(), `"running"`)

	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/scheduler/stop", "").Code)
	assert.False(t, sched.running)

	sched.runErr = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(router, http.MethodPost, "/api/v1/scheduler/run", "").Code)
}
