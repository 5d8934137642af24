package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"helpdesk-mail-go/internal/apperr"
	"helpdesk-mail-go/internal/models"
	"helpdesk-mail-go/internal/reconcile"
	"helpdesk-mail-go/internal/service"
)

// Service is the reconciliation core the handlers expose.
type Service interface {
	ReconcileNewMail(ctx context.Context) error
	State() service.State
	RegisterBot(ctx context.Context, p models.EmailBotParams) (*models.EmailBot, reconcile.Report, error)
	InitializeBot(ctx context.Context, companyID, botID uint) (reconcile.Report, error)
	ListConversations(ctx context.Context, companyID uint, offset, limit int) ([]service.ConversationSummary, int64, error)
	GetConversation(ctx context.Context, conversationID, companyID uint) (*models.EmailConversation, error)
	SendReply(ctx context.Context, conversationID, companyID uint, body string, authorUserID uuid.UUID) (*models.EmailMessage, error)
	ListLogs(ctx context.Context, offset, limit int) ([]models.ReconcileLog, int64, error)
	GetLog(ctx context.Context, id uint) (*models.ReconcileLog, error)
}

// Scheduler is the periodic trigger for ReconcileNewMail.
type Scheduler interface {
	Start() error
	Stop() error
	RunOnce(ctx context.Context) error
	IsRunning() bool
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	svc       Service
	scheduler Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, svc Service, s Scheduler) *Handlers {
	return &Handlers{db: db, svc: svc, scheduler: s}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/reconcile", h.Reconcile)
		api.GET("/reconcile/status", h.ReconcileStatus)

		company := api.Group("/companies/:companyID")
		company.POST("/bots", h.RegisterBot)
		company.POST("/bots/:botID/bootstrap", h.BootstrapBot)
		company.GET("/conversations", h.ListConversations)
		company.GET("/conversations/:id", h.GetConversation)
		company.POST("/conversations/:id/reply", h.SendReply)

		api.GET("/logs", h.GetLogs)
		api.GET("/logs/:id", h.GetLog)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "validation":
		return http.StatusBadRequest
	case "duplicate", "consistency":
		return http.StatusConflict
	case "dependency":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) ErrorResponse {
	status := statusFor(err)
	resp := ErrorResponse{Error: apperr.Kind(err) + "_error", Message: err.Error(), Code: status}
	if status == http.StatusNotFound {
		resp.Error = "not_found"
	}
	if status == http.StatusInternalServerError {
		resp.Message = "Internal server error"
	}
	return resp
}

func respondError(c *gin.Context, err error) {
	resp := errorResponse(err)
	if resp.Code == http.StatusInternalServerError {
		logrus.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(resp.Code, resp)
}

// pathID parses a positive numeric path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name,
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return uint(id), true
}

// pagination reads page and limit query parameters.
func pagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit, (page - 1) * limit
}
