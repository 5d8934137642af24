package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"helpdesk-mail-go/internal/models"
)

// Reconcile polls the discovery mailbox once. Per-bot failures do not fail
// the request; they are visible in the logs.
func (h *Handlers) Reconcile(c *gin.Context) {
	if err := h.svc.ReconcileNewMail(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReconcileStatus reports what the orchestrator is doing
func (h *Handlers) ReconcileStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.svc.State().String()})
}

// RegisterBot registers a bot mailbox for the company and imports its history
func (h *Handlers) RegisterBot(c *gin.Context) {
	companyID, ok := pathID(c, "companyID")
	if !ok {
		return
	}
	var req RegisterBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	bot, report, err := h.svc.RegisterBot(c.Request.Context(), models.EmailBotParams{
		CompanyID: companyID,
		Email:     req.Email,
		Password:  req.Password,
		SMTPHost:  req.SMTPHost,
		SMTPPort:  req.SMTPPort,
		IMAPHost:  req.IMAPHost,
		IMAPPort:  req.IMAPPort,
	})
	if err != nil && bot == nil {
		respondError(c, err)
		return
	}

	resp := RegisterBotResponse{Bot: bot, Import: importReport(report)}
	status := http.StatusCreated
	if err != nil {
		e := errorResponse(err)
		resp.Error = &e
		status = e.Code
	}
	c.JSON(status, resp)
}

// BootstrapBot retries the history import of a registered bot
func (h *Handlers) BootstrapBot(c *gin.Context) {
	companyID, ok := pathID(c, "companyID")
	if !ok {
		return
	}
	botID, ok := pathID(c, "botID")
	if !ok {
		return
	}

	report, err := h.svc.InitializeBot(c.Request.Context(), companyID, botID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, importReport(report))
}

// ListConversations returns a company's conversations with pagination
func (h *Handlers) ListConversations(c *gin.Context) {
	companyID, ok := pathID(c, "companyID")
	if !ok {
		return
	}
	page, limit, offset := pagination(c)

	convs, total, err := h.svc.ListConversations(c.Request.Context(), companyID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetConversation returns one conversation with its messages
func (h *Handlers) GetConversation(c *gin.Context) {
	companyID, ok := pathID(c, "companyID")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.svc.GetConversation(c.Request.Context(), id, companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// SendReply sends an agent reply into a conversation
func (h *Handlers) SendReply(c *gin.Context) {
	companyID, ok := pathID(c, "companyID")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}
	author, err := uuid.Parse(req.AuthorUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "author_user_id must be a UUID",
			Code:    http.StatusBadRequest,
		})
		return
	}

	msg, err := h.svc.SendReply(c.Request.Context(), id, companyID, req.Body, author)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
