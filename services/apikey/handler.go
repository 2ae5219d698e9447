package apikey

import (
	"net/http"

	"edgegate/pkg/db/pagination"
	"edgegate/pkg/errutil"
	"edgegate/services/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	svc   *Service
	guard *session.Guard
}

type HandlerParams struct {
	fx.In
	Svc   *Service
	Guard *session.Guard
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Svc, guard: p.Guard}
}

func registerRoutes(router *gin.Engine, h *Handler) {
	router.GET("/apikeys", h.listKeys)
	router.POST("/apikeys", h.issueKey)
	router.POST("/apikeys/revoke", h.revokeKey)
	router.DELETE("/apikeys", h.deleteKey)
}

func (h *Handler) listKeys(c *gin.Context) {
	accountID := c.Query("accountId")
	if _, err := h.guard.AuthorizeAccount(c, accountID); err != nil {
		c.Error(err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err, errutil.WithErr(err)))
		return
	}

	keys, pageInfo, err := h.svc.List(c.Request.Context(), accountID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"apiKeys": keys, "pageInfo": pageInfo})
}

type issueKeyRequest struct {
	AccountID string   `json:"accountId" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Scopes    []string `json:"scopes"`
}

func (h *Handler) issueKey(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	record, plaintext, err := h.svc.Issue(c.Request.Context(), IssueInput{
		AccountID: req.AccountID,
		Name:      req.Name,
		Scopes:    req.Scopes,
	})
	if err != nil {
		c.Error(err)
		return
	}

	// The plaintext key appears in this response and nowhere else.
	c.JSON(http.StatusCreated, gin.H{"apiKey": record, "key": plaintext})
}

type keyIDRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	KeyID     string `json:"keyId" binding:"required"`
}

func (h *Handler) revokeKey(c *gin.Context) {
	var req keyIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	record, err := h.svc.Revoke(c.Request.Context(), req.AccountID, req.KeyID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"apiKey": record})
}

func (h *Handler) deleteKey(c *gin.Context) {
	var req keyIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), req.AccountID, req.KeyID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
