package domain

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"edgegate/pkg/config"
	"edgegate/pkg/db/pagination"
	"edgegate/pkg/errutil"
	"edgegate/services/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// ResolverTokenHeader authenticates the infrastructure-only resolution path.
const ResolverTokenHeader = "x-domain-resolver-token"

type Handler struct {
	svc   *Service
	guard *session.Guard
	cfg   *config.Config
}

type HandlerParams struct {
	fx.In
	Svc    *Service
	Guard  *session.Guard
	Config *config.Config
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Svc, guard: p.Guard, cfg: p.Config}
}

func registerRoutes(router *gin.Engine, h *Handler) {
	router.GET("/domains", h.getDomains)
	router.POST("/domains", h.createDomain)
	router.DELETE("/domains", h.deleteDomain)
	router.POST("/domains/verify", h.verifyDomain)
}

// getDomains serves two callers: the edge router resolving a hostname
// (?domain= plus the shared-secret header) and tenant administrators
// listing their domains (?accountId= plus a session).
func (h *Handler) getDomains(c *gin.Context) {
	if hostname := c.Query("domain"); hostname != "" {
		if !h.resolverTokenValid(c.GetHeader(ResolverTokenHeader)) {
			c.Error(errutil.Unauthorized("invalid resolver token", nil))
			return
		}

		binding, err := h.svc.ResolveActive(c.Request.Context(), hostname)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"domain": binding})
		return
	}

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

	domains, pageInfo, err := h.svc.List(c.Request.Context(), accountID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"domains": domains, "pageInfo": pageInfo})
}

type createDomainRequest struct {
	AccountID          string `json:"accountId" binding:"required"`
	Domain             string `json:"domain" binding:"required"`
	Slug               string `json:"slug"`
	DNSRecordType      string `json:"dnsRecordType"`
	VerificationTarget string `json:"verificationTarget"`
}

func (h *Handler) createDomain(c *gin.Context) {
	var req createDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	record, err := h.svc.Create(c.Request.Context(), CreateInput{
		AccountID:          req.AccountID,
		Hostname:           req.Domain,
		Slug:               req.Slug,
		RecordType:         RecordType(req.DNSRecordType),
		VerificationTarget: req.VerificationTarget,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"domain": record})
}

type domainIDRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	DomainID  string `json:"domainId" binding:"required"`
}

func (h *Handler) deleteDomain(c *gin.Context) {
	var req domainIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), req.AccountID, req.DomainID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) verifyDomain(c *gin.Context) {
	var req domainIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if _, err := h.guard.AuthorizeAccount(c, req.AccountID); err != nil {
		c.Error(err)
		return
	}

	record, result, err := h.svc.Verify(c.Request.Context(), req.AccountID, req.DomainID)
	if err != nil {
		// Transport failures carry the persisted record so the caller can
		// see the recorded error state alongside the 502.
		var base errutil.BaseError
		if errors.As(err, &base) && base.Code == errutil.StatusBadGateway && record != nil {
			reason := ""
			if record.LastError != nil {
				reason = *record.LastError
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  base.Message,
				"domain": record,
				"verification": gin.H{
					"matched": false,
					"reason":  reason,
				},
			})
			return
		}

		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"domain": record, "verification": result})
}

func (h *Handler) resolverTokenValid(token string) bool {
	secret := h.cfg.Gateway.ResolverSecret
	if secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
