package httpapi

import (
	"net/http"

	"sms-gateway/internal/tenant"

	"github.com/gin-gonic/gin"
)

func (h Handlers) CreateSender(c *gin.Context) {
	var req tenant.SenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	tenantID, _ := identity(c)
	s, err := h.Tenants.CreateSender(c.Request.Context(), tenantID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h Handlers) ListSenders(c *gin.Context) {
	tenantID, _ := identity(c)
	res, err := h.Tenants.ListSenders(c.Request.Context(), tenantID, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetSender(c *gin.Context) {
	tenantID, _ := identity(c)
	s, err := h.Tenants.GetSender(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSender resubmits a pending or rejected sender for review.
func (h Handlers) UpdateSender(c *gin.Context) {
	var req tenant.SenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	tenantID, _ := identity(c)
	s, err := h.Tenants.UpdateSender(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) DeleteSender(c *gin.Context) {
	tenantID, _ := identity(c)
	if err := h.Tenants.DeleteSender(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) PendingSenders(c *gin.Context) {
	res, err := h.Tenants.ListPendingSenders(c.Request.Context(), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) AdminGetSender(c *gin.Context) {
	s, err := h.Tenants.FindSender(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) ApproveSender(c *gin.Context) {
	s, err := h.Tenants.ApproveSender(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type senderRejectRequest struct {
	Reason string `json:"reason"`
}

// RejectSender accepts an empty body; the reason is optional.
func (h Handlers) RejectSender(c *gin.Context) {
	var req senderRejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	s, err := h.Tenants.RejectSender(c.Request.Context(), c.Param("id"), req.Reason, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) ListTenants(c *gin.Context) {
	res, err := h.Tenants.List(c.Request.Context(), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) AdminGetTenant(c *gin.Context) {
	t, err := h.Tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type tenantStatusRequest struct {
	Status tenant.Status `json:"status"`
}

func (h Handlers) UpdateTenantStatus(c *gin.Context) {
	var req tenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		badRequest(c, "status required")
		return
	}
	t, err := h.Tenants.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
