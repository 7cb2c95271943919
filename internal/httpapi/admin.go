package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"sms-gateway/internal/funding"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/pricing"

	"github.com/gin-gonic/gin"
)

// Admin handlers. RBAC: sys_admin only, enforced by the route group.

func (h Handlers) PendingJobs(c *gin.Context) {
	res, err := h.Jobs.ListPending(c.Request.Context(), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) AdminGetJob(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) ApproveJob(c *gin.Context) {
	job, err := h.Jobs.Approve(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) RejectJob(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	job, err := h.Jobs.Reject(c.Request.Context(), c.Param("id"), actor(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) AdminPayments(c *gin.Context) {
	f := funding.Filter{
		Status:   funding.PaymentStatus(strings.ToUpper(c.Query("status"))),
		TenantID: c.Query("tenant_id"),
	}
	res, err := h.Funding.ListAll(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PaymentHistory returns daily successful totals; ?days defaults to 30.
func (h Handlers) PaymentHistory(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days must be an integer")
			return
		}
		days = n
	}
	points, err := h.Funding.History(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	if points == nil {
		points = []funding.HistoryPoint{}
	}
	c.JSON(http.StatusOK, points)
}

func (h Handlers) AdminTiers(c *gin.Context) {
	tiers, err := h.Pricing.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tiers)
}

func (h Handlers) CreateTier(c *gin.Context) {
	var in pricing.TierInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	t, err := h.Pricing.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h Handlers) UpdateTier(c *gin.Context) {
	var in pricing.TierInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	t, err := h.Pricing.Update(c.Request.Context(), actor(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type thresholdRequest struct {
	ApprovalThreshold *int `json:"approval_threshold"`
}

func (h Handlers) UpdateThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ApprovalThreshold == nil {
		badRequest(c, "approval_threshold required")
		return
	}
	t, err := h.Tenants.UpdateApprovalThreshold(c.Request.Context(), c.Param("id"), *req.ApprovalThreshold, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// AdjustCredits performs a manual, audited credit grant.
func (h Handlers) AdjustCredits(c *gin.Context) {
	var req ledger.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	e, err := h.Ledger.Adjust(c.Request.Context(), c.Param("id"), actor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
