package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"sms-gateway/internal/funding"
	"sms-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type initializePaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h Handlers) InitializePayment(c *gin.Context) {
	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json: amount must be a number")
		return
	}
	tenantID, _ := identity(c)
	res, err := h.Funding.Initialize(c.Request.Context(), tenantID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListPayments(c *gin.Context) {
	tenantID, _ := identity(c)
	status := funding.PaymentStatus(strings.ToUpper(c.Query("status")))
	res, err := h.Funding.ListForTenant(c.Request.Context(), tenantID, status, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetPayment(c *gin.Context) {
	tenantID, _ := identity(c)
	tx, err := h.Funding.GetForTenant(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// VerifyPayment lets a tenant returning from checkout settle its payment
// without waiting for the callback.
func (h Handlers) VerifyPayment(c *gin.Context) {
	tenantID, _ := identity(c)
	tx, err := h.Funding.VerifyForTenant(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// PaymentCallback is the gateway webhook; the signature is checked by
// funding.VerifySignature before it runs. Chapa retries anything but 2xx.
func (h Handlers) PaymentCallback(c *gin.Context) {
	var p funding.CallbackPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if p.TxRef == "" {
		// Some gateway versions send tx_ref instead of trx_ref.
		p.TxRef = c.Query("trx_ref")
	}
	tx, err := h.Funding.HandleCallback(c.Request.Context(), p)
	if err != nil {
		logger.FromGin(c).Warn("payment callback", "tx_ref", p.TxRef, "err", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": tx.ID, "payment_status": tx.Status})
}

// --- Pricing ---

func (h Handlers) ListTiers(c *gin.Context) {
	tiers, err := h.Pricing.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": h.Pricing.Currency(), "tiers": tiers})
}

func (h Handlers) Quote(c *gin.Context) {
	n, err := strconv.ParseInt(c.Query("sms_count"), 10, 64)
	if err != nil {
		badRequest(c, "sms_count must be an integer")
		return
	}
	q, err := h.Pricing.Quote(c.Request.Context(), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
