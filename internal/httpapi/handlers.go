package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sms-gateway/internal/auth"
	"sms-gateway/internal/funding"
	"sms-gateway/internal/jobs"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/pricing"
	"sms-gateway/internal/reporting"
	"sms-gateway/internal/tenant"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Jobs      *jobs.Service
	Ledger    *ledger.Service
	Funding   *funding.Service
	Pricing   *pricing.Service
	Tenants   *tenant.Service
	Reporting *reporting.Service

	// Uploads caps concurrent bulk uploads per tenant; nil means no cap.
	Uploads       UploadLimiter
	MaxUploadSize int64
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair without checking credentials. Only mounted
// outside production.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		badRequest(c, "user_id and role required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- SMS ---

func (h Handlers) SendSingle(c *gin.Context) {
	var req jobs.SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	tenantID, userID := identity(c)
	job, err := h.Jobs.SendSingle(c.Request.Context(), tenantID, userID, jobs.SourceManual, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h Handlers) SendGroup(c *gin.Context) {
	var req jobs.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	tenantID, userID := identity(c)
	job, err := h.Jobs.SendToGroup(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// SendBulk takes a multipart form with sender_id, message, an optional
// RFC 3339 scheduled_at and the CSV in "file".
func (h Handlers) SendBulk(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, userID := identity(c)

	if h.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		badRequest(c, "CSV file is required in form field \"file\"")
		return
	}
	if h.MaxUploadSize > 0 && fh.Size > h.MaxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	scheduledAt, ok := formTime(c, "scheduled_at")
	if !ok {
		return
	}

	if h.Uploads != nil {
		release, err := h.Uploads.Acquire(ctx, tenantID)
		if errors.Is(err, ErrTooManyUploads) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		defer release()
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	job, err := h.Jobs.SendBulk(ctx, tenantID, userID, jobs.BulkRequest{
		SenderID:    c.PostForm("sender_id"),
		Message:     c.PostForm("message"),
		ScheduledAt: scheduledAt,
		File:        f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

type publicSendRequest struct {
	Phone       string     `json:"phone_number"`
	Message     string     `json:"message"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PublicSend is the API-key endpoint. The sender is the one the key is bound to.
func (h Handlers) PublicSend(c *gin.Context) {
	var req publicSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	tenantID, userID := identity(c)
	senderID, err := auth.SenderID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key has no sender"})
		return
	}
	job, err := h.Jobs.SendSingle(ctx, tenantID, userID, jobs.SourceAPI, jobs.SingleRequest{
		SenderID:    senderID,
		Phone:       req.Phone,
		Message:     req.Message,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job_id": job.ID, "status": job.Status, "total_segments": job.TotalSegments})
}

func (h Handlers) ListJobs(c *gin.Context) {
	tenantID, _ := identity(c)
	f := jobs.Filter{Status: jobs.JobStatus(strings.ToUpper(c.Query("status")))}
	res, err := h.Jobs.ListForTenant(c.Request.Context(), tenantID, f, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetJob(c *gin.Context) {
	tenantID, _ := identity(c)
	job, err := h.Jobs.GetForTenant(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) JobRecipients(c *gin.Context) {
	tenantID, _ := identity(c)
	res, err := h.Jobs.Recipients(c.Request.Context(), tenantID, c.Param("id"), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Credits ---

func (h Handlers) Balance(c *gin.Context) {
	tenantID, _ := identity(c)
	bal, err := h.Ledger.Balance(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) Entries(c *gin.Context) {
	tenantID, _ := identity(c)
	res, err := h.Ledger.Entries(c.Request.Context(), tenantID, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreditSummary accepts optional RFC 3339 from/to query parameters.
func (h Handlers) CreditSummary(c *gin.Context) {
	tenantID, _ := identity(c)
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	out, err := h.Reporting.CreditSummary(c.Request.Context(), reporting.CreditSummaryRequest{
		TenantID: tenantID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Tenant ---

func (h Handlers) CurrentTenant(c *gin.Context) {
	tenantID, _ := identity(c)
	t, err := h.Tenants.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type createAPIKeyRequest struct {
	SenderID string `json:"sender_id"`
	Name     string `json:"name"`
}

// CreateAPIKey returns the raw key once; only its hash is stored.
func (h Handlers) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	tenantID, _ := identity(c)
	key, err := h.Tenants.CreateAPIKey(c.Request.Context(), tenantID, req.SenderID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h Handlers) ListAPIKeys(c *gin.Context) {
	tenantID, _ := identity(c)
	res, err := h.Tenants.ListAPIKeys(c.Request.Context(), tenantID, pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) RevokeAPIKey(c *gin.Context) {
	tenantID, _ := identity(c)
	if err := h.Tenants.RevokeAPIKey(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(c, key+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}

func formTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(c, key+" must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}
