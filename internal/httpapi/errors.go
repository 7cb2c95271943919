package httpapi

import (
	"net/http"
	"strconv"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/auth"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
)

// writeError maps the apperr taxonomy onto HTTP. Unclassified errors are
// logged and hidden behind a generic message.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation, apperr.KindBusinessRule:
		status = http.StatusBadRequest
	case apperr.KindUpstream:
		status = http.StatusBadGateway
	case apperr.KindUnknown:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": apperr.KindOf(err).String()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": apperr.KindValidation.String()})
}

// pageFrom reads ?page=&size=. Garbage falls back to the defaults.
func pageFrom(c *gin.Context) utils.Page {
	n, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return utils.Page{Number: n, Size: size}.Normalize()
}

// identity returns the tenant and user of an authenticated request. The rbac
// middleware has already rejected requests without them.
func identity(c *gin.Context) (tenantID, userID string) {
	ctx := c.Request.Context()
	tenantID, _ = auth.TenantID(ctx)
	userID, _ = auth.UserID(ctx)
	return tenantID, userID
}

func actor(c *gin.Context) audit.Actor {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}
