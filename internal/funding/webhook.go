package funding

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Signature headers sent by the gateway, checked in order.
const (
	HeaderSignature    = "Chapa-Signature"
	HeaderSignatureAlt = "X-Chapa-Signature"
)

const maxCallbackBody = 64 << 10

// VerifySignature rejects callbacks whose body is not signed with secret
// (hex HMAC-SHA256). The body is restored for the next handler.
func VerifySignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
			return
		}

		sig := c.GetHeader(HeaderSignature)
		if sig == "" {
			sig = c.GetHeader(HeaderSignatureAlt)
		}
		if sig == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook signature"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !ValidSignature(body, sig, secret) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid webhook signature"})
			return
		}
		c.Next()
	}
}

// ValidSignature accepts raw hex or "sha256=<hex>".
func ValidSignature(payload []byte, signature, secret string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(payload, secret))
}

func Sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
