package main

import (
	"context"
	"net/http"

	"sms-gateway/internal/auth"
	"sms-gateway/internal/funding"
	"sms-gateway/internal/httpapi"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	authMW        gin.HandlerFunc
	apiKeys       auth.APIKeyResolver
	balances      ledger.BalanceReader
	webhookSecret string
	devLogin      bool
	health        func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.health != nil {
			if err := d.health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Gateway webhook: signature-checked, no bearer token.
	api.POST("/payments/callback", funding.VerifySignature(d.webhookSecret), h.PaymentCallback)

	api.GET("/pricing/tiers", h.ListTiers)
	api.GET("/pricing/quote", h.Quote)

	if d.devLogin {
		api.POST("/auth/login", h.Login)
	}

	// Machine clients.
	api.POST("/p/sms/send", auth.RequireAPIKey(d.apiKeys), ledger.RequirePositiveBalance(d.balances), h.PublicSend)

	// Tenant routes.
	tn := api.Group("")
	tn.Use(d.authMW, rbac.RequireTenant(), rbac.RequireAnyRole(rbac.TenantRoles...))
	{
		tn.GET("/tenant", h.CurrentTenant)

		sms := tn.Group("/sms")
		{
			send := sms.Group("", ledger.RequirePositiveBalance(d.balances))
			send.POST("/single", h.SendSingle)
			send.POST("/group", h.SendGroup)
			send.POST("/bulk", h.SendBulk)

			sms.GET("/jobs", h.ListJobs)
			sms.GET("/jobs/:id", h.GetJob)
			sms.GET("/jobs/:id/recipients", h.JobRecipients)
		}

		credits := tn.Group("/credits")
		{
			credits.GET("/balance", h.Balance)
			credits.GET("/entries", h.Entries)
			credits.GET("/summary", h.CreditSummary)
		}

		payments := tn.Group("/payments")
		{
			payments.POST("/initialize", h.InitializePayment)
			payments.GET("/transactions", h.ListPayments)
			payments.GET("/transactions/:id", h.GetPayment)
			payments.POST("/transactions/:id/verify", h.VerifyPayment)
		}

		senders := tn.Group("/senders")
		{
			senders.POST("", h.CreateSender)
			senders.GET("", h.ListSenders)
			senders.GET("/:id", h.GetSender)
			senders.PUT("/:id", h.UpdateSender)
			senders.DELETE("/:id", h.DeleteSender)
		}

		keys := tn.Group("/api-keys", rbac.RequireAnyRole(rbac.RoleTenantAdmin))
		{
			keys.POST("", h.CreateAPIKey)
			keys.GET("", h.ListAPIKeys)
			keys.DELETE("/:id", h.RevokeAPIKey)
		}
	}

	// Platform operators.
	admin := api.Group("/admin")
	admin.Use(d.authMW, rbac.RequireSysAdmin())
	{
		admin.GET("/sms-jobs/pending", h.PendingJobs)
		admin.GET("/sms-jobs/:id", h.AdminGetJob)
		admin.POST("/sms-jobs/:id/approve", h.ApproveJob)
		admin.POST("/sms-jobs/:id/reject", h.RejectJob)

		admin.GET("/payments/transactions", h.AdminPayments)
		admin.GET("/payments/history", h.PaymentHistory)

		admin.GET("/pricing/tiers", h.AdminTiers)
		admin.POST("/pricing/tiers", h.CreateTier)
		admin.PUT("/pricing/tiers/:id", h.UpdateTier)

		admin.GET("/senders/pending", h.PendingSenders)
		admin.GET("/senders/:id", h.AdminGetSender)
		admin.POST("/senders/:id/approve", h.ApproveSender)
		admin.POST("/senders/:id/reject", h.RejectSender)

		admin.GET("/tenants", h.ListTenants)
		admin.GET("/tenants/:id", h.AdminGetTenant)
		admin.PUT("/tenants/:id/status", h.UpdateTenantStatus)
		admin.PUT("/tenants/:id/threshold", h.UpdateThreshold)
		admin.POST("/tenants/:id/credits", h.AdjustCredits)
	}
}
