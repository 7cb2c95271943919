package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxTenantID
	ctxRole
	ctxSenderID
)

func WithIdentity(ctx context.Context, userID, tenantID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

// WithSender pins the sender an API key is bound to.
func WithSender(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, ctxSenderID, senderID)
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func TenantID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxTenantID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("tenant_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

func SenderID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxSenderID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("sender_id not in context")
}
