package modkit

import (
	"context"
)

// Context keys for modkit values.
type contextKey string

const (
	contextKeyRequestID contextKey = "modkit:request_id"
	contextKeyChatID    contextKey = "modkit:chat_id"
)

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithChatID records the chat the triggering event came from.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, contextKeyChatID, chatID)
}

// GetChatID retrieves the chat ID from context.
func GetChatID(ctx context.Context) (int64, bool) {
	if v := ctx.Value(contextKeyChatID); v != nil {
		if id, ok := v.(int64); ok {
			return id, true
		}
	}
	return 0, false
}

// AuditContext holds all audit-related information from context.
type AuditContext struct {
	RequestID string
	ChatID    *int64
}

// GetAuditContext extracts all audit information from context.
func GetAuditContext(ctx context.Context) AuditContext {
	ac := AuditContext{RequestID: GetRequestID(ctx)}
	if id, ok := GetChatID(ctx); ok {
		ac.ChatID = &id
	}
	return ac
}

// WithAuditContext adds all audit information to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	if ac.ChatID != nil {
		ctx = WithChatID(ctx, *ac.ChatID)
	}
	return ctx
}

// decorate copies the audit context into an entry payload.
func (ac AuditContext) decorate(payload map[string]any) map[string]any {
	if payload == nil {
		payload = make(map[string]any)
	}
	if ac.RequestID != "" {
		payload["request_id"] = ac.RequestID
	}
	if ac.ChatID != nil {
		payload["chat_id"] = *ac.ChatID
	}
	return payload
}
