package core

import (
	"context"
	"log/slog"

	"github.com/foodform/foodform/internal/logging"
)

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithIPAddress adds the client IP address to context for mutation logs.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to context for mutation logs.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIPAddressFromContext extracts the client IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts the client User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// opLogger returns the request logger with the table and whatever client
// metadata the context carries.
func opLogger(ctx context.Context, table string) *slog.Logger {
	args := []any{"table", table}
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		args = append(args, "ip", ip)
	}
	if ua := GetUserAgentFromContext(ctx); ua != "" {
		args = append(args, "user_agent", ua)
	}
	return logging.WithFields(ctx, args...)
}
