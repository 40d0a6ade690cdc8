package web

import (
	"context"
	"net/http"

	"github.com/foodform/foodform/internal/core"
	appmw "github.com/foodform/foodform/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for mutation logs.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, appmw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
