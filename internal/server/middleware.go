package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// getSessionFromContext retrieves the session context from the request context.
// The session is stored as a value to keep the request lifecycle separate from
// the session lifecycle.
func getSessionFromContext(ctx context.Context) (*session.Context, error) {
	sessionCtx, ok := ctx.Value(sessionContextKey).(*session.Context)
	if !ok || sessionCtx == nil {
		return nil, fmt.Errorf("session context not found in request context")
	}
	return sessionCtx, nil
}

// createSessionInjectionMiddleware attaches the caller's session context to
// every request, creating the session on first use
func createSessionInjectionMiddleware(sessionMgr *session.Manager) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			sessionCtx := sessionMgr.GetOrCreateSession(sessionID(req))

			// Scope mappings started by this request run under the session's
			// own context, so cancelling the request does not stop them
			ctx = context.WithValue(ctx, sessionContextKey, sessionCtx)

			return next(ctx, method, req)
		}
	}
}

// createLoggingMiddleware logs every MCP method call
func createLoggingMiddleware(logger *zap.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			log := logger.With(zap.String("session", sessionID(req)), zap.String("method", method))

			log.Debug("request")

			result, err := next(ctx, method, req)

			duration := time.Since(start)
			if err != nil {
				log.Warn("response", zap.Duration("duration", duration), zap.Error(err))
			} else if res, ok := result.(*mcp.CallToolResult); ok && res.IsError {
				log.Warn("response", zap.Duration("duration", duration), zap.Bool("tool_error", true))
			} else {
				log.Info("response", zap.Duration("duration", duration))
			}

			return result, err
		}
	}
}

func sessionID(req mcp.Request) string {
	if ss := req.GetSession(); ss != nil {
		return ss.ID()
	}
	return ""
}
