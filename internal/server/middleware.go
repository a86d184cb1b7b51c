package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
)

// maxArgLogLen is the maximum length for logged variables before truncation.
const maxArgLogLen = 200

// slowRequestThreshold is the duration above which operations are logged at WARN level.
const slowRequestThreshold = 100 * time.Millisecond

// LoggingMiddleware returns middleware that logs every operation with timing.
// Slow operations (>100ms) are logged at WARN level, failed ones at ERROR.
// Variables are truncated to 200 characters.
// Subscriptions are logged once when they start.
func LoggingMiddleware(logger *slog.Logger) graphql.OperationMiddleware {
	return func(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
		oc := graphql.GetOperationContext(ctx)
		start := time.Now()

		attrs := []any{
			"operation", operationName(oc),
			"type", operationType(oc),
		}
		if vars := formatVariables(oc.Variables); vars != "" {
			attrs = append(attrs, "variables", truncate(vars, maxArgLogLen))
		}

		respond := next(ctx)

		if operationType(oc) == string(ast.Subscription) {
			logger.Debug("subscription started", attrs...)
			return respond
		}

		var once sync.Once
		return func(ctx context.Context) *graphql.Response {
			resp := respond(ctx)
			once.Do(func() {
				logOperation(logger, attrs, time.Since(start), resp)
			})
			return resp
		}
	}
}

func logOperation(logger *slog.Logger, attrs []any, duration time.Duration, resp *graphql.Response) {
	attrs = append(attrs, "duration_ms", duration.Milliseconds())

	switch {
	case resp != nil && len(resp.Errors) > 0:
		attrs = append(attrs, "error", resp.Errors.Error())
		logger.Error("operation failed", attrs...)
	case duration > slowRequestThreshold:
		logger.Warn("slow operation", attrs...)
	default:
		logger.Debug("operation completed", attrs...)
	}
}

func operationName(oc *graphql.OperationContext) string {
	if oc.OperationName != "" {
		return oc.OperationName
	}
	if oc.Operation != nil && oc.Operation.Name != "" {
		return oc.Operation.Name
	}
	return "anonymous"
}

func operationType(oc *graphql.OperationContext) string {
	if oc.Operation == nil {
		return ""
	}
	return string(oc.Operation.Operation)
}

// formatVariables formats operation variables for logging.
func formatVariables(vars map[string]any) string {
	if len(vars) == 0 {
		return ""
	}
	return fmt.Sprintf("%+v", vars)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
