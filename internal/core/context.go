package core

import (
	"context"

	"github.com/JonMunkholm/tableio/internal/logging"
)

type contextKey string

const (
	ctxKeyIPAddress contextKey = "run_ip"
	ctxKeyUserAgent contextKey = "run_ua"
	ctxKeyNodeID    contextKey = "run_node"
)

// ContextWithIPAddress adds the client IP to context for the run history.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to context for the run history.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithNodeID tags the evaluation, and its log lines, with the editor
// node that asked for it.
func ContextWithNodeID(ctx context.Context, id string) context.Context {
	ctx = logging.ContextWith(ctx, "node_id", id)
	return context.WithValue(ctx, ctxKeyNodeID, id)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// GetNodeIDFromContext extracts the node id from context.
func GetNodeIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyNodeID).(string); ok {
		return v
	}
	return ""
}
