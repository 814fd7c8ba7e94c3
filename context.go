package authgate

import "context"

type clientIPContextKey struct{}
type requestPathContextKey struct{}
type originContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine stamps
// it onto every audit entry emitted for the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRequestPath attaches the request path to ctx for audit entries.
func WithRequestPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, requestPathContextKey{}, path)
}

// WithOrigin attaches the handler identifier (the controller/action
// equivalent) to ctx for audit entries.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func requestPathFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	path, _ := ctx.Value(requestPathContextKey{}).(string)
	return path
}

func originFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	origin, _ := ctx.Value(originContextKey{}).(string)
	return origin
}
