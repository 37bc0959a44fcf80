package tenantauth

import "context"

// RequestInfo describes the inbound request an operation runs for. Login stores ClientIP
// as the last login IP; every audit event copies all three fields.
type RequestInfo struct {
	ClientIP  string
	UserAgent string
	RequestID string
}

type requestInfoKey struct{}

// WithRequestInfo replaces the RequestInfo carried by ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the RequestInfo attached to ctx, or the zero value.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	info := RequestInfoFromContext(ctx)
	info.ClientIP = ip
	return WithRequestInfo(ctx, info)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	info := RequestInfoFromContext(ctx)
	info.UserAgent = userAgent
	return WithRequestInfo(ctx, info)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	info := RequestInfoFromContext(ctx)
	info.RequestID = requestID
	return WithRequestInfo(ctx, info)
}
