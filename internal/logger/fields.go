package logger

import "go.uber.org/zap"

func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

func TenantCode(v string) zap.Field { return zap.String("tenant_code", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func ClientID(v string) zap.Field { return zap.String("client_id", v) }

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func CorrelationID(v string) zap.Field { return zap.String("correlation_id", v) }

func TokenID(v string) zap.Field { return zap.String("jti", v) }

// Reason records an internal rejection reason that is never shown to callers.
func Reason(v string) zap.Field { return zap.String("reason", v) }

func Op(v string) zap.Field { return zap.String("op", v) }
