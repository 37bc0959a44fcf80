package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/ids"
)

// AuditSink writes audit events to auth_audit_log. Write failures are logged and dropped
// so the dispatcher never blocks on the database.
type AuditSink struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ tenantauth.AuditSink = (*AuditSink)(nil)

func NewAuditSink(pool *pgxpool.Pool, l *zap.Logger) *AuditSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditSink{pool: pool, log: l}
}

func (s *AuditSink) Emit(ctx context.Context, ev tenantauth.AuditEvent) {
	if s == nil || s.pool == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var details []byte
	if len(ev.Details) > 0 {
		var err error
		if details, err = json.Marshal(ev.Details); err != nil {
			s.log.Warn("audit details not encodable", zap.String("event_type", ev.EventType), zap.Error(err))
			details = nil
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_audit_log (id, tenant_id, user_id, username, event_type, ip_address, user_agent,
			request_id, success, error_code, failure_reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.TenantID, ev.UserID, ev.Username, ev.EventType, truncate(ev.IP, 45), truncate(ev.UserAgent, 500),
		truncate(ev.RequestID, 100), ev.Success, ev.Error, truncate(ev.FailureReason, 255), details, ev.Timestamp)
	if err != nil {
		s.log.Error("audit write failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.EventType),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
