// Package auditpg persists audit entries to PostgreSQL.
package auditpg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tranvh/authgate/internal/audit"
)

// Sink appends audit entries to the audit_entries table. Writes are
// best effort: a failed insert is logged and dropped, never retried and
// never surfaced to the login flow.
type Sink struct {
	db      *pgxpool.Pool
	timeout time.Duration
	log     *zap.Logger
}

// NewSink returns a Sink writing through db.
func NewSink(db *pgxpool.Pool, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: db, timeout: 5 * time.Second, log: log}
}

// Record inserts one entry.
func (s *Sink) Record(ctx context.Context, entry audit.Entry) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_entries (id, user_id, user_name, action, origin, request_path, ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.UserName, entry.Action,
		entry.Origin, entry.RequestPath, entry.IP, entry.Timestamp,
	)
	if err != nil {
		s.log.Warn("audit insert failed",
			zap.String("action", entry.Action),
			zap.String("user_id", entry.UserID),
			zap.Error(err),
		)
	}
}
