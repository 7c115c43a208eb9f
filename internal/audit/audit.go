// Package audit keeps a trail of console actions: sign-ins, sign-outs and
// tenant mutations, with the identity that performed them.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/tenant"
)

// Actions that are not tenant mutations.
const (
	ActionLogin  = "login"
	ActionLogout = "logout"
)

// Entry is one recorded action.  TenantID is zero for actions that concern
// no tenant.
type Entry struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	ActorID    string    `json:"actorId"`
	ActorEmail string    `json:"actorEmail"`
	Action     string    `json:"action"`
	TenantID   int64     `json:"tenantId,omitempty"`
	TenantName string    `json:"tenantName,omitempty"`
}

// FromMutation describes a tenant mutation made by actor.
func FromMutation(actor model.Identity, m tenant.Mutation) Entry {
	return Entry{
		At:         m.At,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     m.Op,
		TenantID:   m.TenantID,
		TenantName: m.Name,
	}
}

// Page sizes for Recent.
const (
	DefaultRecent = 50
	MaxRecent     = 200
)

// Limit maps a requested page size into [1, MaxRecent]; zero or negative
// means DefaultRecent.
func Limit(n int) int {
	switch {
	case n < 1:
		return DefaultRecent
	case n > MaxRecent:
		return MaxRecent
	}
	return n
}

// Recorder stores and lists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Nop records nothing.  It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// MySQL writes entries to the audit_log table.
type MySQL struct{ DB *sql.DB }

func NewMySQL(db *sql.DB) *MySQL { return &MySQL{DB: db} }

// Record inserts e.
func (r *MySQL) Record(ctx context.Context, e Entry) error {
	var tenantID sql.NullInt64
	var tenantName sql.NullString
	if e.TenantID != 0 {
		tenantID = sql.NullInt64{Int64: e.TenantID, Valid: true}
		tenantName = sql.NullString{String: e.TenantName, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_log (occurred_at, actor_id, actor_email, action, tenant_id, tenant_name) VALUES (?,?,?,?,?,?)",
		e.At.UTC(), e.ActorID, e.ActorEmail, e.Action, tenantID, tenantName)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *MySQL) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = Limit(limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, occurred_at, actor_id, actor_email, action, tenant_id, tenant_name FROM audit_log ORDER BY occurred_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			tenantID   sql.NullInt64
			tenantName sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.ActorEmail, &e.Action, &tenantID, &tenantName); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.TenantID, e.TenantName = tenantID.Int64, tenantName.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Logged wraps a Recorder so that write failures are logged and swallowed.
// An unreachable audit database never fails a console action.
type Logged struct {
	Recorder
	Log *zap.Logger
}

func (l Logged) Record(ctx context.Context, e Entry) error {
	if err := l.Recorder.Record(ctx, e); err != nil {
		l.Log.Warn("audit entry dropped", zap.String("action", e.Action), zap.Int64("tenant", e.TenantID), zap.Error(err))
	}
	return nil
}
