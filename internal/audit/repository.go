// Package audit records the result of every capability change applied
// through the gateway, whether it came from the voice platform, the
// operator endpoints or MQTT.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maxsfamily/stripgate/internal/device"
)

// Sources of an applied change.
const (
	SourcePlatform = "platform"
	SourceOperator = "operator"
	SourceMQTT     = "mqtt"
)

// Result statuses, matching the platform's action_result vocabulary.
const (
	StatusDone  = "DONE"
	StatusError = "ERROR"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one recorded capability change.
type Entry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Source    string    `json:"source"`
	UserID    string    `json:"user_id,omitempty"`
	DeviceID  string    `json:"device_id"`
	Instance  string    `json:"instance"`
	Value     string    `json:"value,omitempty"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// WithResult fills the result fields of e from an apply call. An
// unreachable outcome is recorded as an error even though the state change
// was kept.
func (e Entry) WithResult(out device.Outcome, err error) Entry {
	if err == nil {
		err = out.Err()
	}
	e.Delivered = out.Delivered
	if err != nil {
		e.Status = StatusError
		e.ErrorCode = string(device.CodeOf(err))
	} else {
		e.Status = StatusDone
		e.ErrorCode = ""
	}
	return e
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	DeviceID string
	UserID   string
	Source   string
	Status   string
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps entries in the action_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "act-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	delivered := 0
	if e.Delivered {
		delivered = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_audit
		 (id, request_id, source, user_id, device_id, instance, value, status, error_code, delivered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Source, e.UserID, e.DeviceID, e.Instance, e.Value,
		e.Status, e.ErrorCode, delivered, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"device_id", filter.DeviceID},
		{"user_id", filter.UserID},
		{"source", filter.Source},
		{"status", filter.Status},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM action_audit " + where //nolint:gosec // columns are fixed, values are parameters
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, request_id, source, user_id, device_id, instance, value, status, error_code, delivered, created_at
		FROM action_audit ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // as above
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var delivered int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Source, &e.UserID, &e.DeviceID, &e.Instance,
			&e.Value, &e.Status, &e.ErrorCode, &delivered, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Delivered = delivered != 0
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
