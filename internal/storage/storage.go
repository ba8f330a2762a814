// Package storage defines the narrow persistence boundary consumed by the
// entity store.
//
// The store loads everything once at startup and then issues one repository
// call per in-memory mutation (write-through). The repository never reads
// back incrementally; reconstruction happens only through LoadAll.
package storage

import (
	"context"

	"github.com/open-schedule/schedule-client/internal/model"
)

// TableRow is a persisted table identity: the stable local id plus the
// optional server-assigned global id (zero until confirmed).
type TableRow struct {
	LocalID    int32
	GlobalID   int32
	UpdateTime int64
}

// TaskRow is a persisted task identity.
type TaskRow struct {
	LocalID      int32
	TableLocalID int32
	GlobalID     int32
	UpdateTime   int64
}

// TableChangeRow is one append-only table change record.
type TableChangeRow struct {
	TableLocalID int32
	Time         int64
	UserID       int32
	Name         string
	Description  string
}

// TaskChangeRow is one append-only task change record. Date and time fields
// hold canonical text ("YYYY-MM-DD", "HH:MM:SS") or the empty string when
// absent; parsing happens during store reconstruction so a malformed value
// degrades to an absent field instead of failing the load.
type TaskChangeRow struct {
	TableLocalID int32
	TaskLocalID  int32
	Time         int64
	UserID       int32
	Name         string
	Description  string
	StartDate    string
	EndDate      string
	StartTime    string
	EndTime      string
	Period       int32
}

// CommentRow is one persisted comment, ordered by (table, task, time).
type CommentRow struct {
	TableLocalID int32
	TaskLocalID  int32
	UserID       int32
	Time         int64
	Text         string
}

// PermissionRow is one stored grant. PermissionNone is never stored; the
// absence of a row is the NONE representation.
type PermissionRow struct {
	TableLocalID int32
	UserID       int32
	Permission   model.Permission
}

// UserRow is a participant known to this client.
type UserRow struct {
	UserID int32
	Name   string
}

// Snapshot is the result of a bulk load: every persisted row, in load
// order. Comments are ordered by (table, task, time).
type Snapshot struct {
	Tables       []TableRow
	TableChanges []TableChangeRow
	Tasks        []TaskRow
	TaskChanges  []TaskChangeRow
	Comments     []CommentRow
	Permissions  []PermissionRow
	Users        []UserRow
}

// Repository is the durable store behind the entity store.
//
// Each method maps to a single durable append or update. Implementations
// must be safe for calls from multiple goroutines; the entity store invokes
// them while holding its own lock, immediately after the corresponding
// in-memory mutation succeeds.
type Repository interface {
	// LoadAll bulk-loads every persisted row for store reconstruction.
	LoadAll(ctx context.Context) (*Snapshot, error)

	// CreateTableRow records a new table identity with its local id.
	CreateTableRow(ctx context.Context, localID int32, updateTime int64) error

	// CreateTaskRow records a new task identity under its table.
	CreateTaskRow(ctx context.Context, taskLocalID, tableLocalID int32, updateTime int64) error

	// AppendTableChange appends one table change record.
	AppendTableChange(ctx context.Context, tableLocalID int32, time int64, change model.TableInfo) error

	// AppendTaskChange appends one task change record.
	AppendTaskChange(ctx context.Context, tableLocalID, taskLocalID int32, time int64, change model.TaskChange) error

	// AppendComment appends one comment.
	AppendComment(ctx context.Context, tableLocalID, taskLocalID int32, comment model.Comment) error

	// UpsertPermission stores a grant with overwrite semantics. Setting
	// PermissionNone deletes the stored row instead of writing a sentinel.
	UpsertPermission(ctx context.Context, tableLocalID, userID int32, permission model.Permission) error

	// UpdateTableGlobalID attaches the server-assigned id to a table row.
	UpdateTableGlobalID(ctx context.Context, localID, globalID int32) error

	// UpdateTaskGlobalID attaches the server-assigned id to a task row.
	UpdateTaskGlobalID(ctx context.Context, tableLocalID, taskLocalID, globalID int32) error

	// SaveUser records a participant seen in a remote change.
	SaveUser(ctx context.Context, userID int32, name string) error

	// Close releases the underlying store.
	Close() error
}
