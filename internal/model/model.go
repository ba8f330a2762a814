// Package model defines the synchronized entities of the schedule client:
// tables, tasks, comments and permissions.
//
// Every table and task carries an identifier pair: a local id assigned by
// this client at creation time (always valid), and a global id assigned by
// the server once the creation is confirmed (zero until then). Mutable
// fields live in an append-only change journal per entity; the current
// display state is the journal entry with the greatest timestamp.
package model

import (
	"fmt"
	"time"

	"github.com/open-schedule/schedule-client/internal/journal"
)

// Canonical text layouts for dates and clock times, both on the wire and in
// local storage. They are fixed-width so the wire encoding needs no length
// prefix.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

// Permission is a per-user, per-table access level.
//
// The ordinal values are encoded directly on the wire and in storage.
// PermissionNone is represented by the absence of a stored grant, never by
// a stored zero.
type Permission uint8

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionOwner
)

// String returns the lowercase name of the permission level.
func (p Permission) String() string {
	switch p {
	case PermissionNone:
		return "none"
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionOwner:
		return "owner"
	default:
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the defined levels.
func (p Permission) Valid() bool {
	return p <= PermissionOwner
}

// TableInfo is an immutable change record for a table's mutable fields.
type TableInfo struct {
	UserID      int32
	Name        string
	Description string
}

// TaskChange is an immutable change record for a task's mutable fields.
//
// Date and time pointers are nil when the field is absent, which also
// covers records whose persisted text failed to parse on load.
type TaskChange struct {
	UserID      int32
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	Period      int32
}

// Comment is a single append-only remark on a task. Comments carry no
// revision history; their ordering is (table, task, timestamp).
type Comment struct {
	UserID int32
	Time   int64
	Text   string
}

// Task is a schedule entry belonging to one table.
type Task struct {
	LocalID      int32
	GlobalID     int32 // zero until the server confirms the creation
	TableLocalID int32
	Journal      journal.Journal[TaskChange]
	Comments     []Comment
}

// Confirmed reports whether the server has assigned a global id.
func (t *Task) Confirmed() bool {
	return t.GlobalID != 0
}

// Current returns the task's latest change record.
func (t *Task) Current() (journal.Entry[TaskChange], bool) {
	return t.Journal.Latest()
}

// AddComment appends a comment, keeping the slice ordered by timestamp.
// Comments that arrive late are inserted at their timestamp position so a
// reload and a live session observe the same order.
func (t *Task) AddComment(c Comment) {
	i := len(t.Comments)
	for i > 0 && t.Comments[i-1].Time > c.Time {
		i--
	}
	t.Comments = append(t.Comments, Comment{})
	copy(t.Comments[i+1:], t.Comments[i:])
	t.Comments[i] = c
}

// Table is a shared collection of tasks with per-user permissions.
type Table struct {
	LocalID     int32
	GlobalID    int32 // zero until the server confirms the creation
	Journal     journal.Journal[TableInfo]
	Tasks       map[int32]*Task
	Permissions map[int32]Permission
}

// NewTable creates a table with its founding change. The creator implicitly
// holds owner permission; that grant never travels through the
// permission-change path and is not revocable.
func NewTable(localID, userID int32, time int64, name, description string) *Table {
	t := &Table{
		LocalID:     localID,
		Tasks:       make(map[int32]*Task),
		Permissions: make(map[int32]Permission),
	}
	t.Permissions[userID] = PermissionOwner
	t.Journal.Append(time, TableInfo{UserID: userID, Name: name, Description: description})
	return t
}

// Confirmed reports whether the server has assigned a global id.
func (t *Table) Confirmed() bool {
	return t.GlobalID != 0
}

// Current returns the table's latest change record.
func (t *Table) Current() (journal.Entry[TableInfo], bool) {
	return t.Journal.Latest()
}

// PermissionFor returns the stored grant for userID, or PermissionNone when
// no row exists.
func (t *Table) PermissionFor(userID int32) Permission {
	return t.Permissions[userID]
}

// Creator returns the author of the table's founding change, the user
// whose owner grant is immutable.
func (t *Table) Creator() (int32, bool) {
	entry, ok := t.Journal.Initial()
	if !ok {
		return 0, false
	}
	return entry.Change.UserID, true
}

// TaskByGlobalID finds the task with the given server-assigned id. Zero
// matches nothing: it marks an unconfirmed task, not an identity.
func (t *Table) TaskByGlobalID(globalID int32) (*Task, bool) {
	if globalID == 0 {
		return nil, false
	}
	for _, task := range t.Tasks {
		if task.GlobalID == globalID {
			return task, true
		}
	}
	return nil, false
}

// User is a participant known to this client. The session user's id is zero
// until a successful login reports the server-assigned id.
type User struct {
	GlobalID int32
	Name     string
}

// FormatDate renders a date pointer in the canonical wire layout, or the
// empty string when absent.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatClock renders a clock-time pointer in the canonical wire layout, or
// the empty string when absent.
func FormatClock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(ClockLayout)
}

// ParseDate parses a canonical date string. Empty input yields nil without
// error; malformed input yields an error so callers can log and treat the
// field as absent.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return &t, nil
}

// ParseClock parses a canonical clock-time string. Empty input yields nil
// without error.
func ParseClock(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return &t, nil
}
