package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-schedule/schedule-client/internal/model"
)

// Memory is an in-memory Repository used by tests and by ephemeral
// sessions that don't need durability. It records rows exactly as a
// durable implementation would, so LoadAll rebuilds the same snapshot.
type Memory struct {
	mu   sync.Mutex
	snap Snapshot
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{}
}

// LoadAll implements Repository.
func (m *Memory) LoadAll(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot{
		Tables:       append([]TableRow(nil), m.snap.Tables...),
		TableChanges: append([]TableChangeRow(nil), m.snap.TableChanges...),
		Tasks:        append([]TaskRow(nil), m.snap.Tasks...),
		TaskChanges:  append([]TaskChangeRow(nil), m.snap.TaskChanges...),
		Comments:     append([]CommentRow(nil), m.snap.Comments...),
		Permissions:  append([]PermissionRow(nil), m.snap.Permissions...),
		Users:        append([]UserRow(nil), m.snap.Users...),
	}
	return &out, nil
}

// CreateTableRow implements Repository.
func (m *Memory) CreateTableRow(_ context.Context, localID int32, updateTime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Tables = append(m.snap.Tables, TableRow{LocalID: localID, UpdateTime: updateTime})
	return nil
}

// CreateTaskRow implements Repository.
func (m *Memory) CreateTaskRow(_ context.Context, taskLocalID, tableLocalID int32, updateTime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Tasks = append(m.snap.Tasks, TaskRow{
		LocalID:      taskLocalID,
		TableLocalID: tableLocalID,
		UpdateTime:   updateTime,
	})
	return nil
}

// AppendTableChange implements Repository.
func (m *Memory) AppendTableChange(_ context.Context, tableLocalID int32, time int64, change model.TableInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.TableChanges = append(m.snap.TableChanges, TableChangeRow{
		TableLocalID: tableLocalID,
		Time:         time,
		UserID:       change.UserID,
		Name:         change.Name,
		Description:  change.Description,
	})
	return nil
}

// AppendTaskChange implements Repository.
func (m *Memory) AppendTaskChange(_ context.Context, tableLocalID, taskLocalID int32, time int64, change model.TaskChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.TaskChanges = append(m.snap.TaskChanges, TaskChangeRow{
		TableLocalID: tableLocalID,
		TaskLocalID:  taskLocalID,
		Time:         time,
		UserID:       change.UserID,
		Name:         change.Name,
		Description:  change.Description,
		StartDate:    model.FormatDate(change.StartDate),
		EndDate:      model.FormatDate(change.EndDate),
		StartTime:    model.FormatClock(change.StartTime),
		EndTime:      model.FormatClock(change.EndTime),
		Period:       change.Period,
	})
	return nil
}

// AppendComment implements Repository.
func (m *Memory) AppendComment(_ context.Context, tableLocalID, taskLocalID int32, comment model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Comments = append(m.snap.Comments, CommentRow{
		TableLocalID: tableLocalID,
		TaskLocalID:  taskLocalID,
		UserID:       comment.UserID,
		Time:         comment.Time,
		Text:         comment.Text,
	})
	return nil
}

// UpsertPermission implements Repository.
func (m *Memory) UpsertPermission(_ context.Context, tableLocalID, userID int32, permission model.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.snap.Permissions {
		row := &m.snap.Permissions[i]
		if row.TableLocalID == tableLocalID && row.UserID == userID {
			if permission == model.PermissionNone {
				m.snap.Permissions = append(m.snap.Permissions[:i], m.snap.Permissions[i+1:]...)
			} else {
				row.Permission = permission
			}
			return nil
		}
	}
	if permission != model.PermissionNone {
		m.snap.Permissions = append(m.snap.Permissions, PermissionRow{
			TableLocalID: tableLocalID,
			UserID:       userID,
			Permission:   permission,
		})
	}
	return nil
}

// UpdateTableGlobalID implements Repository.
func (m *Memory) UpdateTableGlobalID(_ context.Context, localID, globalID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.snap.Tables {
		if m.snap.Tables[i].LocalID == localID {
			m.snap.Tables[i].GlobalID = globalID
			return nil
		}
	}
	return fmt.Errorf("no table row with local id %d", localID)
}

// UpdateTaskGlobalID implements Repository.
func (m *Memory) UpdateTaskGlobalID(_ context.Context, tableLocalID, taskLocalID, globalID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.snap.Tasks {
		row := &m.snap.Tasks[i]
		if row.LocalID == taskLocalID && row.TableLocalID == tableLocalID {
			row.GlobalID = globalID
			return nil
		}
	}
	return fmt.Errorf("no task row with local id %d in table %d", taskLocalID, tableLocalID)
}

// SaveUser implements Repository.
func (m *Memory) SaveUser(_ context.Context, userID int32, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.snap.Users {
		if m.snap.Users[i].UserID == userID {
			m.snap.Users[i].Name = name
			return nil
		}
	}
	m.snap.Users = append(m.snap.Users, UserRow{UserID: userID, Name: name})
	return nil
}

// Close implements Repository.
func (m *Memory) Close() error {
	return nil
}
