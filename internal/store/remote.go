package store

import (
	"context"
	"fmt"

	"github.com/open-schedule/schedule-client/internal/model"
)

// Remote-origin changes resolve their target by global id: the server never
// knows this client's local ids. A change whose global id matches nothing
// here is rejected as unresolvable (ErrNotFound); the sender retries on a
// later sync once the creation has been confirmed.

// ApplyRemoteTableChange applies a table change received from the server.
func (s *Store) ApplyRemoteTableChange(ctx context.Context, tableGlobalID int32, time int64, info model.TableInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tableByGlobalIDLocked(tableGlobalID)
	if !ok {
		return fmt.Errorf("table with global id %d: %w", tableGlobalID, ErrNotFound)
	}

	if err := s.repo.AppendTableChange(ctx, table.LocalID, time, info); err != nil {
		return err
	}
	table.Journal.Append(time, info)
	return nil
}

// ApplyRemoteTaskChange applies a task change received from the server.
func (s *Store) ApplyRemoteTaskChange(ctx context.Context, tableGlobalID, taskGlobalID int32, time int64, change model.TaskChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, task, err := s.remoteTaskLocked(tableGlobalID, taskGlobalID)
	if err != nil {
		return err
	}

	if err := s.repo.AppendTaskChange(ctx, table.LocalID, task.LocalID, time, change); err != nil {
		return err
	}
	task.Journal.Append(time, change)
	return nil
}

// ApplyRemoteComment applies a comment received from the server.
func (s *Store) ApplyRemoteComment(ctx context.Context, tableGlobalID, taskGlobalID int32, comment model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, task, err := s.remoteTaskLocked(tableGlobalID, taskGlobalID)
	if err != nil {
		return err
	}

	if err := s.repo.AppendComment(ctx, table.LocalID, task.LocalID, comment); err != nil {
		return err
	}
	task.AddComment(comment)
	return nil
}

// ApplyRemotePermission applies a permission change received from the
// server. A change that would downgrade the table creator's owner grant
// is logged and ignored; the record stays as it is.
func (s *Store) ApplyRemotePermission(ctx context.Context, tableGlobalID, userID int32, permission model.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tableByGlobalIDLocked(tableGlobalID)
	if !ok {
		return fmt.Errorf("table with global id %d: %w", tableGlobalID, ErrNotFound)
	}
	if creator, ok := table.Creator(); ok && userID == creator && permission < model.PermissionOwner {
		s.logger.Printf("Ignoring downgrade of creator %d on table %d", userID, table.LocalID)
		return nil
	}

	if err := s.repo.UpsertPermission(ctx, table.LocalID, userID, permission); err != nil {
		return err
	}
	if permission == model.PermissionNone {
		delete(table.Permissions, userID)
	} else {
		table.Permissions[userID] = permission
	}
	return nil
}

// RememberUser records a participant seen in a remote change.
func (s *Store) RememberUser(ctx context.Context, userID int32, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[userID]; ok && existing == name {
		return nil
	}
	if err := s.repo.SaveUser(ctx, userID, name); err != nil {
		return err
	}
	s.users[userID] = name
	return nil
}

// UserName returns the remembered name for a participant, empty when
// unknown.
func (s *Store) UserName(userID int32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

// UserIDByName reverses a remembered name to its server id, zero when
// unseen. Lets an offline process attribute work to the configured user
// from a previous session's login.
func (s *Store) UserIDByName(name string) int32 {
	if name == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.users {
		if n == name {
			return id
		}
	}
	return 0
}

func (s *Store) lookupTaskLocked(tableLocalID, taskLocalID int32) (*model.Task, bool) {
	table, ok := s.tables[tableLocalID]
	if !ok {
		return nil, false
	}
	task, ok := table.Tasks[taskLocalID]
	return task, ok
}

func (s *Store) tableByGlobalIDLocked(globalID int32) (*model.Table, bool) {
	if globalID == 0 {
		return nil, false
	}
	for _, table := range s.tables {
		if table.GlobalID == globalID {
			return table, true
		}
	}
	return nil, false
}

func (s *Store) remoteTaskLocked(tableGlobalID, taskGlobalID int32) (*model.Table, *model.Task, error) {
	table, ok := s.tableByGlobalIDLocked(tableGlobalID)
	if !ok {
		return nil, nil, fmt.Errorf("table with global id %d: %w", tableGlobalID, ErrNotFound)
	}
	task, ok := table.TaskByGlobalID(taskGlobalID)
	if !ok {
		return nil, nil, fmt.Errorf("task with global id %d: %w", taskGlobalID, ErrNotFound)
	}
	return table, task, nil
}
