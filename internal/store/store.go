// Package store holds the client's in-memory entity state: every table and
// task this user can see, reconstructed from local storage at startup and
// mutated both by local intents and by remote changes arriving over the
// sync connection.
//
// All mutating and reading operations are serialized behind one mutex so a
// journal append can never interleave with a latest-state read. Persistence
// is write-through: each successful in-memory mutation issues exactly one
// repository call before the lock is released.
//
// The store enforces no permission gating. Permissions are advisory
// metadata consumed by the session layer's authorization gate before it
// invokes a mutation here; the one structural rule the store itself holds
// is that a table creator's owner grant cannot be downgraded.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/storage"
)

// ErrNotFound reports a lookup with an unknown local or global id.
var ErrNotFound = errors.New("store: not found")

// ErrCreatorOwner reports an attempt to downgrade the implicit owner
// grant of a table's creator.
var ErrCreatorOwner = errors.New("store: creator's owner grant is not revocable")

// Store is the entity store. Create one with New, then Load to replay
// persisted state.
type Store struct {
	mu     sync.Mutex
	repo   storage.Repository
	logger *log.Logger

	tables      map[int32]*model.Table
	users       map[int32]string
	nextTableID int32
	nextTaskID  int32
}

// New creates an empty store over the given repository.
//
// If logger is nil, a default logger writing to stderr is used.
func New(repo storage.Repository, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		repo:        repo,
		logger:      logger,
		tables:      make(map[int32]*model.Table),
		users:       make(map[int32]string),
		nextTableID: 1,
		nextTaskID:  1,
	}
}

// Load replays the persisted snapshot into memory. Call once at startup
// before any mutation.
//
// Malformed date or time text in a change row is logged and the field
// treated as absent; the rest of the record still applies. Change rows
// referencing unknown entities are logged and skipped.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range snap.Tables {
		s.tables[row.LocalID] = &model.Table{
			LocalID:     row.LocalID,
			GlobalID:    row.GlobalID,
			Tasks:       make(map[int32]*model.Task),
			Permissions: make(map[int32]model.Permission),
		}
		if row.LocalID >= s.nextTableID {
			s.nextTableID = row.LocalID + 1
		}
	}

	for _, row := range snap.TableChanges {
		table, ok := s.tables[row.TableLocalID]
		if !ok {
			s.logger.Printf("Skipping change for unknown table %d", row.TableLocalID)
			continue
		}
		table.Journal.Append(row.Time, model.TableInfo{
			UserID:      row.UserID,
			Name:        row.Name,
			Description: row.Description,
		})
	}

	for _, row := range snap.Tasks {
		table, ok := s.tables[row.TableLocalID]
		if !ok {
			s.logger.Printf("Skipping task %d for unknown table %d", row.LocalID, row.TableLocalID)
			continue
		}
		table.Tasks[row.LocalID] = &model.Task{
			LocalID:      row.LocalID,
			GlobalID:     row.GlobalID,
			TableLocalID: row.TableLocalID,
		}
		if row.LocalID >= s.nextTaskID {
			s.nextTaskID = row.LocalID + 1
		}
	}

	for _, row := range snap.TaskChanges {
		task, ok := s.lookupTaskLocked(row.TableLocalID, row.TaskLocalID)
		if !ok {
			s.logger.Printf("Skipping change for unknown task %d/%d", row.TableLocalID, row.TaskLocalID)
			continue
		}
		task.Journal.Append(row.Time, s.parseTaskChangeRow(row))
	}

	for _, row := range snap.Comments {
		task, ok := s.lookupTaskLocked(row.TableLocalID, row.TaskLocalID)
		if !ok {
			s.logger.Printf("Skipping comment for unknown task %d/%d", row.TableLocalID, row.TaskLocalID)
			continue
		}
		task.AddComment(model.Comment{UserID: row.UserID, Time: row.Time, Text: row.Text})
	}

	for _, row := range snap.Permissions {
		table, ok := s.tables[row.TableLocalID]
		if !ok {
			s.logger.Printf("Skipping permission for unknown table %d", row.TableLocalID)
			continue
		}
		table.Permissions[row.UserID] = row.Permission
	}

	for _, row := range snap.Users {
		s.users[row.UserID] = row.Name
	}

	return nil
}

// parseTaskChangeRow converts a persisted row into a change record,
// degrading malformed date/time text to absent fields.
func (s *Store) parseTaskChangeRow(row storage.TaskChangeRow) model.TaskChange {
	change := model.TaskChange{
		UserID:      row.UserID,
		Name:        row.Name,
		Description: row.Description,
		Period:      row.Period,
	}

	var err error
	if change.StartDate, err = model.ParseDate(row.StartDate); err != nil {
		s.logger.Printf("Task %d/%d change at %d: %v", row.TableLocalID, row.TaskLocalID, row.Time, err)
	}
	if change.EndDate, err = model.ParseDate(row.EndDate); err != nil {
		s.logger.Printf("Task %d/%d change at %d: %v", row.TableLocalID, row.TaskLocalID, row.Time, err)
	}
	if change.StartTime, err = model.ParseClock(row.StartTime); err != nil {
		s.logger.Printf("Task %d/%d change at %d: %v", row.TableLocalID, row.TaskLocalID, row.Time, err)
	}
	if change.EndTime, err = model.ParseClock(row.EndTime); err != nil {
		s.logger.Printf("Task %d/%d change at %d: %v", row.TableLocalID, row.TaskLocalID, row.Time, err)
	}

	return change
}

// CreateTable creates a table founded at the given time and returns its
// local id. The creator implicitly holds owner permission.
func (s *Store) CreateTable(ctx context.Context, userID int32, time int64, name, description string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	localID := s.nextTableID
	table := model.NewTable(localID, userID, time, name, description)

	if err := s.repo.CreateTableRow(ctx, localID, time); err != nil {
		return 0, err
	}
	if err := s.repo.AppendTableChange(ctx, localID, time,
		model.TableInfo{UserID: userID, Name: name, Description: description}); err != nil {
		return 0, err
	}
	if err := s.repo.UpsertPermission(ctx, localID, userID, model.PermissionOwner); err != nil {
		return 0, err
	}

	s.tables[localID] = table
	s.nextTableID++
	return localID, nil
}

// ChangeTable appends a change record to a table's journal.
//
// Returns ErrNotFound when the local id is unknown. The append itself
// never fails: an earlier timestamp than the current latest is retained as
// history without becoming authoritative.
func (s *Store) ChangeTable(ctx context.Context, localID int32, time int64, info model.TableInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[localID]
	if !ok {
		return fmt.Errorf("table %d: %w", localID, ErrNotFound)
	}

	if err := s.repo.AppendTableChange(ctx, localID, time, info); err != nil {
		return err
	}
	table.Journal.Append(time, info)
	return nil
}

// CreateTask creates a task under a table and returns the task's local id.
//
// Returns ErrNotFound when the table is unknown.
func (s *Store) CreateTask(ctx context.Context, tableLocalID int32, time int64, change model.TaskChange) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tableLocalID]
	if !ok {
		return 0, fmt.Errorf("table %d: %w", tableLocalID, ErrNotFound)
	}

	localID := s.nextTaskID
	if err := s.repo.CreateTaskRow(ctx, localID, tableLocalID, time); err != nil {
		return 0, err
	}
	if err := s.repo.AppendTaskChange(ctx, tableLocalID, localID, time, change); err != nil {
		return 0, err
	}

	task := &model.Task{LocalID: localID, TableLocalID: tableLocalID}
	task.Journal.Append(time, change)
	table.Tasks[localID] = task
	s.nextTaskID++
	return localID, nil
}

// ChangeTask appends a change record to a task's journal.
func (s *Store) ChangeTask(ctx context.Context, tableLocalID, taskLocalID int32, time int64, change model.TaskChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.lookupTaskLocked(tableLocalID, taskLocalID)
	if !ok {
		return fmt.Errorf("task %d/%d: %w", tableLocalID, taskLocalID, ErrNotFound)
	}

	if err := s.repo.AppendTaskChange(ctx, tableLocalID, taskLocalID, time, change); err != nil {
		return err
	}
	task.Journal.Append(time, change)
	return nil
}

// AddComment appends a comment to a task.
func (s *Store) AddComment(ctx context.Context, tableLocalID, taskLocalID int32, comment model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.lookupTaskLocked(tableLocalID, taskLocalID)
	if !ok {
		return fmt.Errorf("task %d/%d: %w", tableLocalID, taskLocalID, ErrNotFound)
	}

	if err := s.repo.AppendComment(ctx, tableLocalID, taskLocalID, comment); err != nil {
		return err
	}
	task.AddComment(comment)
	return nil
}

// SetPermission stores a grant with overwrite semantics. PermissionNone
// removes the grant entirely; a later lookup reports NONE by absence.
//
// The table creator's owner grant is held outside this path: an attempt
// to set the creator below OWNER returns ErrCreatorOwner.
func (s *Store) SetPermission(ctx context.Context, tableLocalID, userID int32, permission model.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tableLocalID]
	if !ok {
		return fmt.Errorf("table %d: %w", tableLocalID, ErrNotFound)
	}
	if creator, ok := table.Creator(); ok && userID == creator && permission < model.PermissionOwner {
		return fmt.Errorf("table %d, user %d: %w", tableLocalID, userID, ErrCreatorOwner)
	}

	if err := s.repo.UpsertPermission(ctx, tableLocalID, userID, permission); err != nil {
		return err
	}
	if permission == model.PermissionNone {
		delete(table.Permissions, userID)
	} else {
		table.Permissions[userID] = permission
	}
	return nil
}

// AdoptProvisionalGrants re-attributes grants held by the provisional
// author id zero to the given user. Work authored before the first
// login carries author zero; once the server assigns the real id the
// grants must follow it or the author is locked out of their own
// tables. A grant the user already holds at the same or a higher level
// is left alone.
func (s *Store) AdoptProvisionalGrants(ctx context.Context, userID int32) error {
	if userID == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range s.tables {
		perm, ok := table.Permissions[0]
		if !ok {
			continue
		}
		if err := s.repo.UpsertPermission(ctx, table.LocalID, 0, model.PermissionNone); err != nil {
			return err
		}
		delete(table.Permissions, 0)

		if table.Permissions[userID] >= perm {
			continue
		}
		if err := s.repo.UpsertPermission(ctx, table.LocalID, userID, perm); err != nil {
			return err
		}
		table.Permissions[userID] = perm
	}
	return nil
}

// Permission reports the grant for (table, user), NONE when absent or when
// the table is unknown.
func (s *Store) Permission(tableLocalID, userID int32) model.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tableLocalID]
	if !ok {
		return model.PermissionNone
	}
	return table.PermissionFor(userID)
}

// ResolveGlobalID attaches a server-assigned global id to a table.
//
// Returns ErrNotFound when the local id is unknown; the store is left
// unmodified. A confirmation racing ahead of the local creation is expected
// and recoverable, so callers log rather than abort.
func (s *Store) ResolveGlobalID(ctx context.Context, tableLocalID, globalID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tableLocalID]
	if !ok {
		return fmt.Errorf("table %d: %w", tableLocalID, ErrNotFound)
	}
	if table.Confirmed() {
		s.logger.Printf("Table %d already confirmed as %d, ignoring %d", tableLocalID, table.GlobalID, globalID)
		return nil
	}

	if err := s.repo.UpdateTableGlobalID(ctx, tableLocalID, globalID); err != nil {
		return err
	}
	table.GlobalID = globalID
	return nil
}

// ResolveTaskGlobalID attaches a server-assigned global id to a task,
// resolving its table by the table's global id.
func (s *Store) ResolveTaskGlobalID(ctx context.Context, tableGlobalID, taskLocalID, taskGlobalID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tableByGlobalIDLocked(tableGlobalID)
	if !ok {
		return fmt.Errorf("table with global id %d: %w", tableGlobalID, ErrNotFound)
	}
	task, ok := table.Tasks[taskLocalID]
	if !ok {
		return fmt.Errorf("task %d in table %d: %w", taskLocalID, table.LocalID, ErrNotFound)
	}
	if task.Confirmed() {
		s.logger.Printf("Task %d already confirmed as %d, ignoring %d", taskLocalID, task.GlobalID, taskGlobalID)
		return nil
	}

	if err := s.repo.UpdateTaskGlobalID(ctx, table.LocalID, taskLocalID, taskGlobalID); err != nil {
		return err
	}
	task.GlobalID = taskGlobalID
	return nil
}
