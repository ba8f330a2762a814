package store

import (
	"sort"

	"github.com/open-schedule/schedule-client/internal/model"
)

// TableView is a read-only snapshot of a table's current display state,
// safe to use outside the store's lock.
type TableView struct {
	LocalID     int32                      `yaml:"local_id"`
	GlobalID    int32                      `yaml:"global_id,omitempty"`
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description,omitempty"`
	UpdatedAt   int64                      `yaml:"updated_at"`
	Tasks       []TaskView                 `yaml:"tasks,omitempty"`
	Permissions map[int32]model.Permission `yaml:"permissions,omitempty"`
}

// TaskView is a read-only snapshot of a task's current display state.
type TaskView struct {
	LocalID     int32           `yaml:"local_id"`
	GlobalID    int32           `yaml:"global_id,omitempty"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	StartDate   string          `yaml:"start_date,omitempty"`
	EndDate     string          `yaml:"end_date,omitempty"`
	StartTime   string          `yaml:"start_time,omitempty"`
	EndTime     string          `yaml:"end_time,omitempty"`
	Period      int32           `yaml:"period,omitempty"`
	UpdatedAt   int64           `yaml:"updated_at"`
	Comments    []model.Comment `yaml:"comments,omitempty"`
}

// PendingCreate describes a locally created entity the server has not yet
// confirmed. Pending creations are resent after every (re)authentication so
// optimistic local work survives a reconnect.
type PendingCreate struct {
	// TableLocalID is the owning table for a task, or the table itself.
	TableLocalID int32

	// TableGlobalID is the owning table's global id; zero means the table
	// itself is still unconfirmed and a task create cannot be sent yet.
	TableGlobalID int32

	// TaskLocalID is zero for a table creation.
	TaskLocalID int32

	// Time is the founding change timestamp.
	Time int64

	// Founding fields.
	Name        string
	Description string
	StartDate   string
	EndDate     string
	StartTime   string
	EndTime     string
	Period      int32
}

// Tables returns snapshots of every table, ordered by local id.
func (s *Store) Tables() []TableView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]TableView, 0, len(s.tables))
	for _, table := range s.tables {
		views = append(views, s.tableViewLocked(table))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].LocalID < views[j].LocalID })
	return views
}

// TableView returns the snapshot for one table.
func (s *Store) TableView(localID int32) (TableView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[localID]
	if !ok {
		return TableView{}, false
	}
	return s.tableViewLocked(table), true
}

// TableGlobalID reports the server id for a table, zero when unconfirmed
// or unknown.
func (s *Store) TableGlobalID(localID int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if table, ok := s.tables[localID]; ok {
		return table.GlobalID
	}
	return 0
}

// TaskGlobalID reports the server id for a task, zero when unconfirmed or
// unknown.
func (s *Store) TaskGlobalID(tableLocalID, taskLocalID int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.lookupTaskLocked(tableLocalID, taskLocalID); ok {
		return task.GlobalID
	}
	return 0
}

// TableLocalID reverses a server table id to the local id.
func (s *Store) TableLocalID(globalID int32) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tableByGlobalIDLocked(globalID)
	if !ok {
		return 0, false
	}
	return table.LocalID, true
}

// TaskLocalID reverses a pair of server ids to (table local id, task
// local id).
func (s *Store) TaskLocalID(tableGlobalID, taskGlobalID int32) (int32, int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, task, err := s.remoteTaskLocked(tableGlobalID, taskGlobalID)
	if err != nil {
		return 0, 0, false
	}
	return table.LocalID, task.LocalID, true
}

func (s *Store) tableViewLocked(table *model.Table) TableView {
	view := TableView{
		LocalID:     table.LocalID,
		GlobalID:    table.GlobalID,
		Permissions: make(map[int32]model.Permission, len(table.Permissions)),
	}
	if entry, ok := table.Journal.Latest(); ok {
		view.Name = entry.Change.Name
		view.Description = entry.Change.Description
		view.UpdatedAt = entry.Time
	}
	for userID, p := range table.Permissions {
		view.Permissions[userID] = p
	}

	for _, task := range table.Tasks {
		view.Tasks = append(view.Tasks, taskView(task))
	}
	sort.Slice(view.Tasks, func(i, j int) bool { return view.Tasks[i].LocalID < view.Tasks[j].LocalID })
	return view
}

func taskView(task *model.Task) TaskView {
	view := TaskView{
		LocalID:  task.LocalID,
		GlobalID: task.GlobalID,
		Comments: append([]model.Comment(nil), task.Comments...),
	}
	if entry, ok := task.Journal.Latest(); ok {
		c := entry.Change
		view.Name = c.Name
		view.Description = c.Description
		view.StartDate = model.FormatDate(c.StartDate)
		view.EndDate = model.FormatDate(c.EndDate)
		view.StartTime = model.FormatClock(c.StartTime)
		view.EndTime = model.FormatClock(c.EndTime)
		view.Period = c.Period
		view.UpdatedAt = entry.Time
	}
	return view
}

// PendingTableCreates lists unconfirmed table creations in local id order.
func (s *Store) PendingTableCreates() []PendingCreate {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []PendingCreate
	for _, table := range s.tables {
		if table.Confirmed() {
			continue
		}
		entry, ok := table.Journal.Initial()
		if !ok {
			continue
		}
		pending = append(pending, PendingCreate{
			TableLocalID: table.LocalID,
			Time:         entry.Time,
			Name:         entry.Change.Name,
			Description:  entry.Change.Description,
		})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].TableLocalID < pending[j].TableLocalID })
	return pending
}

// PendingTaskCreates lists unconfirmed task creations in local id order.
// Entries with a zero TableGlobalID cannot be sent until their table is
// confirmed.
func (s *Store) PendingTaskCreates() []PendingCreate {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []PendingCreate
	for _, table := range s.tables {
		for _, task := range table.Tasks {
			if task.Confirmed() {
				continue
			}
			entry, ok := task.Journal.Initial()
			if !ok {
				continue
			}
			c := entry.Change
			pending = append(pending, PendingCreate{
				TableLocalID:  table.LocalID,
				TableGlobalID: table.GlobalID,
				TaskLocalID:   task.LocalID,
				Time:          entry.Time,
				Name:          c.Name,
				Description:   c.Description,
				StartDate:     model.FormatDate(c.StartDate),
				EndDate:       model.FormatDate(c.EndDate),
				StartTime:     model.FormatClock(c.StartTime),
				EndTime:       model.FormatClock(c.EndTime),
				Period:        c.Period,
			})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].TaskLocalID < pending[j].TaskLocalID })
	return pending
}
