package session

import (
	"context"
	"fmt"
	"time"

	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/wire"
)

// Outbound mutations. Every command applies to the Entity Store first and
// transmits on a best-effort basis: when the session is offline the local
// result stands, creations are flushed on the next authentication, and
// changes reach the server the next time the entity is touched while
// connected. Commands never block on the network.

// CreateTable authors a new table. The session user becomes its owner.
func (s *Session) CreateTable(ctx context.Context, name, description string) (int32, error) {
	now := time.Now().UnixMilli()

	localID, err := s.store.CreateTable(ctx, s.UserID(), now, name, description)
	if err != nil {
		return 0, err
	}

	s.bus.Publish(events.New(events.KindTableUpdate, events.TableUpdateData{
		LocalID: localID,
		Action:  "created",
		Name:    name,
	}))
	s.trySend(wire.CreateTable{LocalID: localID, Time: now, Name: name, Description: description})
	return localID, nil
}

// ChangeTable appends a table change record. Requires WRITE.
func (s *Session) ChangeTable(ctx context.Context, tableLocalID int32, name, description string) error {
	if err := s.requirePermission(tableLocalID, model.PermissionWrite); err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	info := model.TableInfo{UserID: s.UserID(), Name: name, Description: description}
	if err := s.store.ChangeTable(ctx, tableLocalID, now, info); err != nil {
		return err
	}

	s.bus.Publish(events.New(events.KindTableUpdate, events.TableUpdateData{
		LocalID:  tableLocalID,
		GlobalID: s.store.TableGlobalID(tableLocalID),
		Action:   "changed",
		Name:     name,
	}))
	if globalID := s.store.TableGlobalID(tableLocalID); globalID != 0 {
		s.trySend(wire.ChangeTable{TableID: globalID, Time: now, Name: name, Description: description})
	}
	return nil
}

// CreateTask authors a new task under a table. Requires WRITE.
func (s *Session) CreateTask(ctx context.Context, tableLocalID int32, change model.TaskChange) (int32, error) {
	if err := s.requirePermission(tableLocalID, model.PermissionWrite); err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	change.UserID = s.UserID()

	localID, err := s.store.CreateTask(ctx, tableLocalID, now, change)
	if err != nil {
		return 0, err
	}

	s.bus.Publish(events.New(events.KindTaskUpdate, events.TaskUpdateData{
		TableLocalID: tableLocalID,
		LocalID:      localID,
		Action:       "created",
		Name:         change.Name,
	}))
	if tableGlobalID := s.store.TableGlobalID(tableLocalID); tableGlobalID != 0 {
		s.trySend(createTaskPacket(tableGlobalID, localID, now, change))
	}
	return localID, nil
}

// ChangeTask appends a task change record. Requires WRITE.
func (s *Session) ChangeTask(ctx context.Context, tableLocalID, taskLocalID int32, change model.TaskChange) error {
	if err := s.requirePermission(tableLocalID, model.PermissionWrite); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	change.UserID = s.UserID()

	if err := s.store.ChangeTask(ctx, tableLocalID, taskLocalID, now, change); err != nil {
		return err
	}

	s.bus.Publish(events.New(events.KindTaskUpdate, events.TaskUpdateData{
		TableLocalID: tableLocalID,
		LocalID:      taskLocalID,
		GlobalID:     s.store.TaskGlobalID(tableLocalID, taskLocalID),
		Action:       "changed",
		Name:         change.Name,
	}))

	tableGlobalID := s.store.TableGlobalID(tableLocalID)
	taskGlobalID := s.store.TaskGlobalID(tableLocalID, taskLocalID)
	if tableGlobalID != 0 && taskGlobalID != 0 {
		s.trySend(changeTaskPacket(tableGlobalID, taskGlobalID, now, change))
	}
	return nil
}

// AddComment appends a comment to a task. Requires WRITE.
func (s *Session) AddComment(ctx context.Context, tableLocalID, taskLocalID int32, text string) error {
	if err := s.requirePermission(tableLocalID, model.PermissionWrite); err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	comment := model.Comment{UserID: s.UserID(), Time: now, Text: text}
	if err := s.store.AddComment(ctx, tableLocalID, taskLocalID, comment); err != nil {
		return err
	}

	s.bus.Publish(events.New(events.KindCommentAdded, events.CommentData{
		TableLocalID: tableLocalID,
		TaskLocalID:  taskLocalID,
		UserID:       comment.UserID,
		Text:         text,
	}))

	tableGlobalID := s.store.TableGlobalID(tableLocalID)
	taskGlobalID := s.store.TaskGlobalID(tableLocalID, taskLocalID)
	if tableGlobalID != 0 && taskGlobalID != 0 {
		s.trySend(wire.AddComment{TableID: tableGlobalID, TaskID: taskGlobalID, Time: now, Text: text})
	}
	return nil
}

// SetPermission grants or revokes another user's access. Requires OWNER.
func (s *Session) SetPermission(ctx context.Context, tableLocalID, userID int32, perm model.Permission) error {
	if !perm.Valid() {
		return fmt.Errorf("session: invalid permission %d", perm)
	}
	if err := s.requirePermission(tableLocalID, model.PermissionOwner); err != nil {
		return err
	}

	if err := s.store.SetPermission(ctx, tableLocalID, userID, perm); err != nil {
		return err
	}

	s.bus.Publish(events.New(events.KindPermissionChanged, events.PermissionData{
		TableLocalID: tableLocalID,
		UserID:       userID,
		Permission:   perm.String(),
	}))
	if globalID := s.store.TableGlobalID(tableLocalID); globalID != 0 {
		s.trySend(wire.SetPermission{TableID: globalID, UserID: userID, Permission: uint8(perm)})
	}
	return nil
}

func (s *Session) requirePermission(tableLocalID int32, min model.Permission) error {
	if got := s.store.Permission(tableLocalID, s.UserID()); got < min {
		return fmt.Errorf("%w: need %s on table %d, have %s", ErrPermissionDenied, min, tableLocalID, got)
	}
	return nil
}

func createTaskPacket(tableGlobalID, taskLocalID int32, time int64, c model.TaskChange) wire.CreateTask {
	return wire.CreateTask{
		TableID:     tableGlobalID,
		TaskID:      taskLocalID,
		Time:        time,
		Name:        c.Name,
		Description: c.Description,
		StartDate:   model.FormatDate(c.StartDate),
		EndDate:     model.FormatDate(c.EndDate),
		StartTime:   model.FormatClock(c.StartTime),
		EndTime:     model.FormatClock(c.EndTime),
		Period:      c.Period,
	}
}

func changeTaskPacket(tableGlobalID, taskGlobalID int32, time int64, c model.TaskChange) wire.ChangeTask {
	return wire.ChangeTask{
		TableID:     tableGlobalID,
		TaskID:      taskGlobalID,
		Time:        time,
		Name:        c.Name,
		Description: c.Description,
		StartDate:   model.FormatDate(c.StartDate),
		EndDate:     model.FormatDate(c.EndDate),
		StartTime:   model.FormatClock(c.StartTime),
		EndTime:     model.FormatClock(c.EndTime),
		Period:      c.Period,
	}
}
