package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/store"
	"github.com/open-schedule/schedule-client/internal/wire"
)

// handle validates one inbound packet against the session state and
// applies it. Auth packets are valid only before authentication, all
// other server packets only after; anything else is a protocol violation.
func (s *Session) handle(ctx context.Context, pkt wire.Packet) error {
	tag := pkt.Type()
	if !tag.FromServer() {
		return s.violation(fmt.Sprintf("client-direction packet %s from server", tag))
	}

	switch s.State() {
	case StateConnectedUnauthenticated:
		if !tag.Auth() {
			return s.violation(fmt.Sprintf("%s before authentication", tag))
		}
	case StateAuthenticated:
		if tag.Auth() {
			return s.violation(fmt.Sprintf("%s after authentication", tag))
		}
	default:
		return s.violation(fmt.Sprintf("%s with no established connection", tag))
	}

	switch pk := pkt.(type) {
	case wire.LoginResult:
		return s.handleLoginResult(ctx, pk)
	case wire.RegisterResult:
		// The session never registers; accounts are created out of band.
		return s.violation("unsolicited REGISTER_RESULT")
	case wire.TableConfirm:
		return s.handleTableConfirm(ctx, pk)
	case wire.TaskConfirm:
		return s.handleTaskConfirm(ctx, pk)
	case wire.TableChange:
		return s.handleTableChange(ctx, pk)
	case wire.TaskChange:
		return s.handleTaskChange(ctx, pk)
	case wire.PermissionChange:
		return s.handlePermissionChange(ctx, pk)
	case wire.Comment:
		return s.handleComment(ctx, pk)
	default:
		return s.violation(fmt.Sprintf("unhandled packet %s", tag))
	}
}

func (s *Session) handleLoginResult(ctx context.Context, pk wire.LoginResult) error {
	if pk.Status != wire.StatusSuccess {
		s.bus.Publish(events.New(events.KindLoginResult, events.AuthResultData{Success: false}))
		return ErrLoginFailed
	}

	s.mu.Lock()
	s.userID = pk.UserID
	s.state = StateAuthenticated
	s.mu.Unlock()

	if err := s.store.RememberUser(ctx, pk.UserID, s.cfg.Username); err != nil {
		s.logger.Printf("remember user %d: %v", pk.UserID, err)
	}
	// Work authored before the first login carries author id zero; its
	// grants move to the server-assigned id now.
	if err := s.store.AdoptProvisionalGrants(ctx, pk.UserID); err != nil {
		s.logger.Printf("adopt provisional grants for %d: %v", pk.UserID, err)
	}

	s.logger.Printf("logged in as %q (user %d, instance %s)", s.cfg.Username, pk.UserID, s.id)
	s.publishState(StateAuthenticated)
	s.bus.Publish(events.New(events.KindLoginResult, events.AuthResultData{Success: true, UserID: pk.UserID}))

	return s.flushPending()
}

// flushPending resends every unconfirmed local creation. Task creations
// under a still-unconfirmed table are held back until that table's
// confirmation arrives.
func (s *Session) flushPending() error {
	for _, p := range s.store.PendingTableCreates() {
		err := s.send(wire.CreateTable{
			LocalID:     p.TableLocalID,
			Time:        p.Time,
			Name:        p.Name,
			Description: p.Description,
		})
		if err != nil {
			return err
		}
	}
	for _, p := range s.store.PendingTaskCreates() {
		if p.TableGlobalID == 0 {
			continue
		}
		if err := s.send(pendingTaskPacket(p)); err != nil {
			return err
		}
	}
	return nil
}

func pendingTaskPacket(p store.PendingCreate) wire.CreateTask {
	return wire.CreateTask{
		TableID:     p.TableGlobalID,
		TaskID:      p.TaskLocalID,
		Time:        p.Time,
		Name:        p.Name,
		Description: p.Description,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Period:      p.Period,
	}
}

func (s *Session) handleTableConfirm(ctx context.Context, pk wire.TableConfirm) error {
	err := s.store.ResolveGlobalID(ctx, pk.LocalID, pk.GlobalID)
	if err != nil {
		// A confirmation for an unknown local id is recoverable: the
		// creation races the reply and is retried on the next sync.
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("table confirm for unknown local id %d", pk.LocalID)
			return nil
		}
		return err
	}

	s.bus.Publish(events.New(events.KindTableUpdate, events.TableUpdateData{
		LocalID:  pk.LocalID,
		GlobalID: pk.GlobalID,
		Action:   "confirmed",
	}))

	// Task creations under this table were waiting for its global id.
	for _, p := range s.store.PendingTaskCreates() {
		if p.TableLocalID != pk.LocalID || p.TableGlobalID == 0 {
			continue
		}
		if err := s.send(pendingTaskPacket(p)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleTaskConfirm(ctx context.Context, pk wire.TaskConfirm) error {
	err := s.store.ResolveTaskGlobalID(ctx, pk.TableGlobalID, pk.TaskID, pk.GlobalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("task confirm for unknown task %d (table global %d)", pk.TaskID, pk.TableGlobalID)
			return nil
		}
		return err
	}

	tableLocalID, _ := s.store.TableLocalID(pk.TableGlobalID)
	s.bus.Publish(events.New(events.KindTaskUpdate, events.TaskUpdateData{
		TableLocalID: tableLocalID,
		LocalID:      pk.TaskID,
		GlobalID:     pk.GlobalID,
		Action:       "confirmed",
	}))
	return nil
}

func (s *Session) handleTableChange(ctx context.Context, pk wire.TableChange) error {
	s.rememberAuthor(ctx, pk.UserID)

	info := model.TableInfo{UserID: pk.UserID, Name: pk.Name, Description: pk.Description}
	if err := s.store.ApplyRemoteTableChange(ctx, pk.TableGlobalID, pk.Time, info); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("change for unknown table global id %d", pk.TableGlobalID)
			return nil
		}
		return err
	}

	localID, _ := s.store.TableLocalID(pk.TableGlobalID)
	s.bus.Publish(events.New(events.KindTableUpdate, events.TableUpdateData{
		LocalID:  localID,
		GlobalID: pk.TableGlobalID,
		Action:   "changed",
		Name:     pk.Name,
	}))
	return nil
}

func (s *Session) handleTaskChange(ctx context.Context, pk wire.TaskChange) error {
	s.rememberAuthor(ctx, pk.UserID)

	change := s.taskChangeFromWire(pk)
	if err := s.store.ApplyRemoteTaskChange(ctx, pk.TableGlobalID, pk.TaskGlobalID, pk.Time, change); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("change for unknown task global id %d (table %d)", pk.TaskGlobalID, pk.TableGlobalID)
			return nil
		}
		return err
	}

	tableLocalID, taskLocalID, _ := s.store.TaskLocalID(pk.TableGlobalID, pk.TaskGlobalID)
	s.bus.Publish(events.New(events.KindTaskUpdate, events.TaskUpdateData{
		TableLocalID: tableLocalID,
		LocalID:      taskLocalID,
		GlobalID:     pk.TaskGlobalID,
		Action:       "changed",
		Name:         pk.Name,
	}))
	return nil
}

func (s *Session) handlePermissionChange(ctx context.Context, pk wire.PermissionChange) error {
	perm := model.Permission(pk.Permission)
	if !perm.Valid() {
		return s.violation(fmt.Sprintf("permission ordinal %d out of range", pk.Permission))
	}

	if err := s.store.ApplyRemotePermission(ctx, pk.TableGlobalID, pk.UserID, perm); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("permission for unknown table global id %d", pk.TableGlobalID)
			return nil
		}
		return err
	}

	localID, _ := s.store.TableLocalID(pk.TableGlobalID)
	s.bus.Publish(events.New(events.KindPermissionChanged, events.PermissionData{
		TableLocalID: localID,
		UserID:       pk.UserID,
		Permission:   perm.String(),
	}))
	return nil
}

func (s *Session) handleComment(ctx context.Context, pk wire.Comment) error {
	s.rememberAuthor(ctx, pk.UserID)

	comment := model.Comment{UserID: pk.UserID, Time: pk.Time, Text: pk.Text}
	if err := s.store.ApplyRemoteComment(ctx, pk.TableGlobalID, pk.TaskGlobalID, comment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("comment for unknown task global id %d (table %d)", pk.TaskGlobalID, pk.TableGlobalID)
			return nil
		}
		return err
	}

	tableLocalID, taskLocalID, _ := s.store.TaskLocalID(pk.TableGlobalID, pk.TaskGlobalID)
	s.bus.Publish(events.New(events.KindCommentAdded, events.CommentData{
		TableLocalID: tableLocalID,
		TaskLocalID:  taskLocalID,
		UserID:       pk.UserID,
		Text:         pk.Text,
	}))
	return nil
}

// rememberAuthor records an unseen author id so its changes can be
// attributed. The name arrives later, if ever; an empty placeholder is
// enough to keep the reference valid.
func (s *Session) rememberAuthor(ctx context.Context, userID int32) {
	if userID == s.UserID() || s.store.UserName(userID) != "" {
		return
	}
	if err := s.store.RememberUser(ctx, userID, ""); err != nil {
		s.logger.Printf("remember author %d: %v", userID, err)
	}
}

// taskChangeFromWire converts wire date/time text to model fields. A
// malformed field is logged and treated as absent; the rest of the record
// still applies.
func (s *Session) taskChangeFromWire(pk wire.TaskChange) model.TaskChange {
	change := model.TaskChange{
		UserID:      pk.UserID,
		Name:        pk.Name,
		Description: pk.Description,
		Period:      pk.Period,
	}

	var err error
	if change.StartDate, err = model.ParseDate(pk.StartDate); err != nil {
		s.logger.Printf("task %d start date: %v", pk.TaskGlobalID, err)
	}
	if change.EndDate, err = model.ParseDate(pk.EndDate); err != nil {
		s.logger.Printf("task %d end date: %v", pk.TaskGlobalID, err)
	}
	if change.StartTime, err = model.ParseClock(pk.StartTime); err != nil {
		s.logger.Printf("task %d start time: %v", pk.TaskGlobalID, err)
	}
	if change.EndTime, err = model.ParseClock(pk.EndTime); err != nil {
		s.logger.Printf("task %d end time: %v", pk.TaskGlobalID, err)
	}
	return change
}
