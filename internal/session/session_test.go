package session

import (
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/storage"
	"github.com/open-schedule/schedule-client/internal/store"
	"github.com/open-schedule/schedule-client/internal/wire"
)

const testTimeout = 2 * time.Second

// harness wires a session to an in-memory store and a piped transport.
// The test plays the server on the far end of the pipe.
type harness struct {
	session *Session
	store   *store.Store
	bus     *events.Bus
	events  chan events.Event
	conns   chan net.Conn
	done    chan error
	stopped chan struct{}
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st := store.New(storage.NewMemory(), log.New(io.Discard, "", 0))
	require.NoError(t, st.Load(context.Background()))

	h := &harness{
		store:   st,
		bus:     events.NewBus(),
		conns:   make(chan net.Conn, 1),
		done:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
	h.events = h.bus.Subscribe(64)

	cfg := DefaultConfig()
	cfg.Username = "lena"
	cfg.Password = "qqqq"
	cfg.ReconnectInterval = 10 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Dial = func(ctx context.Context) (net.Conn, error) {
		select {
		case c := <-h.conns:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.session = New(cfg, st, h.bus)
	return h
}

// start runs the session loop and hands the test the server end of a pipe.
func (h *harness) start(t *testing.T) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	h.conns <- client

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.session.Run(ctx)
		close(h.stopped)
	}()

	// The test body may consume the run loop's result from h.done itself,
	// so cleanup waits on the separate stopped signal.
	t.Cleanup(func() {
		cancel()
		server.Close()
		select {
		case <-h.stopped:
		case <-time.After(testTimeout):
			t.Error("session did not stop on cancel")
		}
	})
	return server
}

// expect decodes the next client packet on the server side.
func expect[P wire.Packet](t *testing.T, server net.Conn) P {
	t.Helper()
	pkt, err := wire.Decode(server)
	require.NoError(t, err)
	p, ok := pkt.(P)
	require.True(t, ok, "unexpected packet %s", pkt.Type())
	return p
}

func reply(t *testing.T, server net.Conn, pkt wire.Packet) {
	t.Helper()
	require.NoError(t, wire.Encode(server, pkt))
}

func (h *harness) waitEvent(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return events.Event{}
		}
	}
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.session.State() == want },
		testTimeout, 5*time.Millisecond, "state = %s, want %s", h.session.State(), want)
}

func TestLoginHandshake(t *testing.T) {
	h := newHarness(t)
	server := h.start(t)

	login := expect[wire.Login](t, server)
	require.Equal(t, "lena", login.Username)
	require.Equal(t, "qqqq", login.Password)

	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})

	h.waitState(t, StateAuthenticated)
	require.Equal(t, int32(42), h.session.UserID())
	h.waitEvent(t, events.KindLoginResult)
}

func TestLoginRejectedStopsRetrying(t *testing.T) {
	h := newHarness(t)
	server := h.start(t)

	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusFailure})

	select {
	case err := <-h.done:
		require.ErrorIs(t, err, ErrLoginFailed)
	case <-time.After(testTimeout):
		t.Fatal("session kept running after rejected login")
	}
	require.Equal(t, StateDisconnected, h.session.State())
}

func TestNonAuthPacketBeforeLoginIsViolation(t *testing.T) {
	h := newHarness(t)
	server := h.start(t)

	expect[wire.Login](t, server)

	// A confirmation in CONNECTED_UNAUTHENTICATED is out of protocol.
	reply(t, server, wire.TaskConfirm{TableGlobalID: 501, TaskID: 1, GlobalID: 900})

	ev := h.waitEvent(t, events.KindProtocolError)
	require.Contains(t, string(ev.Data), "TASK_CONFIRM")

	// The session survives: it drops to DISCONNECTED and redials instead
	// of terminating.
	h.waitState(t, StateConnecting)
	select {
	case err := <-h.done:
		t.Fatalf("session stopped: %v", err)
	default:
	}
}

func TestUnknownTagIsViolation(t *testing.T) {
	h := newHarness(t)
	server := h.start(t)

	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})
	h.waitState(t, StateAuthenticated)

	// Raw frame with a tag outside the enumeration.
	_, err := server.Write([]byte{0, 0, 0, 2, 0xEE, 0xFF})
	require.NoError(t, err)

	h.waitEvent(t, events.KindProtocolError)
	h.waitState(t, StateConnecting)
}

func TestAuthPacketAfterLoginIsViolation(t *testing.T) {
	h := newHarness(t)
	server := h.start(t)

	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})
	h.waitState(t, StateAuthenticated)

	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})

	ev := h.waitEvent(t, events.KindProtocolError)
	require.Contains(t, string(ev.Data), "LOGIN_RESULT")
}

func TestFlushPendingCreationsOnAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Author offline: nothing is connected yet.
	tableID, err := h.session.CreateTable(ctx, "Sprint", "Q1 plan")
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	taskID, err := h.session.CreateTask(ctx, tableID, model.TaskChange{Name: "Design", StartDate: &start})
	require.NoError(t, err)

	server := h.start(t)
	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})

	// The unconfirmed table is resent first; its task waits for the
	// table's global id.
	create := expect[wire.CreateTable](t, server)
	require.Equal(t, tableID, create.LocalID)
	require.Equal(t, "Sprint", create.Name)

	reply(t, server, wire.TableConfirm{LocalID: tableID, GlobalID: 501})

	task := expect[wire.CreateTask](t, server)
	require.Equal(t, int32(501), task.TableID)
	require.Equal(t, taskID, task.TaskID)
	require.Equal(t, "2024-01-01", task.StartDate)

	reply(t, server, wire.TaskConfirm{TableGlobalID: 501, TaskID: taskID, GlobalID: 900})

	require.Eventually(t, func() bool {
		return h.store.TableGlobalID(tableID) == 501 && h.store.TaskGlobalID(tableID, taskID) == 900
	}, testTimeout, 5*time.Millisecond)
}

func TestOfflineCreationsFollowFirstLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A brand-new profile: no login has ever happened, so the author id
	// is the provisional zero.
	tableID, err := h.session.CreateTable(ctx, "Sprint", "Q1 plan")
	require.NoError(t, err)
	require.Equal(t, model.PermissionOwner, h.store.Permission(tableID, 0))

	server := h.start(t)
	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 42})
	h.waitState(t, StateAuthenticated)
	expect[wire.CreateTable](t, server)

	// The owner grant follows the server-assigned id, so the author is
	// not locked out of their own table.
	require.Eventually(t, func() bool {
		return h.store.Permission(tableID, 42) == model.PermissionOwner
	}, testTimeout, 5*time.Millisecond)
	require.Equal(t, model.PermissionNone, h.store.Permission(tableID, 0))

	require.NoError(t, h.session.ChangeTable(ctx, tableID, "Renamed", ""))
}

func TestRemoteChangesApplyToStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tableID, err := h.session.CreateTable(ctx, "Sprint", "Q1 plan")
	require.NoError(t, err)

	server := h.start(t)
	expect[wire.Login](t, server)
	reply(t, server, wire.LoginResult{Status: wire.StatusSuccess, UserID: 1})
	expect[wire.CreateTable](t, server)
	reply(t, server, wire.TableConfirm{LocalID: tableID, GlobalID: 501})
	h.waitEvent(t, events.KindTableUpdate)

	// A change for an unknown global id is logged and skipped, not fatal.
	reply(t, server, wire.TableChange{TableGlobalID: 999, UserID: 2, Time: 2000, Name: "ghost"})

	reply(t, server, wire.TableChange{
		TableGlobalID: 501,
		UserID:        2,
		Time:          time.Now().UnixMilli() + 1000,
		Name:          "Sprint v2",
		Description:   "Q1 plan revised",
	})

	require.Eventually(t, func() bool {
		view, ok := h.store.TableView(tableID)
		return ok && view.Name == "Sprint v2"
	}, testTimeout, 5*time.Millisecond)

	view, _ := h.store.TableView(tableID)
	require.Equal(t, int32(501), view.GlobalID, "global id preserved across changes")
}

func TestPermissionGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Owned by user 7; the session user is somebody else.
	tableID, err := h.store.CreateTable(ctx, 7, 1000, "Theirs", "")
	require.NoError(t, err)

	err = h.session.ChangeTable(ctx, tableID, "Mine now", "")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = h.session.CreateTask(ctx, tableID, model.TaskChange{Name: "task"})
	require.ErrorIs(t, err, ErrPermissionDenied)

	err = h.session.SetPermission(ctx, tableID, 9, model.PermissionWrite)
	require.ErrorIs(t, err, ErrPermissionDenied)

	// WRITE lets the session user change and comment but not grant.
	h.session.userID = 9
	require.NoError(t, h.store.SetPermission(ctx, tableID, 9, model.PermissionWrite))

	require.NoError(t, h.session.ChangeTable(ctx, tableID, "Renamed", ""))
	taskID, err := h.session.CreateTask(ctx, tableID, model.TaskChange{Name: "task"})
	require.NoError(t, err)
	require.NoError(t, h.session.AddComment(ctx, tableID, taskID, "hello"))

	err = h.session.SetPermission(ctx, tableID, 11, model.PermissionRead)
	require.ErrorIs(t, err, ErrPermissionDenied)

	// OWNER may grant.
	h.session.userID = 7
	require.NoError(t, h.session.SetPermission(ctx, tableID, 11, model.PermissionRead))
}

func TestRegister(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Username = "lena"
	cfg.Password = "qqqq"
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Dial = func(context.Context) (net.Conn, error) { return client, nil }

	done := make(chan error, 1)
	go func() { done <- Register(context.Background(), cfg, "Lena") }()

	req := expect[wire.Register](t, server)
	require.Equal(t, "lena", req.Username)
	require.Equal(t, "Lena", req.Name)
	reply(t, server, wire.RegisterResult{Status: wire.StatusSuccess})

	require.NoError(t, <-done)
}

func TestRegisterRejected(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Dial = func(context.Context) (net.Conn, error) { return client, nil }

	done := make(chan error, 1)
	go func() { done <- Register(context.Background(), cfg, "Lena") }()

	expect[wire.Register](t, server)
	reply(t, server, wire.RegisterResult{Status: wire.StatusFailure})

	require.ErrorIs(t, <-done, ErrRegisterFailed)
}
