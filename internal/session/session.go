// Package session manages the client's single server connection.
//
// A Session is an explicit object constructed once at startup; there is no
// package-level singleton. Run drives the connection state machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED_UNAUTHENTICATED -> AUTHENTICATED
//
// On any connection loss the loop sleeps a fixed backoff and redials,
// forever, until the context is cancelled. On reaching AUTHENTICATED the
// session flushes every locally created, not-yet-confirmed entity so
// optimistic local work survives a reconnect.
//
// The session is also the authorization gate for outbound mutations: the
// Entity Store itself carries permissions as data only. Table and task
// changes and comments require WRITE on the table, permission grants
// require OWNER.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/store"
	"github.com/open-schedule/schedule-client/internal/wire"
)

var (
	// ErrProtocolViolation indicates the server sent a packet that is
	// invalid in the current state or carries an unknown type tag. The
	// session closes the connection and returns to DISCONNECTED; it does
	// not terminate the process.
	ErrProtocolViolation = errors.New("session: protocol violation")

	// ErrLoginFailed indicates the server rejected the credentials.
	// Retrying with the same credentials cannot succeed, so the run loop
	// stops instead of reconnecting.
	ErrLoginFailed = errors.New("session: login rejected")

	// ErrRegisterFailed indicates the server rejected account creation.
	ErrRegisterFailed = errors.New("session: registration rejected")

	// ErrPermissionDenied indicates the session user lacks the required
	// permission on the table.
	ErrPermissionDenied = errors.New("session: permission denied")
)

// State is a connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnauthenticated
	StateAuthenticated
)

// String returns the state name for logs and events.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnectedUnauthenticated:
		return "CONNECTED_UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// Config holds session settings.
type Config struct {
	// Addr is the server host:port.
	Addr string

	// Username and Password authenticate the session user.
	Username string
	Password string

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// ReconnectInterval is the fixed sleep between attempts.
	ReconnectInterval time.Duration

	// Dial overrides the transport; tests use net.Pipe here. Nil means
	// TCP to Addr.
	Dial func(ctx context.Context) (net.Conn, error)

	// Logger receives session logs.
	Logger *log.Logger
}

// DefaultConfig returns settings for a local development server.
func DefaultConfig() Config {
	return Config{
		Addr:              "localhost:4815",
		DialTimeout:       10 * time.Second,
		ReconnectInterval: time.Second,
		Logger:            log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// Session owns the server connection and mediates between the wire and
// the Entity Store.
type Session struct {
	cfg    Config
	store  *store.Store
	bus    *events.Bus
	logger *log.Logger

	// id distinguishes this client instance in logs and events.
	id uuid.UUID

	mu     sync.Mutex
	state  State
	conn   net.Conn
	userID int32

	// wmu serializes frame writes; command goroutines and the run loop
	// both send.
	wmu sync.Mutex
}

// New creates a disconnected session over the given store and event bus.
func New(cfg Config, st *store.Store, bus *events.Bus) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Session{
		cfg:    cfg,
		store:  st,
		bus:    bus,
		logger: logger,
		id:     uuid.New(),
		state:  StateDisconnected,
	}
}

// ID returns the client instance id.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the server-assigned id of the session user, zero before
// the first successful login.
func (s *Session) UserID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// AdoptUser sets the session user from a locally persisted identity, so
// offline work is attributed correctly before the first login. A later
// login overwrites it with the server's answer.
func (s *Session) AdoptUser(userID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == 0 {
		s.userID = userID
	}
}

// Run drives the connect/read loop until ctx is cancelled or login is
// rejected. It blocks; callers run it in a goroutine.
//
// Every connection loss except a credential rejection is retried after a
// fixed backoff. A protocol violation closes the connection, surfaces an
// error event and retries like any other loss.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runOnce(ctx)
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrLoginFailed) || errors.Is(err, ErrRegisterFailed) {
			return err
		}

		s.logger.Printf("connection lost: %v, retrying in %s", err, s.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

// runOnce performs one connect/authenticate/read cycle. It returns when
// the connection is lost for any reason.
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnectedUnauthenticated
	s.mu.Unlock()
	s.publishState(StateConnectedUnauthenticated)

	// Cancellation unblocks the decoder by closing the conn.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if err := s.send(wire.Login{Username: s.cfg.Username, Password: s.cfg.Password}); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	for {
		pkt, err := wire.Decode(conn)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				return s.violation(fmt.Sprintf("unknown packet tag: %v", err))
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := s.handle(ctx, pkt); err != nil {
			return err
		}
	}
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	if s.cfg.Dial != nil {
		return s.cfg.Dial(ctx)
	}
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	return d.DialContext(ctx, "tcp", s.cfg.Addr)
}

// send encodes one frame to the live connection. Sends race with the
// reader goroutine only on conn close, which surfaces as a write error.
func (s *Session) send(pkt wire.Packet) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("session: not connected")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := wire.Encode(conn, pkt); err != nil {
		return fmt.Errorf("send %s: %w", pkt.Type(), err)
	}
	return nil
}

// trySend sends when authenticated and silently skips otherwise. Local
// mutations never fail because the network is down; unsent creations are
// flushed on the next authentication.
func (s *Session) trySend(pkt wire.Packet) {
	s.mu.Lock()
	ready := s.state == StateAuthenticated && s.conn != nil
	s.mu.Unlock()
	if !ready {
		return
	}
	if err := s.send(pkt); err != nil {
		s.logger.Printf("deferred %s: %v", pkt.Type(), err)
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed {
		s.publishState(next)
	}
}

func (s *Session) publishState(state State) {
	s.logger.Printf("state: %s", state)
	s.bus.Publish(events.New(events.KindConnState, events.ConnStateData{State: state.String()}))
}

// violation closes out the current connection with a surfaced error. The
// caller returns the error up to Run, which puts the session back into
// DISCONNECTED.
func (s *Session) violation(reason string) error {
	s.logger.Printf("protocol violation: %s", reason)
	s.bus.Publish(events.New(events.KindProtocolError, events.ProtocolErrorData{Reason: reason}))
	return fmt.Errorf("%w: %s", ErrProtocolViolation, reason)
}

// Register creates an account with a one-shot connection, outside any
// session. The CLI uses it before the first login.
func Register(ctx context.Context, cfg Config, name string) error {
	var (
		conn net.Conn
		err  error
	)
	if cfg.Dial != nil {
		conn, err = cfg.Dial(ctx)
	} else {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		conn, err = d.DialContext(ctx, "tcp", cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := wire.Register{Username: cfg.Username, Password: cfg.Password, Name: name}
	if err := wire.Encode(conn, req); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	pkt, err := wire.Decode(conn)
	if err != nil {
		return fmt.Errorf("read register result: %w", err)
	}
	result, ok := pkt.(wire.RegisterResult)
	if !ok {
		return fmt.Errorf("%w: expected REGISTER_RESULT, got %s", ErrProtocolViolation, pkt.Type())
	}
	if result.Status != wire.StatusSuccess {
		return ErrRegisterFailed
	}
	return nil
}
