package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Observer is a WebSocket bridge that broadcasts bus events to connected
// UI clients.
//
// The sync engine itself has no visual surface; anything that wants to
// render connection state or entity updates connects to /ws and receives
// each Event as a JSON text message.
type Observer struct {
	addr     string
	bus      *Bus
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// ObserverConfig holds bridge configuration.
type ObserverConfig struct {
	// Port to listen on. Zero picks an ephemeral port, useful in tests.
	Port int

	// Logger for bridge activity (default: the process logger).
	Logger *log.Logger
}

// NewObserver creates a bridge over the given bus.
func NewObserver(bus *Bus, config *ObserverConfig) *Observer {
	if config == nil {
		config = &ObserverConfig{}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Observer{
		addr:    fmt.Sprintf("127.0.0.1:%d", config.Port),
		bus:     bus,
		clients: make(map[*websocket.Conn]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  config.Logger,
	}
}

// Start begins listening and forwarding bus events.
func (o *Observer) Start() error {
	ln, err := net.Listen("tcp", o.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", o.addr, err)
	}
	o.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", o.handleWebSocket)
	mux.HandleFunc("/health", o.handleHealth)

	o.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sub := o.bus.Subscribe(100)

	o.wg.Add(1)
	go o.forwardLoop(sub)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.logger.Printf("Observer bridge listening on %s", ln.Addr())
		if err := o.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			o.logger.Printf("Observer server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, valid after Start.
func (o *Observer) Addr() string {
	if o.listener == nil {
		return o.addr
	}
	return o.listener.Addr().String()
}

// Stop closes all client connections and shuts the bridge down.
func (o *Observer) Stop() error {
	o.cancel()

	o.clientsMu.Lock()
	for conn := range o.clients {
		_ = conn.Close(websocket.StatusGoingAway, "bridge shutting down")
		delete(o.clients, conn)
	}
	o.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("observer shutdown error: %w", err)
	}

	o.wg.Wait()
	return nil
}

// forwardLoop relays bus events to all connected clients.
func (o *Observer) forwardLoop(sub chan Event) {
	defer o.wg.Done()
	defer o.bus.Unsubscribe(sub)

	for {
		select {
		case <-o.ctx.Done():
			return

		case ev, ok := <-sub:
			if !ok {
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				o.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			o.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(o.clients))
			for conn := range o.clients {
				clients = append(clients, conn)
			}
			o.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					o.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (o *Observer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		o.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	o.clientsMu.Lock()
	o.clients[conn] = true
	count := len(o.clients)
	o.clientsMu.Unlock()

	o.logger.Printf("Observer connected (total: %d)", count)

	go o.readLoop(conn)
}

// readLoop drains client messages so pings flow; observers are
// receive-only.
func (o *Observer) readLoop(conn *websocket.Conn) {
	defer o.removeClient(conn)

	for {
		if _, _, err := conn.Read(o.ctx); err != nil {
			return
		}
	}
}

func (o *Observer) removeClient(conn *websocket.Conn) {
	o.clientsMu.Lock()
	if _, exists := o.clients[conn]; exists {
		delete(o.clients, conn)
		count := len(o.clients)
		o.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		o.logger.Printf("Observer disconnected (total: %d)", count)
		return
	}
	o.clientsMu.Unlock()
}

func (o *Observer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, o.clientCount())
}

func (o *Observer) clientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}
