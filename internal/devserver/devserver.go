// Package devserver is a debug inspector for a running world.World: a
// WebSocket endpoint that broadcasts instance snapshots and runtime faults
// to any number of connected clients, adapted from the teacher's WebSocket
// server/connection pair (one goroutine per client reading its own
// messages, a shared Clients map guarded by a RWMutex, broadcast fanning
// out to every live connection).
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gmlvm/internal/errors"
	"gmlvm/internal/world"
)

// client is one connected inspector (a browser tab, a CLI watcher).
type client struct {
	id   uuid.UUID
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *client) send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closed = true
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

// event is the envelope every broadcast message is wrapped in, so a client
// can dispatch on Type without guessing at the shape of Payload.
type event struct {
	Type    string      `json:"type"`
	At      string      `json:"at"`
	Payload interface{} `json:"payload"`
}

// instanceSnapshot is one instance's id and object class, the inspector's
// view of world.Instance (its dynamic member table stays internal: the
// host decides what, if anything, to expose per member).
type instanceSnapshot struct {
	ID          int `json:"id"`
	ObjectClass int `json:"objectClass"`
}

// worldSnapshot is periodically broadcast so a connected inspector can
// render the live instance population without polling.
type worldSnapshot struct {
	Instances []instanceSnapshot `json:"instances"`
	Summary   string             `json:"summary"`
}

// faultEvent mirrors an errors.RuntimeError for a connected inspector; the
// call stack is flattened to strings since a client has no use for a
// diag.Position struct, only its already-formatted text.
type faultEvent struct {
	Kind      string   `json:"kind"`
	Message   string   `json:"message"`
	Function  string   `json:"function"`
	CallStack []string `json:"callStack"`
}

// Server is a WebSocket debug endpoint over one world.World. It owns no
// reference to a vm.Thread: the host calls NotifyFault/Broadcast itself
// after a Thread.Execute call returns, keeping this package free of an
// import on package vm.
type Server struct {
	world *world.World

	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

// NewServer returns a Server inspecting w, not yet listening.
func NewServer(w *world.World) *Server {
	return &Server{
		world:   w,
		clients: make(map[uuid.UUID]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ListenAndServe starts the HTTP server hosting the "/inspect" WebSocket
// endpoint and a periodic world-snapshot broadcaster; it returns once the
// listener is up, running the server itself in the background. Stop shuts
// it down.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", s.handleInspect)

	s.http = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("devserver: listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("devserver: serve: %v", err)
		}
	}()
	go s.broadcastLoop()

	return nil
}

// Stop closes the HTTP listener and every connected client.
func (s *Server) Stop() error {
	s.mu.Lock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.New(), conn: conn}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.send(c, event{Type: "snapshot", At: now(), Payload: s.snapshot()})

	go s.readLoop(c)
}

// readLoop only drains the connection so the client's pings/closes are
// observed; the inspector protocol is broadcast-only in this direction.
func (s *Server) readLoop(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.RLock()
		n := len(s.clients)
		s.mu.RUnlock()
		if n == 0 {
			continue
		}
		s.Broadcast("snapshot", s.snapshot())
	}
}

func (s *Server) snapshot() worldSnapshot {
	ids := s.world.Resolve(world.SetAll, 0)
	snap := worldSnapshot{Instances: make([]instanceSnapshot, 0, len(ids))}
	for _, id := range ids {
		inst, ok := s.world.Instance(id)
		if !ok {
			continue
		}
		snap.Instances = append(snap.Instances, instanceSnapshot{ID: inst.ID, ObjectClass: inst.ObjectClass})
	}
	snap.Summary = fmt.Sprintf("%s live instances", humanize.Comma(int64(len(snap.Instances))))
	return snap
}

// NotifyFault broadcasts a runtime fault to every connected inspector, for
// the host to call from whatever caught a Thread.Execute error.
func (s *Server) NotifyFault(rerr *errors.RuntimeError) {
	fe := faultEvent{
		Kind:     rerr.Kind.String(),
		Message:  rerr.Message,
		Function: rerr.Function,
	}
	for _, f := range rerr.CallStack {
		fe.CallStack = append(fe.CallStack, f.Function)
	}
	s.Broadcast("fault", fe)
}

// Broadcast sends an arbitrary named event to every connected client.
func (s *Server) Broadcast(eventType string, payload interface{}) {
	e := event{Type: eventType, At: now(), Payload: payload}
	body, err := json.Marshal(e)
	if err != nil {
		log.Printf("devserver: marshal %s: %v", eventType, err)
		return
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.send(body)
	}
}

func (s *Server) send(c *client, e event) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	c.send(body)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
