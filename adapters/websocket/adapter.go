// Package websocket carries real-time events to browser and mobile clients
// over gorilla/websocket, wiring each socket into the connection registry and
// replaying the buffered event window on attach.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"

	"learnsync/core"
	"learnsync/engine"
	"learnsync/registry"
	"learnsync/replay"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	sendBufferSize = 256
)

// Transport implements engine.Transport over live websocket attachments.
// Deliver never blocks: a client whose outbound buffer is full misses the
// event and recovers it through the replay window on reconnect.
type Transport struct {
	mu      sync.RWMutex
	clients map[core.ConnectionID]*client
	logger  *slog.Logger
}

type client struct {
	ws   *gorillaws.Conn
	send chan core.Event
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func NewTransport(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{clients: make(map[core.ConnectionID]*client), logger: logger}
}

func (t *Transport) attach(id core.ConnectionID, c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[id] = c
}

func (t *Transport) detach(id core.ConnectionID) {
	t.mu.Lock()
	c, ok := t.clients[id]
	delete(t.clients, id)
	t.mu.Unlock()
	if ok {
		c.close()
	}
}

// Deliver queues an event for one connection's writer.
func (t *Transport) Deliver(_ context.Context, conn core.Connection, ev core.Event) error {
	t.mu.RLock()
	c, ok := t.clients[conn.ID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not attached", conn.ID)
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

var _ engine.Transport = (*Transport)(nil)

// Options configures the websocket attach endpoint.
type Options struct {
	Registry  *registry.Registry
	Buffer    *replay.Buffer
	Transport *Transport
	Logger    *slog.Logger
	// CheckOrigin overrides the upgrader's origin policy. Defaults to
	// accepting any origin; deployments front this with their own auth.
	CheckOrigin func(r *http.Request) bool
}

// Handler returns the attach endpoint. Clients connect with
// ?tenant=&user=&platform= and optionally ?since= (RFC3339) to bound the
// catch-up replay. Any inbound frame refreshes the connection's liveness.
func Handler(opts Options) http.Handler {
	if opts.Registry == nil || opts.Buffer == nil || opts.Transport == nil {
		panic("websocket.Handler requires registry, buffer, and transport")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: checkOrigin}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, ok := connectionFromRequest(r)
		if !ok {
			http.Error(w, "tenant, user, and valid platform are required", http.StatusBadRequest)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		if err := opts.Registry.Add(conn); err != nil {
			logger.Warn("connection rejected", "connection", conn.ID, "error", err)
			_ = ws.Close()
			return
		}
		c := &client{ws: ws, send: make(chan core.Event, sendBufferSize)}
		opts.Transport.attach(conn.ID, c)
		logger.Info("client attached",
			"connection", conn.ID, "tenant", conn.TenantID, "user", conn.UserID, "platform", conn.Platform)

		// Catch up on the buffered window by writing straight to the socket.
		// The merged user and tenant windows can exceed the send buffer, so
		// the backlog never goes through the channel; the writer takes over
		// once the socket is caught up.
		since := sinceFromRequest(r)
		for _, ev := range opts.Buffer.CatchUp(conn.UserID, conn.TenantID, since) {
			if err := writeEvent(ws, ev); err != nil {
				logger.Debug("catch-up write failed, closing", "connection", conn.ID, "error", err)
				_ = ws.Close()
				opts.Transport.detach(conn.ID)
				opts.Registry.Remove(conn.ID)
				return
			}
		}

		go writeLoop(ws, c, logger, conn.ID)
		readLoop(ws, opts, conn, logger)

		opts.Transport.detach(conn.ID)
		opts.Registry.Remove(conn.ID)
		logger.Info("client detached", "connection", conn.ID)
	})
}

func connectionFromRequest(r *http.Request) (core.Connection, bool) {
	q := r.URL.Query()
	now := time.Now().UTC()
	conn := core.Connection{
		ID:             core.ConnectionID(uuid.NewString()),
		UserID:         core.UserID(q.Get("user")),
		TenantID:       core.TenantID(q.Get("tenant")),
		Platform:       core.Platform(q.Get("platform")),
		EstablishedAt:  now,
		LastLivenessAt: now,
	}
	if err := conn.Validate(); err != nil {
		return core.Connection{}, false
	}
	return conn, true
}

func sinceFromRequest(r *http.Request) time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return since
}

func writeEvent(ws *gorillaws.Conn, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(gorillaws.TextMessage, data)
}

func writeLoop(ws *gorillaws.Conn, c *client, logger *slog.Logger, id core.ConnectionID) {
	for ev := range c.send {
		if err := writeEvent(ws, ev); err != nil {
			logger.Debug("write failed, closing", "connection", id, "error", err)
			_ = ws.Close()
			return
		}
	}
	_ = ws.WriteControl(gorillaws.CloseMessage, nil, time.Now().Add(writeWait))
	_ = ws.Close()
}

// readLoop consumes inbound frames until the socket dies. Every frame,
// including protocol pings, counts as a liveness signal.
func readLoop(ws *gorillaws.Conn, opts Options, conn core.Connection, logger *slog.Logger) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(appData string) error {
		opts.Registry.Touch(conn.ID)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(gorillaws.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		opts.Registry.Touch(conn.ID)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}
