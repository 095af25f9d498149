package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/core/event"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// clientMessage is what browsers send on /ws.
type clientMessage struct {
	Op   string `json:"op"` // "watch", "unwatch" or "get"
	Path string `json:"path"`
}

// serverMessage is every frame the hub pushes. Unused fields are omitted.
type serverMessage struct {
	Type     string       `json:"type"`
	Path     string       `json:"path,omitempty"`
	New      *watch.Value `json:"new,omitempty"`
	Old      *watch.Value `json:"old,omitempty"`
	OldSet   *bool        `json:"old_set,omitempty"`
	Set      *bool        `json:"set,omitempty"`
	Value    *watch.Value `json:"value,omitempty"`
	Watching *bool        `json:"watching,omitempty"`
	Run      *runResponse `json:"run,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Hub tracks websocket clients and the tracker registrations they own.
// Watcher callbacks run on the game loop and never block: frames go to a
// bounded per-client channel and are dropped when it is full.
type Hub struct {
	tracker  *watch.Tracker
	upgrader websocket.Upgrader
	bufSize  int
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	watches map[string][]watch.WatchID
}

func NewHub(tracker *watch.Tracker, cfg config.WebConfig, log *zap.Logger) *Hub {
	h := &Hub{
		tracker: tracker,
		bufSize: cfg.ClientBuffer,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
	if h.bufSize < 1 {
		h.bufSize = 1
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set["*"] || set[r.Header.Get("Origin")]
	}
}

// HandleWebSocket upgrades the request and serves the client until it leaves.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.bufSize),
		done:    make(chan struct{}),
		watches: make(map[string][]watch.WatchID),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go c.writePump()
	c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Forget drops registration ids after the tracker cleared path ("" for
// everything) and tells every client. Registered with ScriptSystem.OnClear.
func (h *Hub) Forget(path string) {
	msg := encode(serverMessage{Type: "reset", Path: path})
	for _, c := range h.snapshot() {
		c.mu.Lock()
		if path == "" {
			clear(c.watches)
		} else {
			delete(c.watches, path)
		}
		c.mu.Unlock()
		c.push(msg)
	}
}

// OnRunFinished pushes a run summary to every client. Subscribed on the
// event bus, so it runs on the game loop.
func (h *Hub) OnRunFinished(ev event.RunFinished) {
	run := newRunResponse(ev.Result)
	msg := encode(serverMessage{Type: "run", Run: &run})
	for _, c := range h.snapshot() {
		c.push(msg)
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot() {
		c.close()
	}
}

func (h *Hub) snapshot() []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (c *wsClient) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read failed", zap.Error(err))
			}
			if isBadMessage(err) {
				c.push(encode(serverMessage{Type: "error", Error: "invalid message: " + err.Error()}))
				continue
			}
			return
		}
		c.handle(msg)
	}
}

// isBadMessage reports whether a read failed on the message contents rather
// than on the connection.
func isBadMessage(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (c *wsClient) handle(msg clientMessage) {
	if msg.Path == "" {
		c.push(encode(serverMessage{Type: "error", Error: msg.Op + ": empty path"}))
		return
	}
	switch msg.Op {
	case "watch":
		path := msg.Path
		id := c.hub.tracker.Watch(path, func(newValue, oldValue watch.Value) {
			oldSet := oldValue.IsSet()
			c.push(encode(serverMessage{Type: "change", Path: path, New: &newValue, Old: &oldValue, OldSet: &oldSet}))
		})
		c.mu.Lock()
		c.watches[path] = append(c.watches[path], id)
		c.mu.Unlock()
		watching := true
		c.push(encode(serverMessage{Type: "watching", Path: path, Watching: &watching}))
	case "unwatch":
		c.mu.Lock()
		ids := c.watches[msg.Path]
		delete(c.watches, msg.Path)
		c.mu.Unlock()
		for _, id := range ids {
			c.hub.tracker.Unwatch(id)
		}
		watching := false
		c.push(encode(serverMessage{Type: "watching", Path: msg.Path, Watching: &watching}))
	case "get":
		v := c.hub.tracker.Value(msg.Path)
		set := v.IsSet()
		c.push(encode(serverMessage{Type: "value", Path: msg.Path, Set: &set, Value: &v}))
	default:
		c.push(encode(serverMessage{Type: "error", Error: "unknown op " + msg.Op}))
	}
}

// push queues a frame without blocking.
func (c *wsClient) push(msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.hub.log.Debug("websocket client too slow, frame dropped")
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close unregisters the client and removes its tracker registrations.
func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		c.hub.mu.Unlock()

		c.mu.Lock()
		for _, ids := range c.watches {
			for _, id := range ids {
				c.hub.tracker.Unwatch(id)
			}
		}
		clear(c.watches)
		c.mu.Unlock()
		c.conn.Close()
	})
}

// encode never returns an empty frame: a message that cannot be marshalled
// is replaced by an error frame.
func encode(msg serverMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		b, _ = json.Marshal(serverMessage{Type: "error", Path: msg.Path, Error: "encode " + msg.Type + ": " + err.Error()})
	}
	return b
}
