// Package live keeps open pages up to date over websockets. A connected page
// is a mounted consumer of its cache keys: while it is connected those keys
// are refetched on invalidation and the page is told to reload.
package live

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/observability"
	"github.com/example/parcel-express/internal/query"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Message struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Topic   string `json:"topic,omitempty"`
	State   string `json:"state,omitempty"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
}

// Subscription is what a connecting page mounts.
type Subscription struct {
	Caller backend.Caller
	Keys   []query.Key
	Topics []string
}

// Resolver decides what a websocket request may subscribe to. ok=false
// rejects the connection.
type Resolver func(r *http.Request) (sub Subscription, ok bool)

// Session is one connected page.
type Session struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	keys   []query.Key
	topics map[string]bool
}

func (s *Session) Send(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(m)
}

func (s *Session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type Hub struct {
	client   *query.Client
	resolve  Resolver
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub builds a hub and subscribes it to the client's invalidations.
func NewHub(client *query.Client, resolve Resolver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		client:   client,
		resolve:  resolve,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	client.Cache().OnInvalidate(h.Invalidated)
	return h
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	observability.LiveConnections.Inc()
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		observability.LiveConnections.Dec()
	}
}

// Len returns the number of connected pages.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.resolve(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live_upgrade_failed", "error", err)
		return
	}
	s := &Session{conn: conn, keys: sub.Keys, topics: make(map[string]bool)}
	for _, t := range sub.Topics {
		s.topics[t] = true
	}
	unwatch := h.client.Watch(sub.Caller, sub.Keys...)
	h.add(s)
	h.logger.Debug("live_connected", "keys", len(sub.Keys), "topics", len(sub.Topics))

	defer func() {
		unwatch()
		h.remove(s)
		_ = conn.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := s.ping(); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Invalidated tells every page mounting a key covered by patterns to reload.
func (h *Hub) Invalidated(patterns []query.Key) {
	for _, s := range h.snapshot() {
		for _, p := range patterns {
			if s.mounts(p) {
				if err := s.Send(Message{Type: "invalidate", Key: p.String()}); err != nil {
					h.logger.Debug("live_send_failed", "error", err)
				}
				break
			}
		}
	}
}

func (s *Session) mounts(pattern query.Key) bool {
	for _, k := range s.keys {
		if pattern.Matches(k) {
			return true
		}
	}
	return false
}

// Progress forwards an upload state change to pages subscribed to topic.
func (h *Hub) Progress(topic, state string, percent int, errMsg string) {
	for _, s := range h.snapshot() {
		if !s.topics[topic] {
			continue
		}
		if err := s.Send(Message{Type: "progress", Topic: topic, State: state, Percent: percent, Error: errMsg}); err != nil {
			h.logger.Debug("live_send_failed", "topic", topic, "error", err)
		}
	}
}
