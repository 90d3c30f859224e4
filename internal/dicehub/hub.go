// Package dicehub implements the WebSocket fan-out server backing /ws/dice
// (spec.md §6.1): one producer per skill-check resolution or state commit,
// broadcasting to every connected browser client. A Redis pub/sub channel
// carries frames across API replicas so a client connected to a different
// process than the one that resolved the check still receives it
// (SPEC_FULL.md §9, "cross-replica dice/state-refresh fan-out").
package dicehub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ai-trpg/keeper/internal/errors"
	"github.com/ai-trpg/keeper/internal/pkg/idgen"
	"github.com/ai-trpg/keeper/internal/ports"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
)

const (
	diceChannel      = "dice:events"
	refreshChannel   = "character:refresh"
	clientBufferSize = 16
)

// Config holds the hub's dependencies.
type Config struct {
	Redis redisclient.Client
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Redis == nil {
		vb.RequiredField("Redis")
	}
	return vb.Build()
}

// Hub fans out dice-roll and character-refresh frames to every WebSocket
// client connected to this process, re-broadcasting whatever any replica's
// Push/PublishRefresh calls publish to Redis.
type Hub struct {
	redis redisclient.Client
	ids   idgen.Generator

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

// subscriber is one connected WebSocket client.
type subscriber struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	writeMu sync.Mutex
}

// New constructs a Hub from cfg.
func New(cfg Config) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &Hub{
		redis:   cfg.Redis,
		ids:     idgen.NewUUID("dice-sub"),
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Run subscribes to the cross-replica pub/sub channels and fans every
// received frame out to this process's connected clients until ctx is
// cancelled. Callers run this once per process alongside the HTTP server.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.redis.Subscribe(ctx, diceChannel, refreshChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.broadcastLocal([]byte(msg.Payload))
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and registers
// it as a /ws/dice subscriber for the life of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("dicehub: upgrade failed", "error", err)
		return
	}
	sub := &subscriber{id: h.ids.Generate(), conn: conn, send: make(chan []byte, clientBufferSize)}

	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()
	slog.Info("dicehub: subscriber connected", "subscriber_id", sub.id)

	go h.writePump(sub)
	h.readPump(sub)
}

// writePump drains sub.send to the socket, serializing writes the way
// gorilla/websocket requires for concurrent access.
func (h *Hub) writePump(sub *subscriber) {
	for msg := range sub.send {
		sub.writeMu.Lock()
		err := sub.conn.WriteMessage(websocket.TextMessage, msg)
		sub.writeMu.Unlock()
		if err != nil {
			h.removeClient(sub)
			return
		}
	}
}

// readPump discards client frames; /ws/dice is a server-push channel, but
// reading keeps the connection's close/ping handling alive and detects
// client disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.removeClient(sub)
		sub.conn.Close()
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
		slog.Info("dicehub: subscriber disconnected", "subscriber_id", sub.id)
	}
}

// broadcastLocal fans payload out to every client of this process. A
// subscriber whose buffer is full is removed and its connection closed
// rather than allowed to block the producer (spec.md §5: "subscribers' slow
// reads must not block the producer; the hub buffers per-subscriber with
// bounded backpressure and drops non-responsive subscribers").
func (h *Hub) broadcastLocal(payload []byte) {
	var slow []*subscriber
	h.mu.RLock()
	for sub := range h.clients {
		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range slow {
		slog.Warn("dicehub: dropping slow subscriber", "subscriber_id", sub.id)
		h.removeClient(sub)
		sub.conn.Close()
	}
}

// Push implements ports.DiceSink: publish a skill-check result frame to the
// cross-replica channel so every hub process, including this one, fans it
// out to its own connected clients.
func (h *Hub) Push(ctx context.Context, event ports.DiceEvent) error {
	if event.Type == "" {
		event.Type = "skill_check_result"
	}
	return h.publish(ctx, diceChannel, event)
}

// PublishRefresh implements ports.StateRefreshPublisher.
func (h *Hub) PublishRefresh(ctx context.Context, characterID string, timestamp int64) error {
	return h.publish(ctx, refreshChannel, ports.StateRefreshEvent{
		Type:        "character_state_refresh",
		CharacterID: characterID,
		Timestamp:   timestamp,
	})
}

func (h *Hub) publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Internalf("dicehub: marshal %s frame: %v", channel, err)
	}
	if err := h.redis.Publish(ctx, channel, data).Err(); err != nil {
		return errors.StoreUnavailablef("dicehub: publish %s: %v", channel, err)
	}
	return nil
}
