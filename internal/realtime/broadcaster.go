// Package realtime fans mutation events out to the subscribers of a table
// room. The registry is an explicitly constructed service injected into
// whatever publishes or subscribes; there is no process-global state.
package realtime

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the minimal surface the broadcaster needs from a transport
// connection. gorilla/websocket connections satisfy it directly.
type Conn interface {
	WriteJSON(v any) error
}

// Envelope is the wire shape of a broadcast message.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Broadcaster maintains the room registry. Delivery is at-most-once per
// connection with no retry, acknowledgement, or ordering guarantee relative
// to the database commit that triggered the event.
type Broadcaster struct {
	mu     sync.Mutex
	rooms  map[string]map[string]Conn
	logger *zap.Logger
	closed bool
}

// NewBroadcaster constructs an empty registry.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		rooms:  make(map[string]map[string]Conn),
		logger: logger,
	}
}

// Subscribe registers the connection in a room and returns the handle used
// to unsubscribe it.
func (b *Broadcaster) Subscribe(conn Conn, room string) string {
	handle := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return handle
	}
	if _, ok := b.rooms[room]; !ok {
		b.rooms[room] = make(map[string]Conn)
	}
	b.rooms[room][handle] = conn
	b.logger.Debug("realtime subscribe",
		zap.String("room", room),
		zap.Int("connections", len(b.rooms[room])))
	return handle
}

// Unsubscribe removes the connection from the room; the room is deleted once
// its last connection leaves.
func (b *Broadcaster) Unsubscribe(handle, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(handle, room)
}

// Publish pushes the event to every connection in the room. A failed send
// evicts only that connection; the fan-out continues.
func (b *Broadcaster) Publish(event string, payload any, room string) {
	if event == "" || room == "" {
		return
	}
	message := Envelope{Event: event, Payload: payload}

	b.mu.Lock()
	subscribers := b.rooms[room]
	if len(subscribers) == 0 {
		b.mu.Unlock()
		return
	}
	copies := make(map[string]Conn, len(subscribers))
	for handle, conn := range subscribers {
		copies[handle] = conn
	}
	b.mu.Unlock()

	var failed []string
	for handle, conn := range copies {
		if err := conn.WriteJSON(message); err != nil {
			b.logger.Warn("realtime send failed, evicting connection",
				zap.String("room", room), zap.Error(err))
			failed = append(failed, handle)
		}
	}
	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	for _, handle := range failed {
		b.removeLocked(handle, room)
	}
	b.mu.Unlock()
}

// RoomSize reports the current number of connections in a room.
func (b *Broadcaster) RoomSize(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}

// Close empties the registry and closes any connection that supports
// closing. Subscriptions after Close are inert.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for room, subscribers := range b.rooms {
		for _, conn := range subscribers {
			if closer, ok := conn.(io.Closer); ok {
				_ = closer.Close()
			}
		}
		delete(b.rooms, room)
	}
}

func (b *Broadcaster) removeLocked(handle, room string) {
	subscribers := b.rooms[room]
	if subscribers == nil {
		return
	}
	delete(subscribers, handle)
	if len(subscribers) == 0 {
		delete(b.rooms, room)
	}
}
