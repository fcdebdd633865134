package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/records"
	"go.uber.org/zap"
)

var socketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 10,
	WriteBufferSize: 1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// socketConn serializes writes so broadcasts from concurrent publishers do
// not interleave on the wire. gorilla/websocket allows one writer at a time.
type socketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *socketConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *socketConn) Close() error {
	return c.conn.Close()
}

// handleTableSocket upgrades the request and keeps the connection subscribed
// to the table's event room until the peer goes away. Browsers cannot set an
// Authorization header on websocket requests, so the token rides the query
// string.
func (h *httpHandler) handleTableSocket(c *gin.Context) {
	tableID, ok := pathID(c, "tableID")
	if !ok {
		return
	}

	userID, err := h.deps.TokenIssuer.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if _, err := h.deps.Access.Require(c.Request.Context(), tableID, userID, access.LevelViewer); err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := socketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	room := records.TableRoom(tableID)
	subscriber := &socketConn{conn: conn}
	handle := h.deps.Broadcaster.Subscribe(subscriber, room)
	h.logger.Info("websocket subscribed",
		zap.Int64("table_id", tableID),
		zap.Int64("user_id", userID),
		zap.String("handle", handle))

	defer func() {
		h.deps.Broadcaster.Unsubscribe(handle, room)
		_ = conn.Close()
		h.logger.Info("websocket closed",
			zap.Int64("table_id", tableID),
			zap.String("handle", handle))
	}()

	// Inbound frames are ignored; the read loop only detects disconnects
	// and answers control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
