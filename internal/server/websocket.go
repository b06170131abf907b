package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
	"github.com/joseph-ayodele/stocktake/internal/session"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClientMessage is what the capture screen sends: {"type":"activity","event":"click"}.
type wsClientMessage struct {
	Type  string                  `json:"type"`
	Event constants.ActivityEvent `json:"event"`
}

// sessionEvents bridges a session controller to a websocket. Client activity
// messages reset the clock; expiring and expired events are pushed back.
func (s *Server) sessionEvents(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !sess.Status.Resumable() {
		c.JSON(http.StatusConflict, gin.H{"error": "session is " + string(sess.Status)})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		requestLogger(c).Error("failed to upgrade connection to websocket", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()

	log := requestLogger(c).With("session_id", sess.ID)
	ctrl := s.deps.Controllers.Ensure(sess.ID)
	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	log.Info("session websocket connected")

	done := make(chan struct{})
	go s.wsWriter(conn, events, done)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("session websocket read failed", "err", err)
			}
			break
		}
		metrics.WebsocketMessagesTotal.WithLabelValues("received").Inc()
		if kind != websocket.TextMessage {
			continue
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "activity" {
			continue
		}
		ctrl.RecordActivity(msg.Event)
	}
	close(done)
	log.Info("session websocket closed")
}

// wsWriter is the connection's only writer. It stops when the controller
// closes the event stream or the reader goes away.
func (s *Server) wsWriter(conn *websocket.Conn, events <-chan session.Event, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			metrics.WebsocketMessagesTotal.WithLabelValues("sent").Inc()
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
