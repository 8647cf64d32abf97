package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/progress"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

const (
	wsWriteWait       = 10 * time.Second
	wsMaxMessageBytes = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientFrame is what the browser sends: one query per frame.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// session is one websocket connection: its own history, strictly
// sequential turns. The writer goroutine is the only writer on the
// connection; progress events flow through send.
type session struct {
	id       string
	server   *Server
	conn     *websocket.Conn
	send     chan []byte
	history  []protocol.Message
	writerGo chan struct{}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.GetLogger().Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:       uuid.NewString(),
		server:   s,
		conn:     conn,
		send:     make(chan []byte, 64),
		writerGo: make(chan struct{}),
	}

	s.metrics.WSConnections.Inc()
	defer s.metrics.WSConnections.Dec()

	go sess.writeLoop()
	sess.readLoop(r)

	close(sess.send)
	<-sess.writerGo
	_ = conn.Close()
}

// readLoop processes queries one at a time. The next frame is not read
// until the previous turn finishes, which serializes turns per session.
func (sess *session) readLoop(r *http.Request) {
	log := logger.GetLogger().With("session", sess.id)
	sess.conn.SetReadLimit(wsMaxMessageBytes)
	log.Info("websocket session opened")

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", "error", err)
			} else {
				log.Info("websocket session closed")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "query" {
			sess.sendEvent(progress.Error("expected a {\"type\":\"query\",\"text\":...} frame"))
			continue
		}

		sess.runTurn(r.Context(), frame.Text)
	}
}

func (sess *session) runTurn(ctx context.Context, query string) {
	sink := progress.NewSink()
	turnCtx := progress.NewContext(ctx, sink)

	done := make(chan *protocol.ChatbotState, 1)
	go func() {
		done <- sess.server.executor.RunTurn(turnCtx, protocol.NewChatbotState(sess.history, query))
	}()

	// RunTurn closes the sink, ending this loop.
	for event := range sink.Events() {
		if event.Type == progress.EventToolStart {
			sess.server.metrics.ToolCallsTotal.WithLabelValues(event.Tool).Inc()
		}
		sess.sendEvent(event)
	}

	state := <-done
	sess.history = state.Messages
	sess.server.metrics.TurnsTotal.WithLabelValues(string(state.WorkflowStep)).Inc()
}

func (sess *session) sendEvent(event progress.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.GetLogger().Error("failed to marshal progress event", "error", err)
		return
	}
	sess.send <- data
}

// writeLoop owns the connection's write side.
func (sess *session) writeLoop() {
	defer close(sess.writerGo)
	failed := false
	for data := range sess.send {
		if failed {
			// Keep draining so the turn's emitter never blocks on a dead
			// connection.
			continue
		}
		_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.GetLogger().Warn("websocket write failed", "error", err)
			failed = true
		}
	}
}
