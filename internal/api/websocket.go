package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wrenfold/haptic-core/internal/message"
	"github.com/wrenfold/haptic-core/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local control surface; clients connect from arbitrary origins
	// (desktop apps, browsers on other hosts).
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and attaches one Session to it
// for the connection's lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newWSConn(ws, s.codec, s.cfg.WebSocket.WriteTimeoutDuration(), s.cfg.WebSocket.SendBuffer)

	sess := session.New(conn, s.manager, session.Config{
		ServerName:    s.cfg.Server.Name,
		VersionMin:    s.cfg.Server.SchemaVersionMin,
		VersionMax:    s.cfg.Server.SchemaVersionMax,
		MaxPingTime:   s.cfg.Safety.MaxPingIntervalDuration(),
		CheckInterval: s.cfg.Safety.CheckIntervalDuration(),
		StopScope:     s.cfg.Safety.StopScope,
	}, s.logger)

	s.logger.Info("client connected", "remote", r.RemoteAddr, "session", sess.ID())

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		sess.Run(s.baseCtx)
	}()

	go conn.writePump()
	s.readPump(ws, conn, sess)
}

// readPump drives the session with inbound frames until the connection
// drops or the session reports a terminal error.
func (s *Server) readPump(ws *websocket.Conn, conn *wsConn, sess *session.Session) {
	defer sess.Close()

	if s.cfg.WebSocket.MaxMessageSize > 0 {
		ws.SetReadLimit(int64(s.cfg.WebSocket.MaxMessageSize))
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error", "session", sess.ID(), "error", err)
			}
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			// A frame that fails to decode is rejected on its own; the
			// session stays up.
			_ = conn.Send(message.Message{
				ID:   message.EventID,
				Kind: message.KindError,
				Payload: &message.Error{
					Code:    message.ErrorCodeMessage,
					Message: err.Error(),
				},
			})
			continue
		}

		if err := sess.Handle(s.baseCtx, msg); err != nil {
			s.logger.Info("session terminated", "session", sess.ID(), "reason", err)
			return
		}
	}
}

// wsConn adapts a websocket connection to the session.Conn contract:
// encoded frames flow through a buffered channel drained by writePump,
// so Send never blocks session logic on a slow client.
type wsConn struct {
	ws           *websocket.Conn
	codec        message.Codec
	writeTimeout time.Duration

	send chan []byte

	once   sync.Once
	closed chan struct{}
}

func newWSConn(ws *websocket.Conn, codec message.Codec, writeTimeout time.Duration, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = 32
	}
	return &wsConn{
		ws:           ws,
		codec:        codec,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, buffer),
		closed:       make(chan struct{}),
	}
}

// Send encodes and queues one outbound message. Fails when the client
// has fallen a full buffer behind or the connection is closed.
func (c *wsConn) Send(msg message.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close tears the connection down. Idempotent.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})
	return nil
}

// writePump serializes all writes to the websocket.
func (c *wsConn) writePump() {
	defer c.ws.Close() //nolint:errcheck // Transport teardown

	for {
		select {
		case <-c.closed:
			deadline := time.Now().Add(time.Second)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case data := <-c.send:
			if c.writeTimeout > 0 {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
