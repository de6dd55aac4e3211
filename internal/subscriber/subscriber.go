// Package subscriber implements the outbound websocket server (spec §6
// fan-out envelope, §12 supplemented JWT auth handshake). It is grounded on
// the original trackserver2 WebSocketManager's connect/subscribe/unsubscribe
// control protocol, translated from FastAPI+asyncio to coder/websocket
// over net/http.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cinet-track/ingest/internal/hub"
	"github.com/cinet-track/ingest/internal/logging"
)

var errMissingToken = errors.New("subscriber: missing token")

// Server serves the /ws subscriber endpoint.
type Server struct {
	hub       *hub.Hub
	jwtSecret string // empty disables auth entirely (spec §12)
}

// New builds a subscriber Server publishing through h. An empty jwtSecret
// disables the optional bearer-token handshake.
func New(h *hub.Hub, jwtSecret string) *Server {
	return &Server{hub: h, jwtSecret: jwtSecret}
}

// Handler returns the http.Handler to mount at the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.jwtSecret != "" {
		if err := s.checkToken(r.URL.Query().Get("token")); err != nil {
			logging.L.Warnw("websocket auth rejected", "error", err, "remote", r.RemoteAddr)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.L.Warnw("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sink := newConnSink(conn)
	s.hub.Attach(sink)
	defer s.hub.Detach(sink)

	logging.L.Debugw("subscriber connected", "conn_id", sink.id)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			logging.L.Debugw("subscriber disconnected", "conn_id", sink.id, "error", err)
			return
		}
		s.handleMessage(ctx, sink, data)
	}
}

func (s *Server) checkToken(token string) error {
	if token == "" {
		return errMissingToken
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}

// handleMessage dispatches one inbound control message (spec §6: subscribe,
// unsubscribe, ping).
func (s *Server) handleMessage(ctx context.Context, sink *connSink, data []byte) {
	var req hub.SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logging.L.Warnw("invalid subscriber message", "error", err)
		return
	}

	switch req.Type {
	case "subscribe":
		s.hub.Subscribe(sink, req.DeviceIDs)
		sink.sendJSON(hub.SubscriptionReply{Type: "subscribed", DeviceIDs: req.DeviceIDs})
	case "unsubscribe":
		s.hub.Unsubscribe(sink, req.DeviceIDs)
		sink.sendJSON(hub.SubscriptionReply{Type: "unsubscribed", DeviceIDs: req.DeviceIDs})
	case "ping":
		sink.sendJSON(hub.PongEnvelope{Type: "pong"})
	default:
		logging.L.Warnw("unknown subscriber message type", "type", req.Type)
	}
}

// connSink adapts a coder/websocket connection to hub.Sink. Each sink carries
// a random id so log lines for a single connection can be correlated without
// exposing remote-address/session details.
type connSink struct {
	id   uuid.UUID
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{id: uuid.New(), conn: conn}
}

// Send writes one text message. A per-send timeout bounds a wedged peer;
// the hub treats any error as grounds to detach the sink (spec §4.8).
func (s *connSink) Send(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, msg)
}

func (s *connSink) sendJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		logging.L.Errorw("failed to marshal control reply", "error", err)
		return
	}
	if err := s.Send(msg); err != nil {
		logging.L.Debugw("failed to send control reply", "conn_id", s.id, "error", err)
	}
}
