package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
)

// streamEvents upgrades to a WebSocket and forwards every event of one
// conversation as a JSON text frame until either side goes away. Client
// frames are not read; the connection is write-only.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	if _, err := s.ctl.Conversation(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		// Accept has already written the error response.
		slog.Debug("api: websocket accept failed", "conversation_id", id, "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.events.Subscribe(id)
	defer cancel()

	s.metrics.EventSubscribers.Add(r.Context(), 1)
	defer s.metrics.EventSubscribers.Add(context.WithoutCancel(r.Context()), -1)

	slog.Info("event stream opened", "conversation_id", id)
	err = s.forward(conn.CloseRead(r.Context()), conn, events)
	switch {
	case err == nil:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
	default:
		slog.Warn("api: event stream failed", "conversation_id", id, "err", err)
	}
	slog.Info("event stream closed", "conversation_id", id)
}

// forward writes events to conn until ctx ends or events is closed. A nil
// return means the subscription ended.
func (s *Server) forward(ctx context.Context, conn *websocket.Conn, events <-chan notify.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := wsjson.Write(wctx, conn, e)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// acceptOptions turns the configured CORS origins into WebSocket origin
// patterns, which match on host only.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if slices.Contains(s.origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
