package server

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tOgg1/cheerfeed/internal/events"
	"github.com/tOgg1/cheerfeed/internal/models"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// streamFilter builds a subscription filter from ?types=a,b&entity=id.
func streamFilter(r *http.Request) events.Filter {
	q := r.URL.Query()
	var filter events.Filter
	for _, t := range strings.Split(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.EventTypes = append(filter.EventTypes, models.EventType(t))
		}
	}
	filter.EntityID = strings.TrimSpace(q.Get("entity"))
	return filter
}

// GET /api/stream upgrades to a websocket and forwards matching events as
// JSON text frames. A client that falls behind loses events rather than
// stalling the publisher.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	subID := "stream-" + uuid.NewString()
	queue := make(chan *models.Event, streamBuffer)
	var dropped atomic.Int64
	err = s.pub.Subscribe(subID, streamFilter(r), func(event *models.Event) {
		select {
		case queue <- event:
		default:
			dropped.Add(1)
		}
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("stream subscribe failed")
		return
	}
	defer func() {
		_ = s.pub.Unsubscribe(subID)
		if n := dropped.Load(); n > 0 {
			s.logger.Debug().Str("subscription", subID).Int64("dropped", n).Msg("stream closed with dropped events")
		}
	}()
	s.logger.Debug().Str("subscription", subID).Msg("stream opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
