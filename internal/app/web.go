package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the boat network is local
	},
}

const wsWriteTimeout = time.Second

// State is the latest pipeline view served at /api/state.
type State struct {
	Output  *pipeline.Output `json:"output,omitempty"`
	Stroke  *stroke.Event    `json:"stroke,omitempty"`
	GPS     *gps.Sample      `json:"gps,omitempty"`
	Strokes int              `json:"strokes"`
}

// Status keeps the latest output for HTTP clients and pushes strokes to
// websocket subscribers.
type Status struct {
	pipeline.NopObserver

	mu      sync.RWMutex
	state   State
	clients map[*websocket.Conn]struct{}
	log     *zap.Logger
}

func NewStatus(logger *zap.Logger) *Status {
	return &Status{clients: map[*websocket.Conn]struct{}{}, log: logger}
}

func (s *Status) OnSample(o pipeline.Output) {
	s.mu.Lock()
	s.state.Output = &o
	s.mu.Unlock()
}

func (s *Status) OnStroke(e stroke.Event) {
	s.mu.Lock()
	s.state.Stroke = &e
	s.state.Strokes++
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.WriteJSON(e); err != nil {
			s.log.Debug("websocket client dropped", zap.Error(err))
			s.drop(c)
		}
	}
}

func (s *Status) OnGPS(f gps.Sample) {
	s.mu.Lock()
	s.state.GPS = &f
	s.mu.Unlock()
}

func (s *Status) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Status) drop(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.Close()
}

// Handler serves /api/state, /ws and, when metrics is non-nil, /metrics.
func (s *Status) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		st := s.Snapshot()
		if st.Output == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			s.log.Warn("json encode error", zap.Error(err))
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade error", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		// read until the client goes away; strokes are written by OnStroke
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
