package sink

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// weightsMessage is pushed to every connected renderer per applied frame.
type weightsMessage struct {
	Type    string             `json:"type"`
	Weights map[string]float64 `json:"weights"`
}

// StreamSink broadcasts applied weights over a WebSocket endpoint for
// renderer front ends. Slow or dead clients are dropped rather than
// allowed to stall the tick path.
type StreamSink struct {
	addr     string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	srv      *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewStreamSink creates a broadcast sink on addr.
func NewStreamSink(addr string, logger zerolog.Logger) *StreamSink {
	return &StreamSink{
		addr:   addr,
		logger: logger.With().Str("component", "sink-stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins serving /ws/weights in the background.
func (s *StreamSink) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/weights", s.handleWS)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Weight stream listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Weight stream server failed")
		}
	}()
	return nil
}

// Stop disconnects all clients and shuts the server down.
func (s *StreamSink) Stop() {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(ctx)
	}
}

// ApplyWeights broadcasts one weight map to every connected client.
func (s *StreamSink) ApplyWeights(weights map[string]float64) {
	msg := weightsMessage{Type: "weights", Weights: weights}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug().Err(err).Msg("Dropping weight stream client")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ClientCount returns the number of connected renderers.
func (s *StreamSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *StreamSink) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Renderer connected")

	// Reader exists only to notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
		s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Renderer disconnected")
	}()
}
