package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/avatarstream/internal/bus"
	"github.com/rs/zerolog"
)

// WSClient maintains a persistent WebSocket connection to the speech
// pipeline, one JSON message per utterance.
type WSClient struct {
	url     string
	handler Handler
	events  *bus.EventBus
	logger  zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// NewWSClient creates a WebSocket transport for the given URL.
func NewWSClient(url string, handler Handler, events *bus.EventBus, logger zerolog.Logger) *WSClient {
	return &WSClient{
		url:     url,
		handler: handler,
		events:  events,
		logger:  logger.With().Str("component", "transport-ws").Logger(),
	}
}

// Start begins connecting in the background with reconnection.
func (c *WSClient) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.connectLoop(ctx)
	return nil
}

// Stop closes the connection and halts reconnection.
func (c *WSClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}

// IsConnected returns connection status.
func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// connectLoop maintains the connection with exponential backoff.
func (c *WSClient) connectLoop(ctx context.Context) {
	backoff := 3 * time.Second
	maxBackoff := 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.run(ctx); err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("WebSocket connection lost, reconnecting")
			if c.events != nil {
				c.events.Publish(bus.Event{
					Type: bus.EventTypeError,
					Data: map[string]any{"transport": "ws", "error": err.Error()},
				})
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		// Clean close, reset backoff before reconnecting.
		backoff = 3 * time.Second
	}
}

// run dials once and reads messages until the connection drops.
func (c *WSClient) run(ctx context.Context) error {
	c.logger.Info().Str("url", c.url).Msg("Connecting to animation stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to animation stream")
	if c.events != nil {
		c.events.Publish(bus.Event{
			Type: bus.EventTypeConnected,
			Data: map[string]any{"transport": "ws", "url": c.url},
		})
	}

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		if c.events != nil {
			c.events.Publish(bus.Event{
				Type: bus.EventTypeDisconnected,
				Data: map[string]any{"transport": "ws"},
			})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.handler(payload); err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("Payload rejected")
		}
	}
}
