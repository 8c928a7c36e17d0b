package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Poller pulls utterance payloads from an HTTP endpoint at a fixed
// interval. A 200 with a body delivers one payload; 204 or an empty body
// means nothing is pending.
type Poller struct {
	url      string
	interval time.Duration
	handler  Handler
	client   *http.Client
	logger   zerolog.Logger
	cancel   context.CancelFunc
}

// NewPoller creates a polling transport for the given URL.
func NewPoller(url string, interval time.Duration, handler Handler, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Poller{
		url:      url,
		interval: interval,
		handler:  handler,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("component", "transport-poll").Logger(),
	}
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.loop(ctx)
	return nil
}

// Stop halts polling.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	p.logger.Info().Str("url", p.url).Dur("interval", p.interval).Msg("Polling for animation data")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("Poll failed")
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}

	if err := p.handler(payload); err != nil {
		p.logger.Warn().Err(err).Msg("Payload rejected")
	}
	return nil
}
