package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Player starts and halts clip playback. Start is synchronous; completion
// is not reported back — the playback scheduler tracks it from elapsed
// time against the clip duration.
type Player interface {
	Play(clip *Clip) error
	Stop()
}

// SpeakerPlayer plays clips through the default output device. The
// speaker is initialized lazily from the first clip's format; clips with
// a different sample rate are resampled on the fly.
type SpeakerPlayer struct {
	mu        sync.Mutex
	buffer    time.Duration
	init      bool
	rate      beep.SampleRate
}

// NewSpeakerPlayer creates a player with the given device buffer size.
func NewSpeakerPlayer(buffer time.Duration) *SpeakerPlayer {
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	return &SpeakerPlayer{buffer: buffer}
}

// Play halts whatever is playing and starts the clip.
func (p *SpeakerPlayer) Play(clip *Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := clip.Format()
	if !p.init {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(p.buffer)); err != nil {
			return fmt.Errorf("init speaker: %w", err)
		}
		p.init = true
		p.rate = format.SampleRate
	}

	var streamer beep.Streamer = clip.Streamer()
	if format.SampleRate != p.rate {
		streamer = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	speaker.Clear()
	speaker.Play(streamer)
	return nil
}

// Stop halts playback. Safe to call when nothing is playing.
func (p *SpeakerPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.init {
		speaker.Clear()
	}
}

// NopPlayer discards clips. Used for headless runs and tests.
type NopPlayer struct{}

func (NopPlayer) Play(*Clip) error { return nil }
func (NopPlayer) Stop()            {}
