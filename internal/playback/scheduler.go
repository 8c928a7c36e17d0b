// Package playback schedules utterance playback against a frame clock.
//
// The Scheduler owns the only mutable state in the engine: which
// utterance is playing and how far along it is. The host's frame loop
// calls Advance once per frame; transports hand decoded utterances in
// from their own goroutines. One mutex makes a preemption land atomically
// before or after a tick, never inside one.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/normanking/avatarstream/internal/audio"
	"github.com/normanking/avatarstream/internal/bus"
	"github.com/normanking/avatarstream/internal/utterance"
	"github.com/rs/zerolog"
)

// ErrInvalidUtterance rejects an utterance with no audio or an empty
// pose track. State is left untouched: a bad new message never
// interrupts good ongoing playback.
var ErrInvalidUtterance = errors.New("invalid utterance")

// Phase is the scheduler's lifecycle state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePlaying  Phase = "playing"
	PhaseStopping Phase = "stopping"
)

// MeshSink consumes computed blendshape weights. The scheduler only
// computes target weights; binding them to a concrete mesh is the
// sink's concern. Called at most once per tick.
type MeshSink interface {
	ApplyWeights(weights map[string]float64)
}

// Config holds scheduler options.
type Config struct {
	// Interpolate blends linearly between adjacent pose samples instead
	// of stepping at the native capture rate.
	Interpolate bool
}

// Scheduler drives synchronized audio and pose playback.
type Scheduler struct {
	cfg    Config
	sink   MeshSink
	player audio.Player
	events *bus.EventBus
	logger zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	current   *utterance.Utterance
	elapsed   float64
	lastFrame int // last applied frame index, -1 = none
}

// NewScheduler creates a scheduler. The mesh sink and audio player are
// injected collaborators; the scheduler never owns them.
func NewScheduler(cfg Config, sink MeshSink, player audio.Player, events *bus.EventBus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		sink:      sink,
		player:    player,
		events:    events,
		logger:    logger.With().Str("component", "playback").Logger(),
		phase:     PhaseIdle,
		lastFrame: -1,
	}
}

// ProcessReceivedData takes ownership of a decoded utterance and starts
// playing it. An utterance already in flight is stopped first, inside the
// same critical section, so the audio player always sees Stop before the
// next Play. The pose at frame 0 is applied immediately rather than
// waiting for the first Advance.
func (s *Scheduler) ProcessReceivedData(u *utterance.Utterance) error {
	if u == nil || u.Audio == nil {
		return fmt.Errorf("%w: no audio clip", ErrInvalidUtterance)
	}
	if u.Track.Len() == 0 {
		return fmt.Errorf("%w: empty pose track", ErrInvalidUtterance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	preempted := ""
	if s.phase == PhasePlaying {
		preempted = s.current.ID
		s.stopLocked()
	}

	if err := s.player.Play(u.Audio); err != nil {
		s.logger.Error().Err(err).Str("utterance", u.ID).Msg("Audio player failed to start")
		return fmt.Errorf("start audio: %w", err)
	}

	s.current = u
	s.elapsed = 0
	s.phase = PhasePlaying

	s.sink.ApplyWeights(u.Track.Sample(0))
	s.lastFrame = 0

	s.logger.Info().
		Str("utterance", u.ID).
		Float64("audio_seconds", u.Audio.Seconds()).
		Int("pose_frames", u.Track.Len()).
		Msg("Playback started")

	if s.events != nil {
		if preempted != "" {
			s.events.Publish(bus.Event{
				Type: bus.EventTypePlaybackPreempted,
				Data: map[string]any{"stopped": preempted, "started": u.ID},
			})
		}
		s.events.Publish(bus.Event{
			Type: bus.EventTypePlaybackStarted,
			Data: map[string]any{"utterance": u.ID, "duration": u.Audio.Seconds()},
		})
	}
	return nil
}

// Advance moves the playback clock by dt seconds and pushes the current
// pose to the mesh sink. The audio clip's duration is the authoritative
// end condition; the pose track holds its last frame if it runs short.
func (s *Scheduler) Advance(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return
	}

	s.elapsed += dt

	if s.elapsed >= s.current.Audio.Seconds() {
		id := s.current.ID
		s.stopLocked()
		s.logger.Info().Str("utterance", id).Msg("Playback completed")
		if s.events != nil {
			s.events.Publish(bus.Event{
				Type: bus.EventTypePlaybackStopped,
				Data: map[string]any{"utterance": id, "reason": "completed"},
			})
		}
		return
	}

	rate := s.current.Track.SampleRate()
	if s.cfg.Interpolate {
		s.sink.ApplyWeights(s.current.Track.SampleLerp(s.elapsed * rate))
		s.lastFrame = int(math.Floor(s.elapsed * rate))
		return
	}

	targetFrame := int(math.Floor(s.elapsed * rate))
	if targetFrame != s.lastFrame {
		s.sink.ApplyWeights(s.current.Track.Sample(targetFrame))
		s.lastFrame = targetFrame
	}
}

// Stop halts playback and resets the face to neutral. Idempotent: a
// second call while idle has no side effects.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return
	}
	id := s.current.ID
	s.stopLocked()
	s.logger.Info().Str("utterance", id).Msg("Playback stopped")
	if s.events != nil {
		s.events.Publish(bus.Event{
			Type: bus.EventTypePlaybackStopped,
			Data: map[string]any{"utterance": id, "reason": "stopped"},
		})
	}
}

// stopLocked halts the audio player, zeroes every known channel through
// the mesh sink, and clears the playback state. Caller holds s.mu.
func (s *Scheduler) stopLocked() {
	s.phase = PhaseStopping

	s.player.Stop()

	// Channels to reset come from the last applied sample when one
	// exists, else the track's first sample, else nothing was ever
	// applied and there is nothing to reset.
	if s.current != nil && s.current.Track.Len() > 0 {
		var ref map[string]float64
		if s.lastFrame >= 0 {
			ref = s.current.Track.Sample(s.lastFrame)
		} else {
			ref = s.current.Track.Sample(s.current.Track.First().FrameIndex)
		}
		neutral := make(map[string]float64, len(ref))
		for name := range ref {
			neutral[name] = 0
		}
		s.sink.ApplyWeights(neutral)
	}

	s.phase = PhaseIdle
	s.current = nil
	s.elapsed = 0
	s.lastFrame = -1
}

// Phase returns the current lifecycle phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentID returns the playing utterance's ID, or "" when idle.
func (s *Scheduler) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Elapsed returns seconds of playback on the current utterance.
func (s *Scheduler) Elapsed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}
