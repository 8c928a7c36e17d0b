package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarstream/internal/anim"
	"github.com/normanking/avatarstream/internal/audio"
	"github.com/normanking/avatarstream/internal/testutil"
	"github.com/normanking/avatarstream/internal/utterance"
)

// recordSink captures every weight map pushed to the mesh.
type recordSink struct {
	mu    sync.Mutex
	calls []map[string]float64
}

func (s *recordSink) ApplyWeights(weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]float64, len(weights))
	for k, v := range weights {
		copied[k] = v
	}
	s.calls = append(s.calls, copied)
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordSink) last() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

// recordPlayer records the order of Play and Stop calls.
type recordPlayer struct {
	mu      sync.Mutex
	ops     []string
	playErr error
}

func (p *recordPlayer) Play(*audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.ops = append(p.ops, "play")
	return nil
}

func (p *recordPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "stop")
}

func (p *recordPlayer) opList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func newTestScheduler(cfg Config) (*Scheduler, *recordSink, *recordPlayer) {
	sink := &recordSink{}
	player := &recordPlayer{}
	return NewScheduler(cfg, sink, player, nil, zerolog.Nop()), sink, player
}

func makeUtterance(t *testing.T, dur time.Duration, rate float64, frames []anim.PoseSample) *utterance.Utterance {
	t.Helper()

	clip, err := audio.DecodeWAV(testutil.WAV(t, dur, 16000))
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	track, err := anim.NewPoseTrack(frames, rate)
	if err != nil {
		t.Fatalf("build track: %v", err)
	}
	return &utterance.Utterance{ID: "u-" + t.Name(), Audio: clip, Track: track}
}

func jawFrames() []anim.PoseSample {
	return []anim.PoseSample{
		{FrameIndex: 0, Weights: map[string]float64{"jawOpen": 0.0}},
		{FrameIndex: 30, Weights: map[string]float64{"jawOpen": 0.8}},
	}
}

func TestProcessReceivedData_AppliesFrameZeroImmediately(t *testing.T) {
	sched, sink, player := newTestScheduler(Config{})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sched.Phase() != PhasePlaying {
		t.Errorf("expected playing phase, got %v", sched.Phase())
	}
	if sched.CurrentID() != u.ID {
		t.Errorf("expected current %q, got %q", u.ID, sched.CurrentID())
	}
	if sink.count() != 1 {
		t.Fatalf("expected frame 0 applied immediately, got %d sink calls", sink.count())
	}
	if got := sink.last()["jawOpen"]; got != 0.0 {
		t.Errorf("expected frame 0 weights, got jawOpen=%v", got)
	}
	if ops := player.opList(); len(ops) != 1 || ops[0] != "play" {
		t.Errorf("expected single play, got %v", ops)
	}
}

func TestProcessReceivedData_InvalidUtterance(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{})

	tests := []struct {
		name string
		u    *utterance.Utterance
	}{
		{"nil utterance", nil},
		{"no audio", &utterance.Utterance{ID: "no-audio"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := sched.ProcessReceivedData(tc.u)
			if !errors.Is(err, ErrInvalidUtterance) {
				t.Errorf("expected ErrInvalidUtterance, got %v", err)
			}
		})
	}

	if sched.Phase() != PhaseIdle {
		t.Errorf("expected idle after rejections, got %v", sched.Phase())
	}
	if sink.count() != 0 {
		t.Errorf("expected no sink calls, got %d", sink.count())
	}
}

func TestProcessReceivedData_RejectionKeepsCurrentPlayback(t *testing.T) {
	sched, _, _ := newTestScheduler(Config{})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sched.ProcessReceivedData(&utterance.Utterance{ID: "bad"}); err == nil {
		t.Fatal("expected error for invalid utterance")
	}

	if sched.Phase() != PhasePlaying {
		t.Errorf("expected playback undisturbed, got %v", sched.Phase())
	}
	if sched.CurrentID() != u.ID {
		t.Errorf("expected current %q, got %q", u.ID, sched.CurrentID())
	}
}

func TestAdvance_AudioDurationIsAuthoritative(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{})
	// Pose track covers ~1s but the clip runs 2s: playback must keep
	// going, holding the last pose, until the audio ends.
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.Advance(1.99)
	if sched.Phase() != PhasePlaying {
		t.Fatalf("expected still playing at 1.99s, got %v", sched.Phase())
	}
	if got := sink.last()["jawOpen"]; got != 0.8 {
		t.Errorf("expected last pose held past track end, got jawOpen=%v", got)
	}

	sched.Advance(0.02)
	if sched.Phase() != PhaseIdle {
		t.Fatalf("expected idle once elapsed reaches audio duration, got %v", sched.Phase())
	}
	if got := sink.last()["jawOpen"]; got != 0.0 {
		t.Errorf("expected neutral reset at end, got jawOpen=%v", got)
	}
	if sched.CurrentID() != "" {
		t.Errorf("expected no current utterance, got %q", sched.CurrentID())
	}
}

func TestAdvance_JawOpenTimeline(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.Advance(0.5) // frame 15: still holding frame 0
	if got := sink.last()["jawOpen"]; got != 0.0 {
		t.Errorf("at 0.5s expected jawOpen 0.0, got %v", got)
	}

	sched.Advance(0.5) // frame 30
	if got := sink.last()["jawOpen"]; got != 0.8 {
		t.Errorf("at 1.0s expected jawOpen 0.8, got %v", got)
	}

	sched.Advance(1.0) // audio ends
	if got := sink.last()["jawOpen"]; got != 0.0 {
		t.Errorf("at 2.0s expected neutral reset, got %v", got)
	}
}

func TestAdvance_DedupsRepeatedFrames(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tick at 120Hz against a 30fps track for one second: the sink must
	// only see pushes when the target frame index changes.
	dt := 1.0 / 120.0
	for i := 0; i < 120; i++ {
		sched.Advance(dt)
	}

	// 1 immediate push at start plus ~30 frame transitions.
	if n := sink.count(); n < 29 || n > 32 {
		t.Errorf("expected ~31 sink calls over calm ticking, got %d", n)
	}
}

func TestAdvance_NoopWhenIdle(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{})

	sched.Advance(1.0)

	if sink.count() != 0 {
		t.Errorf("expected no sink calls while idle, got %d", sink.count())
	}
	if sched.Elapsed() != 0 {
		t.Errorf("expected elapsed untouched while idle, got %v", sched.Elapsed())
	}
}

func TestAdvance_Interpolate(t *testing.T) {
	sched, sink, _ := newTestScheduler(Config{Interpolate: true})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.Advance(0.5) // halfway between frame 0 and frame 30
	got := sink.last()["jawOpen"]
	if got < 0.39 || got > 0.41 {
		t.Errorf("expected jawOpen ~0.4 at midpoint, got %v", got)
	}
}

func TestPreemption_StopsBeforePlaying(t *testing.T) {
	sched, sink, player := newTestScheduler(Config{})
	a := makeUtterance(t, 2*time.Second, 30, jawFrames())
	b := makeUtterance(t, time.Second, 30, []anim.PoseSample{
		{FrameIndex: 0, Weights: map[string]float64{"mouthSmileLeft": 0.6}},
	})
	b.ID = "u-second"

	if err := sched.ProcessReceivedData(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.Advance(0.5)

	if err := sched.ProcessReceivedData(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ops := player.opList()
	want := []string{"play", "stop", "play"}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, ops)
		}
	}

	if sched.CurrentID() != b.ID {
		t.Errorf("expected current %q, got %q", b.ID, sched.CurrentID())
	}
	if sched.Elapsed() != 0 {
		t.Errorf("expected elapsed reset on preemption, got %v", sched.Elapsed())
	}
	if got := sink.last()["mouthSmileLeft"]; got != 0.6 {
		t.Errorf("expected new utterance's frame 0, got %v", sink.last())
	}
}

func TestStop_ResetsToNeutral(t *testing.T) {
	sched, sink, player := newTestScheduler(Config{})
	u := makeUtterance(t, 2*time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.Advance(1.0)
	sched.Stop()

	if sched.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %v", sched.Phase())
	}
	if got := sink.last()["jawOpen"]; got != 0.0 {
		t.Errorf("expected jawOpen reset to 0, got %v", got)
	}
	ops := player.opList()
	if len(ops) == 0 || ops[len(ops)-1] != "stop" {
		t.Errorf("expected audio player stopped, got %v", ops)
	}
}

func TestStop_Idempotent(t *testing.T) {
	sched, sink, player := newTestScheduler(Config{})
	u := makeUtterance(t, time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.Stop()

	sinkCalls := sink.count()
	playerOps := len(player.opList())

	sched.Stop()
	sched.Stop()

	if sink.count() != sinkCalls {
		t.Errorf("expected no further sink calls, got %d extra", sink.count()-sinkCalls)
	}
	if len(player.opList()) != playerOps {
		t.Errorf("expected no further player ops, got %v", player.opList())
	}
}

func TestProcessReceivedData_PlayerFailure(t *testing.T) {
	sink := &recordSink{}
	player := &recordPlayer{playErr: errors.New("device gone")}
	sched := NewScheduler(Config{}, sink, player, nil, zerolog.Nop())
	u := makeUtterance(t, time.Second, 30, jawFrames())

	if err := sched.ProcessReceivedData(u); err == nil {
		t.Fatal("expected error when audio player fails")
	}
	if sched.Phase() != PhaseIdle {
		t.Errorf("expected idle after player failure, got %v", sched.Phase())
	}
}
