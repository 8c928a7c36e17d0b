package audio

import (
	"testing"
	"time"

	"github.com/normanking/avatarstream/internal/testutil"
)

func TestDecodeWAV_Duration(t *testing.T) {
	tests := []struct {
		name       string
		duration   time.Duration
		sampleRate int
	}{
		{"one second 16k", time.Second, 16000},
		{"two seconds 16k", 2 * time.Second, 16000},
		{"half second 44.1k", 500 * time.Millisecond, 44100},
		{"one second 24k", time.Second, 24000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clip, err := DecodeWAV(testutil.WAV(t, tc.duration, tc.sampleRate))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := clip.Duration()
			diff := got - tc.duration
			if diff < 0 {
				diff = -diff
			}
			if diff > time.Millisecond {
				t.Errorf("Duration() = %v, want %v", got, tc.duration)
			}
			if int(clip.Format().SampleRate) != tc.sampleRate {
				t.Errorf("SampleRate = %v, want %v", clip.Format().SampleRate, tc.sampleRate)
			}
		})
	}
}

func TestDecodeWAV_Empty(t *testing.T) {
	if _, err := DecodeWAV(nil); err != ErrEmptyAudio {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestDecodeWAV_Garbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not a riff container")); err == nil {
		t.Error("expected error for non-WAV bytes")
	}
}

func TestClip_IndependentStreamers(t *testing.T) {
	clip, err := DecodeWAV(testutil.WAV(t, time.Second, 16000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := clip.Streamer()
	b := clip.Streamer()

	buf := make([][2]float64, 512)
	n, _ := a.Stream(buf)
	if n == 0 {
		t.Fatal("expected samples from first streamer")
	}

	// Draining one streamer must not advance the other.
	if b.Position() != 0 {
		t.Errorf("expected second streamer at position 0, got %d", b.Position())
	}
	if a.Len() != b.Len() {
		t.Errorf("expected equal lengths, got %d vs %d", a.Len(), b.Len())
	}
}
