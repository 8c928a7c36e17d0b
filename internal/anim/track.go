// Package anim provides frame-indexed pose tracks for facial animation.
// A pose track is the face half of an utterance: an ordered sequence of
// blendshape weight maps captured at a fixed sample rate.
package anim

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultSampleRate is the native capture rate of pose tracks, in
// samples per second.
const DefaultSampleRate = 60.0

// ErrEmptyTrack is returned when a track is constructed with no samples.
var ErrEmptyTrack = errors.New("pose track requires at least one sample")

// PoseSample holds the blendshape weights for a single animation frame.
// Weights outside [0,1] are tolerated here and clamped at sampling time,
// so one bad value cannot invalidate an otherwise good utterance.
type PoseSample struct {
	FrameIndex int
	Weights    map[string]float64
}

// PoseTrack is an immutable, frame-indexed sequence of pose samples.
// Frame indices are unique and strictly increasing.
type PoseTrack struct {
	samples    []PoseSample
	sampleRate float64
}

// NewPoseTrack builds a track from the given samples. Samples are sorted
// by frame index; when the same index appears twice the later entry wins.
// A non-positive sampleRate falls back to DefaultSampleRate.
func NewPoseTrack(samples []PoseSample, sampleRate float64) (*PoseTrack, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrack
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	ordered := make([]PoseSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FrameIndex < ordered[j].FrameIndex
	})

	deduped := ordered[:0]
	for _, s := range ordered {
		if s.FrameIndex < 0 {
			return nil, fmt.Errorf("negative frame index %d", s.FrameIndex)
		}
		if n := len(deduped); n > 0 && deduped[n-1].FrameIndex == s.FrameIndex {
			deduped[n-1] = s
			continue
		}
		deduped = append(deduped, s)
	}

	return &PoseTrack{samples: deduped, sampleRate: sampleRate}, nil
}

// Len returns the number of samples in the track.
func (t *PoseTrack) Len() int {
	if t == nil {
		return 0
	}
	return len(t.samples)
}

// SampleRate returns the track's capture rate in samples per second.
func (t *PoseTrack) SampleRate() float64 {
	return t.sampleRate
}

// Duration returns the track's derived length in seconds. This is a
// fallback figure only; the audio clip's duration governs playback.
func (t *PoseTrack) Duration() float64 {
	if t.Len() == 0 {
		return 0
	}
	last := t.samples[len(t.samples)-1]
	return float64(last.FrameIndex+1) / t.sampleRate
}

// First returns the earliest sample in the track.
func (t *PoseTrack) First() PoseSample {
	return t.samples[0]
}

// Last returns the latest sample in the track.
func (t *PoseTrack) Last() PoseSample {
	return t.samples[len(t.samples)-1]
}

// Sample returns the weights at the given frame index as a step function:
// the sample at the index itself on an exact hit, otherwise the nearest
// earlier sample. Indices past the last sample hold the last pose so the
// face does not pop to neutral when the pose track undershoots the audio;
// indices before the first sample return the first pose. Weights are
// clamped to [0,1] and the returned map is a copy.
func (t *PoseTrack) Sample(atFrameIndex int) map[string]float64 {
	if t.Len() == 0 {
		return nil
	}

	// Index of the first sample past atFrameIndex.
	n := sort.Search(len(t.samples), func(i int) bool {
		return t.samples[i].FrameIndex > atFrameIndex
	})
	if n == 0 {
		return clampWeights(t.samples[0].Weights)
	}
	return clampWeights(t.samples[n-1].Weights)
}

// SampleLerp returns linearly interpolated weights at a fractional frame
// position. Positions at or outside the track's ends behave like Sample;
// exact sample positions return that sample's weights unchanged (after
// clamping). Channels absent from one of the two neighboring samples
// interpolate against zero.
func (t *PoseTrack) SampleLerp(framePos float64) map[string]float64 {
	if t.Len() == 0 {
		return nil
	}
	if framePos <= float64(t.samples[0].FrameIndex) {
		return clampWeights(t.samples[0].Weights)
	}
	if framePos >= float64(t.samples[len(t.samples)-1].FrameIndex) {
		return clampWeights(t.samples[len(t.samples)-1].Weights)
	}

	n := sort.Search(len(t.samples), func(i int) bool {
		return float64(t.samples[i].FrameIndex) > framePos
	})
	lo, hi := t.samples[n-1], t.samples[n]
	if framePos == float64(lo.FrameIndex) {
		return clampWeights(lo.Weights)
	}

	span := float64(hi.FrameIndex - lo.FrameIndex)
	frac := (framePos - float64(lo.FrameIndex)) / span

	out := make(map[string]float64, len(lo.Weights))
	for name, a := range lo.Weights {
		b := hi.Weights[name]
		out[name] = clamp01(a + (b-a)*frac)
	}
	for name, b := range hi.Weights {
		if _, ok := lo.Weights[name]; !ok {
			out[name] = clamp01(b * frac)
		}
	}
	return out
}

func clampWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, v := range weights {
		out[name] = clamp01(v)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
