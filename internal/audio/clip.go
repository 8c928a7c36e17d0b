// Package audio provides decoded voice clips and playback for AvatarStream.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Common errors
var (
	ErrEmptyAudio = errors.New("audio data is empty")
	ErrNoSamples  = errors.New("audio stream contains no samples")
)

// Clip is a fully decoded voice clip. Its duration comes from the WAV
// container metadata (sample count over sample rate), which is the
// authoritative length of an utterance during playback.
type Clip struct {
	buffer   *beep.Buffer
	format   beep.Format
	duration time.Duration
	raw      []byte
}

// DecodeWAV decodes a WAV byte stream into a Clip. The whole stream is
// buffered up front so nothing on the playback tick path has to block.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if buf.Len() == 0 {
		return nil, ErrNoSamples
	}

	return &Clip{
		buffer:   buf,
		format:   format,
		duration: format.SampleRate.D(buf.Len()),
		raw:      data,
	}, nil
}

// Duration returns the clip's length as reported by the audio container.
func (c *Clip) Duration() time.Duration {
	return c.duration
}

// Seconds returns the clip's length in seconds.
func (c *Clip) Seconds() float64 {
	return c.duration.Seconds()
}

// Format returns the decoded sample format.
func (c *Clip) Format() beep.Format {
	return c.format
}

// Streamer returns a fresh streamer over the whole clip. Each call is
// independent, so a preempted clip never disturbs its replacement.
func (c *Clip) Streamer() beep.StreamSeeker {
	return c.buffer.Streamer(0, c.buffer.Len())
}

// Raw returns the original encoded bytes.
func (c *Clip) Raw() []byte {
	return c.raw
}
