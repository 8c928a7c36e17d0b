// Package testutil generates WAV clips and utterance payloads for tests.
package testutil

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"
)

// WAV generates a silent 16-bit mono PCM WAV clip of the given duration.
func WAV(t *testing.T, duration time.Duration, sampleRate int) []byte {
	t.Helper()

	channels := 1
	bitsPerSample := 16

	numSamples := int(duration.Seconds() * float64(sampleRate))
	dataSize := numSamples * channels * (bitsPerSample / 8)

	header := make([]byte, 0, 44)
	header = append(header, []byte("RIFF")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+dataSize))
	header = append(header, []byte("WAVE")...)
	header = append(header, []byte("fmt ")...)
	header = binary.LittleEndian.AppendUint32(header, 16) // fmt chunk size
	header = binary.LittleEndian.AppendUint16(header, 1)  // PCM
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate*channels*bitsPerSample/8))
	header = binary.LittleEndian.AppendUint16(header, uint16(channels*bitsPerSample/8))
	header = binary.LittleEndian.AppendUint16(header, uint16(bitsPerSample))
	header = append(header, []byte("data")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataSize))

	audio := make([]byte, len(header)+dataSize)
	copy(audio, header)
	return audio
}

// Frame describes one pose frame of a payload.
type Frame struct {
	Index   int
	Weights map[string]float64
}

// Envelope builds the inbound JSON payload for the given WAV bytes and
// pose frames.
func Envelope(t *testing.T, wavData []byte, frames []Frame) []byte {
	t.Helper()

	frameList := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		frameList = append(frameList, map[string]any{
			"frame":       f.Index,
			"blendshapes": f.Weights,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString(wavData),
		"blendshapes":  map[string]any{"frames": frameList},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
