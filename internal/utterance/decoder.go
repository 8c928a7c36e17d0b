// Package utterance decodes inbound audio+pose payloads into playable values.
//
// One payload is one utterance: a base64 WAV clip plus a list of
// blendshape frames. Decoding is pure — no I/O, no shared state — so it
// can run on a network callback goroutine while playback ticks elsewhere.
package utterance

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/avatarstream/internal/anim"
	"github.com/normanking/avatarstream/internal/audio"
)

// Decode errors. Every malformed payload maps onto one of these; they
// reject a single utterance and are never fatal to the engine.
var (
	ErrAudioDecode = errors.New("audio decode failed")
	ErrPoseParse   = errors.New("pose data parse failed")
)

// Utterance is one decoded unit of playback: a voice clip and the pose
// track that animates it. Immutable once decoded; owned by the playback
// scheduler after handoff.
type Utterance struct {
	ID         string
	Audio      *audio.Clip
	Track      *anim.PoseTrack
	ReceivedAt time.Time
}

// envelope is the inbound JSON shape produced by the speech pipeline:
//
//	{"audio_base64": "<b64 wav>",
//	 "blendshapes": {"frames": [{"frame": 0, "blendshapes": {"jawOpen": 0.5}}]}}
type envelope struct {
	AudioBase64 string          `json:"audio_base64"`
	Blendshapes json.RawMessage `json:"blendshapes"`
}

type poseFrame struct {
	Frame       *int               `json:"frame"`
	Blendshapes map[string]float64 `json:"blendshapes"`
}

// Decoder turns raw payloads into Utterances. SampleRate is the pose
// capture rate the pipeline rendered frames at; zero means
// anim.DefaultSampleRate.
type Decoder struct {
	SampleRate float64
}

// DecodeEnvelope decodes a full inbound JSON payload.
func (d *Decoder) DecodeEnvelope(payload []byte) (*Utterance, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON: %v", ErrPoseParse, err)
	}
	return d.Decode(env.AudioBase64, env.Blendshapes)
}

// Decode builds an Utterance from the two halves of a payload: the
// base64-encoded audio and the structured pose data. Out-of-range
// blendshape weights are accepted here; the pose track clamps them at
// sampling time.
func (d *Decoder) Decode(audioBase64 string, poseData []byte) (*Utterance, error) {
	clip, err := decodeAudio(audioBase64)
	if err != nil {
		return nil, err
	}

	track, err := d.decodeTrack(poseData)
	if err != nil {
		return nil, err
	}

	return &Utterance{
		ID:         uuid.NewString(),
		Audio:      clip,
		Track:      track,
		ReceivedAt: time.Now(),
	}, nil
}

func decodeAudio(audioBase64 string) (*audio.Clip, error) {
	if audioBase64 == "" {
		return nil, fmt.Errorf("%w: missing audio_base64", ErrAudioDecode)
	}

	data, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrAudioDecode, err)
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioDecode, err)
	}
	return clip, nil
}

// decodeTrack accepts either the wrapped form {"frames": [...]} or a bare
// frame array; the pipeline has emitted both over time.
func (d *Decoder) decodeTrack(poseData []byte) (*anim.PoseTrack, error) {
	trimmed := bytes.TrimSpace(poseData)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: missing blendshapes", ErrPoseParse)
	}

	var frames []poseFrame
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPoseParse, err)
		}
	} else {
		var wrapped struct {
			Frames *[]poseFrame `json:"frames"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPoseParse, err)
		}
		if wrapped.Frames == nil {
			return nil, fmt.Errorf("%w: missing frames", ErrPoseParse)
		}
		frames = *wrapped.Frames
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: frames is empty", ErrPoseParse)
	}

	samples := make([]anim.PoseSample, 0, len(frames))
	for i, f := range frames {
		if f.Frame == nil {
			return nil, fmt.Errorf("%w: frame %d missing frame index", ErrPoseParse, i)
		}
		if *f.Frame < 0 {
			return nil, fmt.Errorf("%w: frame %d has negative index %d", ErrPoseParse, i, *f.Frame)
		}
		if f.Blendshapes == nil {
			return nil, fmt.Errorf("%w: frame %d missing blendshapes", ErrPoseParse, i)
		}
		samples = append(samples, anim.PoseSample{
			FrameIndex: *f.Frame,
			Weights:    f.Blendshapes,
		})
	}

	track, err := anim.NewPoseTrack(samples, d.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoseParse, err)
	}
	return track, nil
}
