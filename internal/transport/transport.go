// Package transport delivers raw utterance payloads to the playback engine.
//
// All adapters share one contract: deliver one payload per utterance to a
// Handler and report its rejection, if any, back to the caller side.
// Decode and playback errors never propagate past the adapter — a bad
// message is logged and dropped while prior playback continues.
package transport

import "context"

// Handler receives one raw payload per utterance. The returned error is
// the payload's rejection reason; adapters log it (the push server also
// reports it to the sender) and carry on.
type Handler func(payload []byte) error

// Adapter is a source of utterance payloads.
type Adapter interface {
	Start(ctx context.Context) error
	Stop()
}
