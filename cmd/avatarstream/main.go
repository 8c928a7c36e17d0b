// Command avatarstream receives voice+pose utterances from the speech
// pipeline and plays them back in sync: audio through the speaker, pose
// weights to connected renderers, driven by a frame-rate tick loop.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/avatarstream/internal/audio"
	"github.com/normanking/avatarstream/internal/bus"
	"github.com/normanking/avatarstream/internal/config"
	"github.com/normanking/avatarstream/internal/logging"
	"github.com/normanking/avatarstream/internal/playback"
	"github.com/normanking/avatarstream/internal/sink"
	"github.com/normanking/avatarstream/internal/transport"
	"github.com/normanking/avatarstream/internal/utterance"
)

func main() {
	cfg, cfgErr := config.Load()

	logger, err := logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   logging.LogLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logger.Close()

	mainLog := logger.Component("main")
	if cfgErr != nil {
		mainLog.Warn().Err(cfgErr).Msg("Config load failed, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus()
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeConnected,
		bus.EventTypeDisconnected,
		bus.EventTypeUtteranceRejected,
		bus.EventTypePlaybackPreempted,
	}, func(e bus.Event) {
		mainLog.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Event")
	})

	var player audio.Player = audio.NopPlayer{}
	if cfg.Audio.Enabled {
		player = audio.NewSpeakerPlayer(cfg.Audio.BufferDuration)
	}

	var meshSink playback.MeshSink
	switch cfg.Sink.Mode {
	case "log":
		meshSink = sink.NewLogSink(logger.Zerolog())
	default:
		streamSink := sink.NewStreamSink(cfg.Sink.ListenAddr, logger.Zerolog())
		if err := streamSink.Start(ctx); err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to start weight stream")
		}
		defer streamSink.Stop()
		meshSink = streamSink
	}

	sched := playback.NewScheduler(
		playback.Config{Interpolate: cfg.Playback.Interpolate},
		meshSink, player, events, logger.Zerolog(),
	)

	decoder := &utterance.Decoder{SampleRate: cfg.Playback.SampleRate}
	deliver := func(payload []byte) error {
		u, err := decoder.DecodeEnvelope(payload)
		if err != nil {
			events.Publish(bus.Event{
				Type: bus.EventTypeUtteranceRejected,
				Data: map[string]any{"error": err.Error()},
			})
			return err
		}
		events.Publish(bus.Event{
			Type: bus.EventTypeUtteranceReceived,
			Data: map[string]any{"utterance": u.ID},
		})
		return sched.ProcessReceivedData(u)
	}

	var adapter transport.Adapter
	switch cfg.Transport.Mode {
	case "poll":
		adapter = transport.NewPoller(cfg.Transport.PollURL, cfg.Transport.PollInterval, deliver, logger.Zerolog())
	case "push":
		adapter = transport.NewServer(cfg.Transport.ListenAddr, deliver, logger.Zerolog())
	default:
		adapter = transport.NewWSClient(cfg.Transport.ServerURL, deliver, events, logger.Zerolog())
	}
	if err := adapter.Start(ctx); err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to start transport")
	}
	defer adapter.Stop()

	config.Watch(func(fresh *config.Config) {
		logging.SetLevel(logging.LogLevel(fresh.Logging.Level))
		mainLog.Info().Str("level", fresh.Logging.Level).Msg("Configuration reloaded")
	})

	tickRate := cfg.Playback.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	mainLog.Info().
		Str("transport", cfg.Transport.Mode).
		Int("tick_rate", tickRate).
		Msg("AvatarStream running")

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			mainLog.Info().Msg("Shutting down")
			sched.Stop()
			return
		case now := <-ticker.C:
			sched.Advance(now.Sub(last).Seconds())
			last = now
		}
	}
}
