// Package config provides configuration management for AvatarStream
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TransportConfig configures how utterance payloads reach the engine.
// Mode selects one of: "ws" (persistent WebSocket to the pipeline),
// "poll" (HTTP pull at an interval), "push" (HTTP server the pipeline
// POSTs to).
type TransportConfig struct {
	Mode         string        `mapstructure:"mode"`
	ServerURL    string        `mapstructure:"server_url"`
	PollURL      string        `mapstructure:"poll_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ListenAddr   string        `mapstructure:"listen_addr"`
}

// PlaybackConfig configures the playback scheduler
type PlaybackConfig struct {
	SampleRate  float64 `mapstructure:"sample_rate"` // pose samples per second
	TickRate    int     `mapstructure:"tick_rate"`   // Advance() calls per second
	Interpolate bool    `mapstructure:"interpolate"` // lerp between pose samples
}

// AudioConfig configures audio output
type AudioConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
}

// SinkConfig configures where computed weights are delivered.
// Mode is "stream" (WebSocket broadcast to renderers) or "log".
type SinkConfig struct {
	Mode       string `mapstructure:"mode"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Transport: TransportConfig{
			Mode:         "ws",
			ServerURL:    "ws://localhost:8000/ws/animation",
			PollURL:      "http://localhost:8000/api/animation/next",
			PollInterval: 500 * time.Millisecond,
			ListenAddr:   ":8090",
		},
		Playback: PlaybackConfig{
			SampleRate:  60.0,
			TickRate:    60,
			Interpolate: false,
		},
		Audio: AudioConfig{
			Enabled:        true,
			BufferDuration: 100 * time.Millisecond,
		},
		Sink: SinkConfig{
			Mode:       "stream",
			ListenAddr: ":8091",
		},
		Logging: LoggingConfig{
			Dir:     filepath.Join(home, ".avatarstream", "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

var viperMu sync.Mutex

// Load reads configuration from file and environment
func Load() (*Config, error) {
	viperMu.Lock()
	defer viperMu.Unlock()

	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("AVATARSTREAM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("transport", cfg.Transport)
	viper.Set("playback", cfg.Playback)
	viper.Set("audio", cfg.Audio)
	viper.Set("sink", cfg.Sink)
	viper.Set("logging", cfg.Logging)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// Watch re-reads the config file on change and invokes onChange with the
// fresh configuration. Errors during re-read keep the previous values.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		viperMu.Lock()
		defer viperMu.Unlock()

		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".avatarstream"), nil
}
