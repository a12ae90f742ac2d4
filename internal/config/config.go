package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/replay/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Log         log.Config   `json:"log" yaml:"log"`
	ControlAddr string       `json:"controlAddr" yaml:"controlAddr"`
	Play        PlayConfig   `json:"play" yaml:"play"`
	Record      RecordConfig `json:"record" yaml:"record"`
	MQTT        MQTTConfig   `json:"mqtt" yaml:"mqtt"`
}

// PlayConfig captures playback tuning.
type PlayConfig struct {
	Rate             float64  `json:"rate" yaml:"rate"`
	QueueSize        int      `json:"queueSize" yaml:"queueSize"`
	LowWaterFraction float64  `json:"lowWaterFraction" yaml:"lowWaterFraction"`
	Loop             bool     `json:"loop" yaml:"loop"`
	StartPaused      bool     `json:"startPaused" yaml:"startPaused"`
	DelayMs          int64    `json:"delayMs" yaml:"delayMs"`
	Topics           []string `json:"topics" yaml:"topics"`
	Filter           string   `json:"filter" yaml:"filter"`
}

// Delay returns the configured start delay as a duration.
func (p PlayConfig) Delay() time.Duration { return time.Duration(p.DelayMs) * time.Millisecond }

// RecordConfig captures recording tuning.
type RecordConfig struct {
	Topics         []string `json:"topics" yaml:"topics"`
	PollIntervalMs int64    `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	Filter         string   `json:"filter" yaml:"filter"`
	FsyncAlways    bool     `json:"fsyncAlways" yaml:"fsyncAlways"`
}

// PollInterval returns the discovery poll interval as a duration.
func (r RecordConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

// MQTTConfig captures the optional MQTT sink.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"clientId" yaml:"clientId"`
	TopicPrefix string `json:"topicPrefix" yaml:"topicPrefix"`
	QOS         int    `json:"qos" yaml:"qos"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Log:         log.Config{Level: "info", Format: "text"},
		ControlAddr: "",
		Play: PlayConfig{
			Rate:             1.0,
			QueueSize:        1000,
			LowWaterFraction: 0.5,
		},
		Record: RecordConfig{
			PollIntervalMs: 100,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "replay",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If
// path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
