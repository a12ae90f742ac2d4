package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Play.Rate != 1.0 {
		t.Fatalf("default rate = %v", cfg.Play.Rate)
	}
	if cfg.Play.QueueSize != 1000 {
		t.Fatalf("default queue size = %d", cfg.Play.QueueSize)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("default log level = %q", cfg.Log.Level)
	}
	if cfg.MQTT.Enabled {
		t.Fatal("mqtt should be off by default")
	}
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "replay.json")
	data := []byte(`{"play":{"rate":4,"loop":true,"topics":["a","b"]},"controlAddr":":7070"}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Play.Rate != 4 || !cfg.Play.Loop {
		t.Fatalf("play config not applied: %+v", cfg.Play)
	}
	if len(cfg.Play.Topics) != 2 {
		t.Fatalf("topics = %v", cfg.Play.Topics)
	}
	if cfg.ControlAddr != ":7070" {
		t.Fatalf("control addr = %q", cfg.ControlAddr)
	}
	// Untouched fields keep their defaults.
	if cfg.Play.QueueSize != 1000 {
		t.Fatalf("queue size lost its default: %d", cfg.Play.QueueSize)
	}
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "replay.yaml")
	data := []byte("play:\n  rate: 0.5\n  delayMs: 250\nmqtt:\n  enabled: true\n  broker: localhost:1883\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Play.Rate != 0.5 {
		t.Fatalf("rate = %v", cfg.Play.Rate)
	}
	if cfg.Play.Delay() != 250*time.Millisecond {
		t.Fatalf("delay = %v", cfg.Play.Delay())
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "localhost:1883" {
		t.Fatalf("mqtt config not applied: %+v", cfg.MQTT)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	file := filepath.Join(t.TempDir(), "replay.yaml")
	if err := os.WriteFile(file, []byte("play: ["), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Play.Rate != 1.0 {
		t.Fatalf("rate = %v", cfg.Play.Rate)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("REPLAY_LOG_LEVEL", "debug")
	t.Setenv("REPLAY_PLAY_RATE", "2.5")
	t.Setenv("REPLAY_PLAY_TOPICS", "a, b ,c")
	t.Setenv("REPLAY_MQTT_BROKER", "broker:1883")
	FromEnv(&cfg)
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Play.Rate != 2.5 {
		t.Fatalf("rate = %v", cfg.Play.Rate)
	}
	if len(cfg.Play.Topics) != 3 || cfg.Play.Topics[1] != "b" {
		t.Fatalf("topics = %v", cfg.Play.Topics)
	}
	if !cfg.MQTT.Enabled {
		t.Fatal("setting a broker should enable mqtt")
	}
}
