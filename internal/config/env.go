package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays REPLAY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("REPLAY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REPLAY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("REPLAY_CONTROL_ADDR"); v != "" {
		cfg.ControlAddr = v
	}
	if v := os.Getenv("REPLAY_PLAY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Play.Rate = f
		}
	}
	if v := os.Getenv("REPLAY_PLAY_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Play.QueueSize = n
		}
	}
	if v := os.Getenv("REPLAY_PLAY_LOOP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Play.Loop = b
		}
	}
	if v := os.Getenv("REPLAY_PLAY_TOPICS"); v != "" {
		cfg.Play.Topics = splitList(v)
	}
	if v := os.Getenv("REPLAY_PLAY_FILTER"); v != "" {
		cfg.Play.Filter = v
	}
	if v := os.Getenv("REPLAY_RECORD_TOPICS"); v != "" {
		cfg.Record.Topics = splitList(v)
	}
	if v := os.Getenv("REPLAY_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("REPLAY_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("REPLAY_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
