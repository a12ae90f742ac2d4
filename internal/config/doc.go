// Package config provides loading and environment overlay for replay
// configuration. It exposes a Default() baseline, file loading by
// extension (JSON or YAML), and a REPLAY_* env overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/replay.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
