// Package control exposes a player's runtime controls (pause, resume,
// rate, seek, step) as a small JSON-over-HTTP API, plus a Prometheus
// /metrics endpoint.
//
// Example:
//
//	p, _ := player.New(readers, sink, player.Options{}, logger, met)
//	s := control.New(p, reg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7070")
package control
