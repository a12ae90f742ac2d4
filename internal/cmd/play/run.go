package playrun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzbill/replay/internal/bag"
	cfgpkg "github.com/rzbill/replay/internal/config"
	"github.com/rzbill/replay/internal/control"
	"github.com/rzbill/replay/internal/emitter"
	"github.com/rzbill/replay/internal/metrics"
	"github.com/rzbill/replay/internal/player"
	logpkg "github.com/rzbill/replay/pkg/log"
)

// Options carries everything the play entrypoint needs.
type Options struct {
	BagDirs []string
	Config  cfgpkg.Config
}

// Run replays the given bags and blocks until playback finishes or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so Ctrl-C is
	// honored even when the caller's context is plain Background.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(opts.BagDirs) == 0 {
		return fmt.Errorf("play: at least one bag directory required")
	}

	logger, err := logpkg.ApplyConfig(&opts.Config.Log)
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	readers := make([]*bag.Reader, 0, len(opts.BagDirs))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	for _, dir := range opts.BagDirs {
		r, err := bag.OpenReader(dir)
		if err != nil {
			return fmt.Errorf("play: open %s: %w", dir, err)
		}
		readers = append(readers, r)
		meta := r.Meta()
		logger.Info("opened bag",
			logpkg.Str("dir", dir),
			logpkg.Uint64("messages", meta.MessageCount),
			logpkg.Int64("start_ns", meta.StartTime),
			logpkg.Int64("end_ns", meta.EndTime))
	}

	reg := prometheus.NewRegistry()
	met := metrics.NewPlayback(reg)

	var sink player.Sink
	if opts.Config.MQTT.Enabled {
		ms, err := emitter.NewMQTTSink(emitter.Options{
			Broker:      opts.Config.MQTT.Broker,
			ClientID:    opts.Config.MQTT.ClientID,
			TopicPrefix: opts.Config.MQTT.TopicPrefix,
			QOS:         byte(opts.Config.MQTT.QOS),
		}, logger)
		if err != nil {
			return err
		}
		defer ms.Close()
		sink = ms
	} else {
		sink = newStdoutSink(os.Stdout)
	}

	pc := opts.Config.Play
	p, err := player.New(readers, sink, player.Options{
		Rate:             pc.Rate,
		QueueSize:        pc.QueueSize,
		LowWaterFraction: pc.LowWaterFraction,
		Loop:             pc.Loop,
		StartPaused:      pc.StartPaused,
		Delay:            pc.Delay(),
		Topics:           pc.Topics,
		Filter:           pc.Filter,
	}, logger.With(logpkg.Component("player")), met)
	if err != nil {
		return err
	}

	if addr := opts.Config.ControlAddr; addr != "" {
		ctl := control.New(p, reg, logger)
		go func() {
			if err := ctl.ListenAndServe(sctx, addr); err != nil {
				logger.Error("control server failed", logpkg.Err(err))
			}
		}()
	}

	return p.Play(sctx)
}

// stdoutSink prints each delivered message as one JSON line. Payloads
// come out base64-encoded, which is just encoding/json's []byte rule.
type stdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStdoutSink(w *os.File) *stdoutSink {
	return &stdoutSink{enc: json.NewEncoder(w)}
}

type stdoutLine struct {
	Topic   string `json:"topic"`
	TsNs    int64  `json:"ts_ns"`
	Payload []byte `json:"payload"`
}

func (s *stdoutSink) Publish(msg *bag.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(stdoutLine{Topic: msg.Topic, TsNs: msg.Timestamp, Payload: msg.Payload}) == nil
}
