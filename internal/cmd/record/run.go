package recordrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/internal/bus"
	cfgpkg "github.com/rzbill/replay/internal/config"
	"github.com/rzbill/replay/internal/emitter"
	"github.com/rzbill/replay/internal/recorder"
	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
	logpkg "github.com/rzbill/replay/pkg/log"
)

// Options carries everything the record entrypoint needs.
type Options struct {
	BagDir string
	Config cfgpkg.Config
}

// Run captures broker traffic into a bag until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.BagDir == "" {
		return fmt.Errorf("record: bag directory required")
	}
	if !opts.Config.MQTT.Enabled || opts.Config.MQTT.Broker == "" {
		return fmt.Errorf("record: an mqtt broker is required as the capture source")
	}

	logger, err := logpkg.ApplyConfig(&opts.Config.Log)
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	fsync := pebblestore.FsyncModeNever
	if opts.Config.Record.FsyncAlways {
		fsync = pebblestore.FsyncModeAlways
	}
	w, err := bag.OpenWriter(opts.BagDir, fsync)
	if err != nil {
		return fmt.Errorf("record: open %s: %w", opts.BagDir, err)
	}
	defer func() { _ = w.Close() }()

	b := bus.New()
	src, err := emitter.NewMQTTSource(emitter.Options{
		Broker:      opts.Config.MQTT.Broker,
		ClientID:    opts.Config.MQTT.ClientID,
		TopicPrefix: opts.Config.MQTT.TopicPrefix,
		QOS:         byte(opts.Config.MQTT.QOS),
	}, b, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	rc := opts.Config.Record
	rec, err := recorder.New(b, w, recorder.Options{
		Topics:       rc.Topics,
		PollInterval: rc.PollInterval(),
		Filter:       rc.Filter,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("recording session",
		logpkg.Str("session", rec.ID()),
		logpkg.Str("dir", opts.BagDir),
		logpkg.Str("broker", opts.Config.MQTT.Broker))
	return rec.Record(sctx)
}
