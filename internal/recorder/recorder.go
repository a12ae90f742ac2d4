package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/internal/bus"
	"github.com/rzbill/replay/internal/filter"
	"github.com/rzbill/replay/pkg/log"
)

// Options controls what a Recorder captures.
type Options struct {
	// Topics is the explicit set of topics to capture. When empty the
	// recorder discovers topics by polling the bus.
	Topics []string

	// PollInterval is how often discovery looks for new topics.
	// Only used when Topics is empty. Defaults to 100ms.
	PollInterval time.Duration

	// Filter is an optional CEL expression; messages it rejects are
	// not written.
	Filter string

	// BufSize is the per-subscription channel depth. Defaults to 256.
	BufSize int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.BufSize <= 0 {
		o.BufSize = 256
	}
	return o
}

// Recorder subscribes to bus topics and appends every admitted message
// to a bag. Messages without a timestamp are stamped at receive time.
type Recorder struct {
	id     string
	b      *bus.Bus
	w      *bag.Writer
	opts   Options
	flt    filter.Filter
	logger log.Logger

	mu       sync.Mutex
	subbed   map[string]func()
	stopping bool
	writeErr error
	stop     context.CancelFunc

	wg sync.WaitGroup
}

// New prepares a recorder that captures from b into w.
func New(b *bus.Bus, w *bag.Writer, opts Options, logger log.Logger) (*Recorder, error) {
	opts = opts.withDefaults()
	flt, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	r := &Recorder{
		id:     uuid.NewString(),
		b:      b,
		w:      w,
		opts:   opts,
		flt:    flt,
		logger: logger.With(log.Component("recorder")),
		subbed: make(map[string]func()),
	}
	return r, nil
}

// ID returns the session identifier for this recording.
func (r *Recorder) ID() string { return r.id }

// Record captures until ctx is cancelled, then drains in-flight
// messages and returns. A write failure stops the session early and is
// returned.
func (r *Recorder) Record(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.stop = cancel
	r.mu.Unlock()

	r.logger.Info("recording started",
		log.Str("session", r.id),
		log.Int("topics", len(r.opts.Topics)))

	if len(r.opts.Topics) > 0 {
		for _, t := range r.opts.Topics {
			r.subscribe(t)
		}
	} else {
		r.wg.Add(1)
		go r.discover(ctx)
	}

	<-ctx.Done()

	// Closing subscriptions lets the drain goroutines run the channels
	// dry and exit.
	r.mu.Lock()
	r.stopping = true
	for _, unsub := range r.subbed {
		unsub()
	}
	r.subbed = make(map[string]func())
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	err := r.writeErr
	r.mu.Unlock()

	r.logger.Info("recording stopped",
		log.Str("session", r.id),
		log.Uint64("messages", r.w.Meta().MessageCount))
	return err
}

// Stop ends the session. Safe to call from another goroutine.
func (r *Recorder) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// discover polls the bus for topics that appeared after the session
// started and subscribes to each one once.
func (r *Recorder) discover(ctx context.Context) {
	defer r.wg.Done()
	tick := time.NewTicker(r.opts.PollInterval)
	defer tick.Stop()
	for {
		for _, t := range r.b.Topics() {
			r.subscribe(t)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (r *Recorder) subscribe(topic string) {
	r.mu.Lock()
	if _, ok := r.subbed[topic]; ok || r.stopping {
		r.mu.Unlock()
		return
	}
	ch, unsub := r.b.Subscribe(topic, r.opts.BufSize)
	r.subbed[topic] = unsub
	r.mu.Unlock()

	r.logger.Debug("recording topic", log.Str("topic", topic))
	r.wg.Add(1)
	go r.drain(ch)
}

func (r *Recorder) drain(ch <-chan *bag.Message) {
	defer r.wg.Done()
	for msg := range ch {
		if msg.Timestamp == 0 {
			stamped := *msg
			stamped.Timestamp = time.Now().UnixNano()
			msg = &stamped
		}
		if !r.flt.Admit(msg) {
			continue
		}
		// Drains continue past session cancel so in-flight messages
		// still land in the bag.
		if err := r.w.Write(context.Background(), msg); err != nil {
			r.fail(err)
			return
		}
	}
}

// fail records the first write error and tears the session down.
func (r *Recorder) fail(err error) {
	r.mu.Lock()
	first := r.writeErr == nil
	if first {
		r.writeErr = err
	}
	stop := r.stop
	r.mu.Unlock()
	if first {
		r.logger.Error("write failed, stopping recording",
			log.Str("session", r.id), log.Err(err))
		if stop != nil {
			stop()
		}
	}
}
