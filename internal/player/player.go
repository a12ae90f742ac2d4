package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/internal/clock"
	"github.com/rzbill/replay/internal/filter"
	"github.com/rzbill/replay/internal/merge"
	"github.com/rzbill/replay/internal/metrics"
	"github.com/rzbill/replay/internal/queue"
	logpkg "github.com/rzbill/replay/pkg/log"
)

// Sink receives due messages. Publish reports false when no destination is
// currently registered for the message's topic; that is not an error.
type Sink interface {
	Publish(msg *bag.Message) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(msg *bag.Message) bool

// Publish implements Sink.
func (f SinkFunc) Publish(msg *bag.Message) bool { return f(msg) }

const (
	// queueFillWait paces the initial wait for the loader to fill the queue.
	queueFillWait = 20 * time.Millisecond
	// loaderIdleWait paces the loader while occupancy sits above low water.
	loaderIdleWait = time.Millisecond
	// starvedPeekWait paces head polling when the queue outruns the loader.
	starvedPeekWait = 100 * time.Microsecond
)

// Player replays one or more bags against a virtual clock.
type Player struct {
	opts   Options
	logger logpkg.Logger
	sink   Sink
	met    *metrics.Playback
	flt    filter.Filter

	clk       *clock.Clock
	q         *queue.Queue
	startTime int64
	lowWater  int

	// readerMu serializes every touch of the reader handles: the loader's
	// reads and seek's repositioning must never run concurrently.
	readerMu sync.Mutex
	readers  []*bag.Reader
	src      *merge.Merger

	// playMu serializes steady delivery against step and seek. skipNext
	// tells the delivery loop to drop its current head reference and
	// re-peek; cancelWait breaks it out of its timed wait.
	playMu     sync.Mutex
	skipNext   bool
	cancelWait atomic.Bool

	// ctlMu guards session lifecycle and the delivery-ready handshake.
	ctlMu   sync.Mutex
	ctlCond *sync.Cond
	ready   bool
	playing bool
	runCtx  context.Context

	loaderDone atomic.Bool
	loaderWG   sync.WaitGroup

	loadErrMu sync.Mutex
	loadErr   error

	starvedWarned atomic.Bool

	delivered   atomic.Uint64
	undelivered atomic.Uint64
}

// New validates options and builds a player over the given readers. The
// clock is positioned at the earliest start time across all bags.
func New(readers []*bag.Reader, sink Sink, opts Options, logger logpkg.Logger, met *metrics.Playback) (*Player, error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return nil, merge.ErrNoSources
	}
	flt, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("player"))
	}
	if met == nil {
		met = metrics.NewNopPlayback()
	}

	start := readers[0].StartTime()
	for _, r := range readers[1:] {
		if t := r.StartTime(); t < start {
			start = t
		}
	}
	for _, r := range readers {
		r.SetFilter(opts.Topics)
	}

	lowWater := int(float64(opts.QueueSize) * opts.LowWaterFraction)
	if lowWater < 1 {
		lowWater = 1
	}

	p := &Player{
		opts:      opts,
		logger:    logger,
		sink:      sink,
		met:       met,
		flt:       flt,
		q:         queue.New(),
		startTime: start,
		lowWater:  lowWater,
		readers:   readers,
	}
	p.ctlCond = sync.NewCond(&p.ctlMu)
	p.clk = clock.New(start)
	p.clk.SetRate(opts.Rate)
	met.Rate.Set(opts.Rate)
	return p, nil
}

// StartTime returns the earliest recorded timestamp across the bags.
func (p *Player) StartTime() int64 { return p.startTime }

// Play runs the playback session until the bags drain (or forever when
// looping) or ctx is cancelled. It returns the loader's fatal error, if any,
// after the delivery loop has drained what was already queued.
func (p *Player) Play(ctx context.Context) error {
	p.ctlMu.Lock()
	if p.playing {
		p.ctlMu.Unlock()
		return ErrAlreadyPlaying
	}
	p.playing = true
	p.runCtx = ctx
	p.ctlMu.Unlock()
	defer func() {
		p.ctlMu.Lock()
		p.playing = false
		p.runCtx = nil
		p.ctlCond.Broadcast()
		p.ctlMu.Unlock()
	}()

	delay := p.opts.Delay
	if delay < 0 {
		p.logger.Warn("invalid start delay, disabling", logpkg.Dur("delay", delay))
		delay = 0
	}
	if p.opts.StartPaused {
		p.clk.Pause()
	}
	p.setLoadErr(nil)

	for {
		if delay > 0 {
			p.logger.Info("delaying playback start", logpkg.Dur("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
		if err := p.restart(); err != nil {
			return err
		}
		p.launchLoader(ctx)
		p.waitForFilledQueue(ctx)
		p.playFromQueue(ctx)
		p.setReady(false)
		p.loaderWG.Wait()
		if err := p.takeLoadErr(); err != nil {
			return err
		}
		if !p.opts.Loop || ctx.Err() != nil {
			return nil
		}
		p.logger.Info("looping playback", logpkg.Int64("start_ns", p.startTime))
	}
}

// restart repositions every reader at the stream start and rebuilds the
// merger for a fresh single-pass merge.
func (p *Player) restart() error {
	p.readerMu.Lock()
	defer p.readerMu.Unlock()
	if err := p.rebuildMergerLocked(p.startTime); err != nil {
		return err
	}
	p.clk.Jump(p.startTime)
	p.starvedWarned.Store(false)
	return nil
}

func (p *Player) rebuildMergerLocked(target int64) error {
	sources := make([]merge.Source, len(p.readers))
	for i, r := range p.readers {
		if err := r.Seek(target); err != nil {
			return err
		}
		sources[i] = r
	}
	src, err := merge.New(sources)
	if err != nil {
		return err
	}
	p.src = src
	return nil
}

func (p *Player) launchLoader(ctx context.Context) {
	p.loaderDone.Store(false)
	p.loaderWG.Add(1)
	go func() {
		defer p.loaderWG.Done()
		p.loadStorage(ctx)
	}()
}

// loadStorage runs on the loader goroutine: keep the queue topped up to
// capacity, backing off while occupancy sits above the low-water mark.
func (p *Player) loadStorage(ctx context.Context) {
	defer p.loaderDone.Store(true)
	for ctx.Err() == nil {
		p.readerMu.Lock()
		if !p.src.HasNext() {
			p.readerMu.Unlock()
			return
		}
		if p.q.SizeApprox() < p.lowWater {
			err := p.enqueueUpTo(p.opts.QueueSize)
			p.readerMu.Unlock()
			if err != nil {
				p.logger.Error("bag read failed, stopping loader", logpkg.Err(err))
				p.setLoadErr(err)
				return
			}
		} else {
			p.readerMu.Unlock()
			time.Sleep(loaderIdleWait)
		}
	}
}

// enqueueUpTo fills the queue to the boundary. Caller holds readerMu.
func (p *Player) enqueueUpTo(boundary int) error {
	for p.q.SizeApprox() < boundary && p.src.HasNext() {
		msg, err := p.src.Next()
		if err != nil {
			return err
		}
		if msg == nil {
			break
		}
		if !p.flt.Admit(msg) {
			continue
		}
		p.q.Enqueue(msg)
		p.met.Loaded.Inc()
	}
	p.met.QueueDepth.Set(float64(p.q.SizeApprox()))
	return nil
}

func (p *Player) waitForFilledQueue(ctx context.Context) {
	for p.q.SizeApprox() < p.opts.QueueSize && !p.loaderDone.Load() && ctx.Err() == nil {
		time.Sleep(queueFillWait)
	}
}

// peekNext returns the head message, polling briefly when the queue is
// empty but the loader is still running. Returns nil only at end of data or
// cancellation.
func (p *Player) peekNext(ctx context.Context) *bag.Message {
	msg := p.q.Peek()
	if msg == nil && !p.loaderDone.Load() && ctx.Err() == nil {
		if p.starvedWarned.CompareAndSwap(false, true) {
			p.logger.Warn("message queue starved; messages will be delayed, consider a larger read-ahead queue")
		}
		for msg == nil && !p.loaderDone.Load() && ctx.Err() == nil {
			time.Sleep(starvedPeekWait)
			msg = p.q.Peek()
		}
	}
	// The loader may finish between the peek and the flag check; one final
	// peek closes that window.
	if msg == nil {
		msg = p.q.Peek()
	}
	return msg
}

// playFromQueue is the delivery loop: wait until the head message is due,
// then hand it to the sink, honoring pending control intents whenever the
// wait is interrupted.
func (p *Player) playFromQueue(ctx context.Context) {
	// Peek before signalling readiness: the queue head is single-consumer
	// and step waits for this handshake before peeking itself.
	msg := p.peekNext(ctx)
	p.setReady(true)
	for {
		for msg != nil && ctx.Err() == nil {
			for ctx.Err() == nil && !p.clk.SleepUntil(ctx, msg.Timestamp) {
				if p.cancelWait.CompareAndSwap(true, false) {
					break
				}
			}
			p.playMu.Lock()
			if ctx.Err() == nil && p.skipNext {
				p.skipNext = false
				p.cancelWait.Store(false)
				p.playMu.Unlock()
				msg = p.peekNext(ctx)
				continue
			}
			if ctx.Err() == nil {
				p.publish(msg)
			}
			p.q.Pop()
			p.met.QueueDepth.Set(float64(p.q.SizeApprox()))
			p.playMu.Unlock()
			msg = p.peekNext(ctx)
		}
		// Reaching the end of the queue while paused must not end the
		// session out from under the user; hold until resumed. A seek in
		// this state refills the queue, so delivery re-enters when the
		// head shows up again.
		for ctx.Err() == nil && p.clk.IsPaused() && p.q.Peek() == nil {
			p.clk.SleepUntil(ctx, p.clk.Now())
		}
		msg = p.peekNext(ctx)
		if msg == nil || ctx.Err() != nil {
			return
		}
	}
}

func (p *Player) publish(msg *bag.Message) bool {
	if p.sink.Publish(msg) {
		p.delivered.Add(1)
		p.met.Delivered.Inc()
		return true
	}
	p.undelivered.Add(1)
	p.met.Undelivered.Inc()
	return false
}

// Pause freezes the virtual clock; delivery stalls inside its wait.
func (p *Player) Pause() {
	p.clk.Pause()
	p.logger.Info("pausing playback")
}

// Resume unfreezes the virtual clock.
func (p *Player) Resume() {
	p.clk.Resume()
	p.logger.Info("resuming playback")
}

// TogglePaused flips the pause state.
func (p *Player) TogglePaused() {
	if p.IsPaused() {
		p.Resume()
	} else {
		p.Pause()
	}
}

// IsPaused reports the clock's pause state.
func (p *Player) IsPaused() bool { return p.clk.IsPaused() }

// Rate returns the current playback rate.
func (p *Player) Rate() float64 { return p.clk.Rate() }

// SetRate applies a new rate immediately; rejected for values <= 0.
func (p *Player) SetRate(rate float64) bool {
	if !p.clk.SetRate(rate) {
		p.logger.Warn("rejected invalid playback rate", logpkg.F64("rate", rate))
		return false
	}
	p.met.Rate.Set(rate)
	p.logger.Info("set playback rate", logpkg.F64("rate", rate))
	return true
}

// Now returns the current virtual time.
func (p *Player) Now() int64 { return p.clk.Now() }

// PlayNext delivers exactly one queued message while paused, jumping the
// clock to its timestamp. It keeps consuming queued messages until one is
// actually accepted by the sink, reporting whether any delivery happened.
func (p *Player) PlayNext() (bool, error) {
	if !p.clk.IsPaused() {
		p.logger.Warn("step requested while not paused")
		return false, ErrNotPaused
	}
	// Take over delivery: the loop will re-peek instead of publishing the
	// head it captured before our jump wakes it.
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.skipNext = true
	ctx, err := p.waitUntilReady()
	if err != nil {
		return false, err
	}

	delivered := false
	msg := p.peekNext(ctx)
	for msg != nil && !delivered {
		delivered = p.publish(msg)
		p.clk.Jump(msg.Timestamp)
		p.q.Pop()
		p.met.QueueDepth.Set(float64(p.q.SizeApprox()))
		if !delivered {
			msg = p.peekNext(ctx)
		}
	}
	return delivered, nil
}

// Seek repositions playback to target. Targets before the stream start are
// clamped to it. No message from before the seek is delivered after it.
func (p *Player) Seek(target int64) error {
	// Stop steady delivery and block a concurrent step for the duration.
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.skipNext = true
	ctx, err := p.waitUntilReady()
	if err != nil {
		return err
	}
	p.cancelWait.Store(true)
	if target < p.startTime {
		target = p.startTime
	}

	p.readerMu.Lock()
	defer p.readerMu.Unlock()
	for p.q.Pop() {
	}
	p.met.QueueDepth.Set(0)
	if err := p.rebuildMergerLocked(target); err != nil {
		return err
	}
	p.clk.Jump(target)
	// Relaunch the loader if it had already drained the previous position.
	if p.loaderDone.Load() && ctx.Err() == nil {
		p.launchLoader(ctx)
	}
	p.logger.Info("seeked", logpkg.Int64("target_ns", target))
	return nil
}

// Stats summarizes the session for the control surface.
type Stats struct {
	Paused      bool    `json:"paused"`
	Rate        float64 `json:"rate"`
	NowNs       int64   `json:"now_ns"`
	StartNs     int64   `json:"start_ns"`
	QueueDepth  int     `json:"queue_depth"`
	Delivered   uint64  `json:"delivered"`
	Undelivered uint64  `json:"undelivered"`
}

// Stats returns a point-in-time snapshot.
func (p *Player) Stats() Stats {
	return Stats{
		Paused:      p.clk.IsPaused(),
		Rate:        p.clk.Rate(),
		NowNs:       p.clk.Now(),
		StartNs:     p.startTime,
		QueueDepth:  p.q.SizeApprox(),
		Delivered:   p.delivered.Load(),
		Undelivered: p.undelivered.Load(),
	}
}

func (p *Player) setReady(v bool) {
	p.ctlMu.Lock()
	p.ready = v
	p.ctlCond.Broadcast()
	p.ctlMu.Unlock()
}

// waitUntilReady blocks until the delivery loop has performed its first
// peek, so control operations never race ahead of a starting session. It
// fails fast when no session is active.
func (p *Player) waitUntilReady() (context.Context, error) {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()
	for !p.ready && p.playing {
		p.ctlCond.Wait()
	}
	if !p.ready {
		return nil, ErrNotPlaying
	}
	return p.runCtx, nil
}

func (p *Player) setLoadErr(err error) {
	p.loadErrMu.Lock()
	p.loadErr = err
	p.loadErrMu.Unlock()
}

func (p *Player) takeLoadErr() error {
	p.loadErrMu.Lock()
	defer p.loadErrMu.Unlock()
	return p.loadErr
}
