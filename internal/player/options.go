package player

import (
	"errors"
	"fmt"
	"time"
)

// Options configures a playback session.
type Options struct {
	// Rate is the playback rate. Must be positive. Default 1.0.
	Rate float64
	// QueueSize caps (advisorily) the read-ahead queue. Default 1000.
	QueueSize int
	// LowWaterFraction of QueueSize below which the loader resumes filling.
	// Must be in (0, 1]. Default 0.5.
	LowWaterFraction float64
	// Loop restarts playback from the beginning after the bag drains.
	Loop bool
	// StartPaused begins the session with the clock paused; delivery waits
	// for Resume or PlayNext.
	StartPaused bool
	// Delay postpones the first delivery. Negative values disable the delay
	// with a warning.
	Delay time.Duration
	// Topics restricts playback to the named topics. Empty plays everything.
	Topics []string
	// Filter is an optional CEL expression applied per message.
	Filter string
}

func (o *Options) withDefaults() error {
	if o.Rate == 0 {
		o.Rate = 1.0
	}
	if o.Rate <= 0 {
		return fmt.Errorf("player: rate must be positive, got %v", o.Rate)
	}
	if o.QueueSize == 0 {
		o.QueueSize = 1000
	}
	if o.QueueSize < 0 {
		return fmt.Errorf("player: queue size must be positive, got %d", o.QueueSize)
	}
	if o.LowWaterFraction == 0 {
		o.LowWaterFraction = 0.5
	}
	if o.LowWaterFraction < 0 || o.LowWaterFraction > 1 {
		return fmt.Errorf("player: low-water fraction must be in (0,1], got %v", o.LowWaterFraction)
	}
	return nil
}

// Control-conflict sentinels. Each leaves prior state unchanged.
var (
	// ErrNotPaused rejects a step while the clock is running.
	ErrNotPaused = errors.New("player: not paused")
	// ErrNotPlaying rejects seek/step before a session has started.
	ErrNotPlaying = errors.New("player: no active playback session")
	// ErrAlreadyPlaying rejects a second concurrent Play call.
	ErrAlreadyPlaying = errors.New("player: session already running")
)
