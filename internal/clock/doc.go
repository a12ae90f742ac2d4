// Package clock implements the virtual playback clock.
//
// The clock maps wall time onto a controllable virtual timeline: it can be
// paused without losing position, scaled by a positive rate, and jumped to
// an arbitrary point. SleepUntil converts a virtual-time target into an
// interruptible wall-clock wait, waking early whenever the mapping changes.
package clock
