// Package rewrite combines N input bags into M output bags, preserving
// chronological order. Every output receives every merged message.
package rewrite

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/internal/filter"
	"github.com/rzbill/replay/internal/merge"
)

// Configuration errors, rejected before any output is touched.
var (
	ErrNoInputs  = errors.New("rewrite: at least one input bag is required")
	ErrNoOutputs = errors.New("rewrite: at least one output bag is required")
)

// Options narrows which messages are carried over.
type Options struct {
	// Topics restricts the rewrite to the named topics. Empty keeps all.
	Topics []string
	// Filter is an optional CEL expression applied per message.
	Filter string
}

// Rewrite merges the inputs chronologically and writes every message to
// every output. Storage errors on either side are fatal.
func Rewrite(ctx context.Context, inputs []*bag.Reader, outputs []*bag.Writer, opts Options) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if len(outputs) == 0 {
		return ErrNoOutputs
	}
	flt, err := filter.New(opts.Filter)
	if err != nil {
		return err
	}

	sources := make([]merge.Source, len(inputs))
	for i, r := range inputs {
		r.SetFilter(opts.Topics)
		sources[i] = r
	}
	m, err := merge.New(sources)
	if err != nil {
		return err
	}

	for ctx.Err() == nil {
		msg, err := m.Next()
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		if !flt.Admit(msg) {
			continue
		}
		for i, w := range outputs {
			if err := w.Write(ctx, msg); err != nil {
				return fmt.Errorf("rewrite: output %d: %w", i, err)
			}
		}
	}
	return ctx.Err()
}
