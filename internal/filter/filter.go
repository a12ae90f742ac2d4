// Package filter compiles optional CEL expressions used to narrow playback,
// rewrite, and recording to matching messages.
package filter

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/replay/internal/bag"
)

// Filter wraps a compiled CEL program. When disabled (empty expression),
// Admit always returns true.
//
// Available variables: topic (string), ts_ns (int), size (int).
type Filter struct {
	prog    cel.Program
	enabled bool
}

// New compiles the expression. An empty expression yields a disabled filter;
// a malformed one is a configuration error.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("ts_ns", cel.IntType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether an expression is active.
func (f Filter) Enabled() bool { return f.enabled }

// Admit evaluates the expression against a message. Evaluation errors and
// non-boolean results reject the message.
func (f Filter) Admit(msg *bag.Message) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"topic": msg.Topic,
		"ts_ns": msg.Timestamp,
		"size":  int64(len(msg.Payload)),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
