// Package playrun exposes the shared Run entrypoint used by the CLI to
// replay bags, wiring the sink, control server, and metrics registry.
package playrun
