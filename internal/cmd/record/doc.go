// Package recordrun exposes the shared Run entrypoint used by the CLI
// to capture broker traffic into a bag.
package recordrun
