// Package session spawns and tracks coding-agent subprocesses.
//
// The agent protocol is newline-delimited JSON on stdout. This package
// deliberately does not model the protocol beyond the top-level "type"
// field: messages are passed through as raw JSON so consumers keep every
// field the agent emits. Plain-text output and stderr are relayed as
// untyped events alongside the structured stream.
package session
