package session

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Kind distinguishes the event variants a session can emit.
type Kind string

const (
	// KindJSON is a structured NDJSON message decoded from agent stdout.
	KindJSON Kind = "json"

	// KindText is a stdout line that did not parse as a JSON object.
	// Agents occasionally print banners or progress text between
	// structured messages; those are passed through verbatim.
	KindText Kind = "text"

	// KindStderr is a line from the agent's stderr stream.
	KindStderr Kind = "stderr"

	// KindExit is the final event of a session, carrying the exit code.
	KindExit Kind = "exit"
)

// Message is a single event relayed from an agent subprocess.
//
// The NDJSON framing is a thin pass-through: for KindJSON the full line
// is preserved in Payload and only the top-level "type" field is lifted
// out for dispatch, so downstream consumers never lose fields this tool
// does not know about.
type Message struct {
	// SessionID identifies the originating session.
	SessionID string `json:"sessionId"`

	// Kind is the event variant.
	Kind Kind `json:"kind"`

	// Type is the agent message type (the NDJSON "type" field).
	// Only set for KindJSON.
	Type string `json:"type,omitempty"`

	// Payload is the raw JSON object for KindJSON events.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Text is the line content for KindText and KindStderr events.
	Text string `json:"text,omitempty"`

	// ExitCode is the process exit code for KindExit events.
	ExitCode int `json:"exitCode,omitempty"`

	// Time is when the event was observed.
	Time time.Time `json:"time"`
}

// Handler receives session events. Handlers are invoked sequentially from
// the session's reader goroutines; a slow handler backpressures the agent
// via the pipe buffer, which is the desired behavior.
type Handler func(Message)

// maxLineSize bounds a single NDJSON line. Agent messages embed whole
// file contents, so the bufio.Scanner default of 64KiB is not enough.
const maxLineSize = 4 * 1024 * 1024

// typeProbe extracts only the "type" field from an NDJSON line.
type typeProbe struct {
	Type string `json:"type"`
}

// ScanMessages reads r line by line and emits one Message per line.
// Lines that parse as JSON objects become KindJSON events with the raw
// line preserved as Payload; everything else becomes the given
// fallback kind (KindText for stdout, KindStderr for stderr).
//
// Returns the scanner error, if any. io.EOF is not an error.
func ScanMessages(r io.Reader, sessionID string, fallback Kind, emit Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		msg := Message{
			SessionID: sessionID,
			Time:      time.Now(),
		}

		// Only attempt JSON decoding for lines that look like objects;
		// this keeps plain-text lines starting with other characters
		// from paying the failed-parse cost.
		trimmed := strings.TrimSpace(line)
		var probe typeProbe
		if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &probe) == nil {
			msg.Kind = KindJSON
			msg.Type = probe.Type
			// Copy the line: Scanner reuses its buffer between calls.
			msg.Payload = json.RawMessage(append([]byte(nil), trimmed...))
		} else {
			msg.Kind = fallback
			msg.Text = line
		}

		emit(msg)
	}

	return scanner.Err()
}
