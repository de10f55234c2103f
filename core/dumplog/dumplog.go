// Package dumplog implements the devnet's append-only dump/load event log:
// a JSON array of the inbound mutating RPC calls, replayed in order against
// a fresh state to reconstruct equivalent public-read behavior. Under
// dump_on=Block an append swaps the file's trailing `]` for `, {event}]`,
// and the source file is deleted after a load.
package dumplog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// When selects when events are flushed to disk.
type When int

const (
	// OnExit buffers events in memory; the full sequence is written once,
	// on shutdown or in response to the devnet_dump RPC.
	OnExit When = iota
	// OnBlock appends one event per committed block directly to the file.
	OnBlock
)

// ErrFormat is returned when a dump file is not a well-formed JSON array:
// by Record (under OnBlock) when the existing target file does not end in a
// bare `]`, and by LoadFile when the file does not decode as an Event array.
var ErrFormat = errors.New("dump file is not a well-formed JSON array")

// Event is an opaque record of one inbound mutating RPC call: the method
// name and its raw JSON params, sufficient to replay deterministically via
// the normal RPC entry point.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Log accumulates Events either in memory (When=OnExit) or is written
// straight through to Path (When=OnBlock).
type Log struct {
	mu     sync.Mutex
	when   When
	path   string
	events []Event
}

// When reports the flush mode the Log was created with, letting callers
// decide DeleteAfterLoad eligibility without reaching into the struct.
func (l *Log) When() When {
	return l.when
}

// Path returns the backing file path, or "" if the Log is in-memory only.
func (l *Log) Path() string {
	return l.path
}

// New creates a Log. An empty path disables file-backed operation: Record
// then only appends to the in-memory buffer, which callers can still read
// with Events() (used by the devnet_dump RPC with no --dump-path to return
// the array inline), and Flush fails unless it is given a path.
func New(when When, path string) *Log {
	return &Log{when: when, path: path}
}

// Record appends event to the in-memory buffer and, under OnBlock, to the
// backing file immediately.
func (l *Log) Record(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if l.when == OnBlock && l.path != "" {
		return appendToFile(l.path, event)
	}
	return nil
}

// Events returns a copy of every event recorded so far.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Flush writes the full in-memory sequence to path (or l.path if path is
// empty), used for OnExit mode at shutdown or on an explicit devnet_dump
// call.
func (l *Log) Flush(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path == "" {
		path = l.path
	}
	if path == "" {
		return errors.New("no dump path configured")
	}
	enc, err := json.Marshal(l.events)
	if err != nil {
		return err
	}
	return os.WriteFile(path, enc, 0o644)
}

// Reset clears the in-memory buffer, called by the devnet's restart step
// (devnet_restart, and devnet_load before it replays the loaded events).
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// appendToFile implements the dump_util.rs append convention: a file that
// does not yet exist is created as `[{event}]`; an existing file must end
// in `]`, which is replaced with `, {event}]`.
func appendToFile(path string, event Event) error {
	encEvent, err := json.Marshal(event)
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, append(append([]byte{'['}, encEvent...), ']'), 0o644)
	}
	if err != nil {
		return err
	}

	trimmed := bytes.TrimRight(existing, "\n \t")
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != ']' {
		return fmt.Errorf("%w: %s", ErrFormat, path)
	}
	body := trimmed[:len(trimmed)-1]
	suffix := []byte(", ")
	if bytes.Equal(bytes.TrimSpace(body), []byte("[")) {
		suffix = nil // first element in an empty array: no leading comma
	}
	out := append(append(append([]byte{}, body...), suffix...), encEvent...)
	out = append(out, ']')
	return os.WriteFile(path, out, 0o644)
}

// LoadFile reads a dump file's JSON array of Events back into memory. It
// does not replay them; callers (the devnet_load handler in api/rpc) drive replay
// through the ordinary RPC dispatcher so the replayed calls go through the
// exact same validation path a live call would.
func LoadFile(path string) ([]Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	return events, nil
}

// DeleteAfterLoad removes the source dump file, called only when When ==
// OnBlock, to avoid doubling the event stream on the next load.
func DeleteAfterLoad(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
