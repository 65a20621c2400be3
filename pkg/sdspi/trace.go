package sdspi

import (
	"fmt"
	"strings"
	"sync"
)

// EVENT:
// An Event is one observable action on the bus: a chip-select edge or a single
// full-duplex byte exchange.
//
// TRACE:
// A Trace is the chronological list of Events seen during one or more driver
// operations. It captures the whole conversation, including fill bytes pumped while
// polling, and is what tests compare against the expected wire sequence.

// Op identifies the kind of bus event.
type Op int

const (
	OpExchange Op = iota
	OpSelect
	OpDeselect
)

func (o Op) String() string {
	switch o {
	case OpExchange:
		return "XCHG"
	case OpSelect:
		return "CS_LOW"
	case OpDeselect:
		return "CS_HIGH"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Event is a single bus action. Tx and Rx are only meaningful for OpExchange.
type Event struct {
	Op Op
	Tx byte
	Rx byte
}

func (e Event) String() string {
	if e.Op == OpExchange {
		return fmt.Sprintf("%s %02X -> %02X", e.Op, e.Tx, e.Rx)
	}
	return e.Op.String()
}

// Trace is a sequence of bus events.
type Trace []Event

// Last returns the final event of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Event {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Sent returns the bytes clocked out, in order.
func (t Trace) Sent() []byte {
	var out []byte
	for _, e := range t {
		if e.Op == OpExchange {
			out = append(out, e.Tx)
		}
	}
	return out
}

// Received returns the bytes clocked in, in order.
func (t Trace) Received() []byte {
	var out []byte
	for _, e := range t {
		if e.Op == OpExchange {
			out = append(out, e.Rx)
		}
	}
	return out
}

// SentWhileSelected returns the bytes clocked out with chip-select asserted.
func (t Trace) SentWhileSelected() []byte {
	var out []byte
	selected := false
	for _, e := range t {
		switch e.Op {
		case OpSelect:
			selected = true
		case OpDeselect:
			selected = false
		case OpExchange:
			if selected {
				out = append(out, e.Tx)
			}
		}
	}
	return out
}

// Selected reports whether chip-select is asserted after the last event.
func (t Trace) Selected() bool {
	selected := false
	for _, e := range t {
		switch e.Op {
		case OpSelect:
			selected = true
		case OpDeselect:
			selected = false
		}
	}
	return selected
}

// Balanced reports whether every Select is followed by exactly one Deselect
// before the next Select. Extra Deselects while released are allowed, since
// power-up drives the line high unconditionally.
func (t Trace) Balanced() bool {
	selected := false
	for _, e := range t {
		switch e.Op {
		case OpSelect:
			if selected {
				return false
			}
			selected = true
		case OpDeselect:
			selected = false
		}
	}
	return !selected
}

// Count returns the number of events of the given kind.
func (t Trace) Count(op Op) int {
	n := 0
	for _, e := range t {
		if e.Op == op {
			n++
		}
	}
	return n
}

// Describe renders the trace one event per line, collapsing runs of identical
// exchanges.
func (t Trace) Describe() string {
	var lines []string
	for i := 0; i < len(t); {
		j := i + 1
		for j < len(t) && t[j] == t[i] {
			j++
		}
		if j-i > 1 {
			lines = append(lines, fmt.Sprintf("%s x%d", t[i], j-i))
		} else {
			lines = append(lines, t[i].String())
		}
		i = j
	}
	return strings.Join(lines, "\n")
}

// Recorder wraps a Transport and records every call into a Trace.
type Recorder struct {
	mu    sync.Mutex
	inner Transport
	trace Trace
}

// NewRecorder creates a Recorder forwarding to t.
func NewRecorder(t Transport) *Recorder {
	return &Recorder{inner: t}
}

// Exchange implements Transport.
func (r *Recorder) Exchange(b byte) (byte, error) {
	rx, err := r.inner.Exchange(b)
	if err != nil {
		return rx, err
	}
	r.record(Event{Op: OpExchange, Tx: b, Rx: rx})
	return rx, nil
}

// Select implements Transport.
func (r *Recorder) Select() error {
	if err := r.inner.Select(); err != nil {
		return err
	}
	r.record(Event{Op: OpSelect})
	return nil
}

// Deselect implements Transport.
func (r *Recorder) Deselect() error {
	if err := r.inner.Deselect(); err != nil {
		return err
	}
	r.record(Event{Op: OpDeselect})
	return nil
}

// PowerOn forwards to the wrapped transport when it controls the supply.
func (r *Recorder) PowerOn() error {
	if ps, ok := r.inner.(PowerSwitch); ok {
		return ps.PowerOn()
	}
	return nil
}

// Trace returns a copy of the events recorded so far.
func (r *Recorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Trace, len(r.trace))
	copy(out, r.trace)
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = nil
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, e)
}
