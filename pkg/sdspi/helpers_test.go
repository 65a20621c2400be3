package sdspi

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gregLibert/sd-card/pkg/simcard"
)

var errBus = errors.New("bus fault")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a driver to a simulated card through a Recorder.
type fixture struct {
	card   *Card
	sim    *simcard.Card
	rec    *Recorder
	delays []time.Duration
}

func newFixture(t *testing.T, cfg Config, opts ...simcard.Option) *fixture {
	t.Helper()
	f := &fixture{sim: simcard.New(opts...)}
	f.rec = NewRecorder(f.sim)
	f.card = NewCard(f.rec,
		WithConfig(cfg),
		WithLogger(quietLogger()),
		WithDelay(func(d time.Duration) { f.delays = append(f.delays, d) }),
	)
	return f
}

// ready returns a fixture whose card already passed Init, with the trace cleared.
func ready(t *testing.T, cfg Config, opts ...simcard.Option) *fixture {
	t.Helper()
	f := newFixture(t, cfg, opts...)
	if err := f.card.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	f.rec.Reset()
	return f
}

// scriptBus answers exchanges from a fixed script, then with fill bytes.
type scriptBus struct {
	rx        []byte
	sent      []byte
	selects   int
	deselects int
}

func (s *scriptBus) Exchange(b byte) (byte, error) {
	s.sent = append(s.sent, b)
	if len(s.rx) == 0 {
		return 0xFF, nil
	}
	out := s.rx[0]
	s.rx = s.rx[1:]
	return out, nil
}

func (s *scriptBus) Select() error {
	s.selects++
	return nil
}

func (s *scriptBus) Deselect() error {
	s.deselects++
	return nil
}

// faultyBus forwards to inner until one of its fault triggers fires.
type faultyBus struct {
	inner Transport
	// failAfter makes the exchange with that 1-based index fail; 0 disables it.
	failAfter    int
	failSelect   bool
	failDeselect bool
	failPower    bool

	exchanges int
	selected  bool
}

func (f *faultyBus) Exchange(b byte) (byte, error) {
	f.exchanges++
	if f.failAfter > 0 && f.exchanges >= f.failAfter {
		return 0, errBus
	}
	return f.inner.Exchange(b)
}

func (f *faultyBus) Select() error {
	if f.failSelect {
		return errBus
	}
	f.selected = true
	return f.inner.Select()
}

func (f *faultyBus) Deselect() error {
	// the line is released even when the report fails
	f.selected = false
	if err := f.inner.Deselect(); err != nil {
		return err
	}
	if f.failDeselect {
		return errBus
	}
	return nil
}

func (f *faultyBus) PowerOn() error {
	if f.failPower {
		return errBus
	}
	if ps, ok := f.inner.(PowerSwitch); ok {
		return ps.PowerOn()
	}
	return nil
}
