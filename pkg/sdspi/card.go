package sdspi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CARD & BUS OWNERSHIP:
// A Card drives one SD card behind one Transport. It keeps no protocol state
// between operations except what Init learned (session state and card version);
// the card itself holds everything else.
//
// Chip-select brackets exactly one logical transaction. Every operation runs its
// body through transaction(), which asserts chip-select, defers the release, and
// only then computes the returned error, so no exit path can leave the line held.

// State is the session state reached by the initialization sequence.
type State int

const (
	StateUninitialized State = iota
	StateIdleReset
	StateInterfaceChecked
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdleReset:
		return "idle-reset"
	case StateInterfaceChecked:
		return "interface-checked"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Version is the card generation detected by SEND_IF_COND.
type Version int

const (
	VersionUnknown Version = iota
	// Version1 cards predate SEND_IF_COND and are always standard capacity.
	Version1
	// Version2 cards answer SEND_IF_COND and may be high capacity.
	Version2
)

func (v Version) String() string {
	switch v {
	case Version1:
		return "SD v1"
	case Version2:
		return "SD v2"
	default:
		return "unknown"
	}
}

// Block is one data block. The driver only transfers whole blocks.
type Block [BlockSize]byte

// BlockSize is the fixed transfer unit of the single-block commands.
const BlockSize = 512

// Card is a driver bound to one transport.
type Card struct {
	mu     sync.Mutex
	bus    Transport
	cfg    Config
	delay  DelayFunc
	logger *slog.Logger

	state   State
	version Version
	failure Result
}

// Option customizes a Card.
type Option func(*Card)

// WithConfig sets the attempt budgets. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Card) {
		c.cfg = cfg.withDefaults()
	}
}

// WithDelay replaces time.Sleep as the power-up delay primitive.
func WithDelay(d DelayFunc) Option {
	return func(c *Card) {
		if d != nil {
			c.delay = d
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Card) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCard creates a driver for the card reachable through bus.
func NewCard(bus Transport, opts ...Option) *Card {
	c := &Card{
		bus:    bus,
		cfg:    DefaultConfig(),
		delay:  time.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "sdspi")
	return c
}

// State returns the session state reached by the last Init call.
func (c *Card) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Version returns the card generation detected by the last successful Init.
func (c *Card) Version() Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Failure returns the code of the last failed Init, or SUCCESS.
func (c *Card) Failure() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Config returns the effective attempt budgets.
func (c *Card) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// transaction runs body with chip-select asserted and always releases it.
// The caller must hold c.mu.
func (c *Card) transaction(body func() error) (err error) {
	if err := c.bus.Select(); err != nil {
		return transportErr("select", err)
	}
	defer func() {
		if derr := c.bus.Deselect(); derr != nil {
			err = errors.Join(err, transportErr("deselect", derr))
		}
	}()
	return body()
}

// exchange sends b and returns the byte received.
func (c *Card) exchange(b byte) (byte, error) {
	rx, err := c.bus.Exchange(b)
	if err != nil {
		return rx, transportErr("exchange", err)
	}
	return rx, nil
}

// writeCommand clocks out a command frame.
func (c *Card) writeCommand(cmd Command) error {
	frame := cmd.Bytes()
	for _, b := range frame {
		if _, err := c.exchange(b); err != nil {
			return err
		}
	}
	return nil
}

// command sends cmd and returns its R1.
func (c *Card) command(cmd Command) (Status, error) {
	if err := c.writeCommand(cmd); err != nil {
		return 0, err
	}
	r1, err := c.readR1()
	if err != nil {
		return 0, err
	}
	c.logger.Debug("command", "cmd", cmd.Index.String(), "arg", fmt.Sprintf("0x%08X", cmd.Argument), "r1", fmt.Sprintf("0x%02X", byte(r1)))
	return r1, nil
}
