package sdspi

import "time"

// Transport abstracts the SPI bus the card hangs off.
//
// The driver owns no hardware. All it needs is a full-duplex single byte exchange
// and control of the card's chip-select line. Implementations live under
// pkg/transport, and pkg/simcard provides a simulated card for tests.
type Transport interface {
	// Exchange clocks b out and returns the byte clocked in at the same time.
	Exchange(b byte) (byte, error)
	// Select asserts chip-select (drives it low).
	Select() error
	// Deselect releases chip-select (drives it high).
	Deselect() error
}

// PowerSwitch is implemented by transports that also control the card supply.
// When the transport provides it, PowerUp switches the supply on first.
type PowerSwitch interface {
	PowerOn() error
}

// DelayFunc blocks for at least d.
type DelayFunc func(d time.Duration)
