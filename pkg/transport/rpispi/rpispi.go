// Package rpispi connects an SD card to the SPI0 controller of a Raspberry Pi.
//
// The controller's own chip-select toggles around every transfer, which breaks
// the multi-byte transactions of the SD protocol. The card's CS line is therefore
// wired to a plain GPIO pin that this package drives itself.
package rpispi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// Config describes the wiring.
type Config struct {
	// SPIFrequency in Hz. Cards must be initialized at 100-400 kHz.
	SPIFrequency int `yaml:"SPIFrequency"`
	// ChipSelectPin is the BCM number of the GPIO wired to the card's CS.
	ChipSelectPin int `yaml:"ChipSelectPin"`
	// PowerPin is the BCM number of a GPIO switching the card supply, 0 if none.
	PowerPin int `yaml:"PowerPin"`
}

const DEFAULT_SPI_FREQUENCY = 400_000

// pin is the subset of rpio.Pin the transport needs.
type pin interface {
	Output()
	High()
	Low()
}

// Transport is an sdspi transport on the Raspberry Pi SPI0 bus.
type Transport struct {
	mu       sync.Mutex
	cs       pin
	power    pin
	exchange func([]byte)
	release  func() error
	buf      [1]byte
	closed   bool
}

// Open maps the GPIO memory, starts SPI0 in mode 0 and claims the configured pins.
// The card is left deselected.
func Open(cfg Config) (*Transport, error) {
	if cfg.ChipSelectPin <= 0 {
		return nil, errors.New("chip-select pin not configured")
	}
	if cfg.SPIFrequency <= 0 {
		cfg.SPIFrequency = DEFAULT_SPI_FREQUENCY
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(cfg.SPIFrequency)
	rpio.SpiMode(0, 0)

	t := &Transport{
		cs:       rpio.Pin(cfg.ChipSelectPin),
		exchange: rpio.SpiExchange,
		release:  closeRPIO,
	}
	if cfg.PowerPin > 0 {
		t.power = rpio.Pin(cfg.PowerPin)
	}
	t.setup()
	return t, nil
}

func (t *Transport) setup() {
	t.cs.Output()
	t.cs.High()
	if t.power != nil {
		t.power.Output()
	}
}

// Exchange clocks one byte in each direction.
func (t *Transport) Exchange(b byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errClosed
	}
	t.buf[0] = b
	// SpiExchange overwrites the buffer with the received bytes
	t.exchange(t.buf[:])
	return t.buf[0], nil
}

// Select drives CS low.
func (t *Transport) Select() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	t.cs.Low()
	return nil
}

// Deselect drives CS high.
func (t *Transport) Deselect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	t.cs.High()
	return nil
}

// PowerOn drives the supply pin high. Without a supply pin it does nothing.
func (t *Transport) PowerOn() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	if t.power != nil {
		t.power.High()
	}
	return nil
}

// Close releases CS, stops SPI0 and unmaps the GPIO memory.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.cs.High()
	return t.release()
}

func closeRPIO() error {
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("failed to close rpio: %w", err)
	}
	return nil
}

var errClosed = errors.New("rpispi: transport closed")
