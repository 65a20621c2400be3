// Package buspirate drives an SD card through a Bus Pirate in binary SPI mode,
// over a USB serial port. It lets a desktop host talk to a bare card socket.
package buspirate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// BINARY SPI PROTOCOL (Bus Pirate v3 firmware):
//
//	0x00 x N   enter raw bitbang mode, answers "BBIO1"
//	0x01       from bitbang, enter SPI mode, answers "SPI1"
//	0x02/0x03  CS low / CS high, answers 0x01
//	0x1n       bulk transfer of n+1 bytes, answers 0x01 then one byte per byte sent
//	0x4X       peripherals 0100 wxyz: w power, x pull-ups, y AUX, z CS
//	0x6X       speed, X indexes spiSpeeds
//	0x8X       config 1000 wxyz: w 3.3V push-pull, x idle clock high, y output on
//	           active-to-idle edge, z sample at end
//	0x0F       (from bitbang) reset to the user terminal, answers 0x01
//
// Every command byte is acknowledged with 0x01; anything else is a failure.

const (
	cmdReset       byte = 0x00
	cmdSPI         byte = 0x01
	cmdCSLow       byte = 0x02
	cmdCSHigh      byte = 0x03
	cmdExitBitbang byte = 0x0F
	cmdBulk        byte = 0x10
	cmdPeripherals byte = 0x40
	cmdSpeed       byte = 0x60
	cmdConfig      byte = 0x80

	periphPower byte = 0x08
	periphCS    byte = 0x01

	// mode 0, 3.3V push-pull, output on the active-to-idle edge
	spiConfig byte = 0x8A

	ack byte = 0x01
)

var (
	bitbangBanner = []byte("BBIO1")
	spiBanner     = []byte("SPI1")
)

// spiSpeeds are the clock rates selectable with cmdSpeed, in Hz.
var spiSpeeds = [8]int{30_000, 125_000, 250_000, 1_000_000, 2_000_000, 2_600_000, 4_000_000, 8_000_000}

// Config describes the serial link and bus settings.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyUSB0 or COM4.
	Port string `yaml:"Port"`
	// BaudRate of the serial link. The Bus Pirate v3 talks 115200.
	BaudRate int `yaml:"BaudRate"`
	// SPIFrequency in Hz, rounded down to the nearest supported rate.
	SPIFrequency int `yaml:"SPIFrequency"`
	// ReadTimeout bounds every wait for a reply.
	ReadTimeout time.Duration `yaml:"ReadTimeout"`
}

const (
	DEFAULT_BAUD_RATE     = 115200
	DEFAULT_SPI_FREQUENCY = 250_000
	DEFAULT_READ_TIMEOUT  = time.Second
	MAX_RESET_ATTEMPTS    = 20
)

// Port is the part of serial.Port the transport needs.
type Port interface {
	io.ReadWriter
	Close() error
}

// ErrNoAck is returned when the Bus Pirate answers a command with something
// other than 0x01.
var ErrNoAck = errors.New("buspirate: command not acknowledged")

// ErrTimeout is returned when the Bus Pirate does not answer in time.
var ErrTimeout = errors.New("buspirate: read timeout")

// Transport is an sdspi transport over a Bus Pirate.
type Transport struct {
	mu     sync.Mutex
	port   Port
	logger *slog.Logger
	closed bool
}

// Open opens the serial port and switches the Bus Pirate to binary SPI mode.
func Open(cfg Config, logger *slog.Logger) (*Transport, error) {
	cfg = cfg.withDefaults()
	p, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	t, err := New(p, cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// New switches the Bus Pirate behind an already open port to binary SPI mode.
// The port must return (0, nil) from Read on timeout, as serial ports do.
func New(port Port, cfg Config, logger *slog.Logger) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{port: port, logger: logger.With("component", "buspirate")}

	if err := t.enterBitbang(); err != nil {
		return nil, err
	}
	if err := t.write(cmdSPI); err != nil {
		return nil, err
	}
	if err := t.expect(spiBanner); err != nil {
		return nil, fmt.Errorf("enter SPI mode: %w", err)
	}

	speed := speedIndex(cfg.SPIFrequency)
	steps := []struct {
		name string
		cmd  byte
	}{
		{"speed", cmdSpeed | speed},
		{"config", spiConfig},
		// supply off, CS high
		{"peripherals", cmdPeripherals | periphCS},
	}
	for _, s := range steps {
		if err := t.command(s.cmd); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	t.logger.Info("binary SPI mode", "speed", spiSpeeds[speed])
	return t, nil
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DEFAULT_BAUD_RATE
	}
	if c.SPIFrequency <= 0 {
		c.SPIFrequency = DEFAULT_SPI_FREQUENCY
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DEFAULT_READ_TIMEOUT
	}
	return c
}

// speedIndex picks the fastest supported rate not above hz.
func speedIndex(hz int) byte {
	var idx byte
	for i, s := range spiSpeeds {
		if s <= hz {
			idx = byte(i)
		}
	}
	return idx
}

// enterBitbang sends resets until the bitbang banner shows up.
func (t *Transport) enterBitbang() error {
	var seen []byte
	buf := make([]byte, 32)
	for i := 0; i < MAX_RESET_ATTEMPTS; i++ {
		if err := t.write(cmdReset); err != nil {
			return err
		}
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("enter bitbang: %w", err)
		}
		seen = append(seen, buf[:n]...)
		if bytes.Contains(seen, bitbangBanner) {
			t.logger.Debug("bitbang mode", "resets", i+1)
			return t.drain(buf)
		}
	}
	return fmt.Errorf("enter bitbang: no %q after %d resets", bitbangBanner, MAX_RESET_ATTEMPTS)
}

// drain discards pending input until a read times out, so that the rest of a
// banner split across reads does not precede the next reply.
func (t *Transport) drain(buf []byte) error {
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func (t *Transport) write(p ...byte) error {
	if _, err := t.port.Write(p); err != nil {
		return fmt.Errorf("buspirate write: %w", err)
	}
	return nil
}

// read fills p or fails with ErrTimeout.
func (t *Transport) read(p []byte) error {
	for n := 0; n < len(p); {
		m, err := t.port.Read(p[n:])
		if err != nil {
			return fmt.Errorf("buspirate read: %w", err)
		}
		if m == 0 {
			return ErrTimeout
		}
		n += m
	}
	return nil
}

func (t *Transport) expect(want []byte) error {
	got := make([]byte, len(want))
	if err := t.read(got); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("got %q, want %q", got, want)
	}
	return nil
}

// command sends a one-byte command and checks the acknowledgment.
func (t *Transport) command(cmd byte) error {
	if err := t.write(cmd); err != nil {
		return err
	}
	var reply [1]byte
	if err := t.read(reply[:]); err != nil {
		return err
	}
	if reply[0] != ack {
		return fmt.Errorf("%w: 0x%02X -> 0x%02X", ErrNoAck, cmd, reply[0])
	}
	return nil
}

// Exchange performs a one-byte bulk transfer.
func (t *Transport) Exchange(b byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errClosed
	}
	if err := t.write(cmdBulk, b); err != nil {
		return 0, err
	}
	var reply [2]byte
	if err := t.read(reply[:]); err != nil {
		return 0, err
	}
	if reply[0] != ack {
		return 0, fmt.Errorf("%w: bulk transfer -> 0x%02X", ErrNoAck, reply[0])
	}
	return reply[1], nil
}

// Select drives CS low.
func (t *Transport) Select() error {
	return t.locked(cmdCSLow)
}

// Deselect drives CS high.
func (t *Transport) Deselect() error {
	return t.locked(cmdCSHigh)
}

// PowerOn switches on the Bus Pirate's 3.3V and 5V supplies.
func (t *Transport) PowerOn() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	if err := t.command(cmdPeripherals | periphPower | periphCS); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	return nil
}

func (t *Transport) locked(cmd byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	return t.command(cmd)
}

// Close returns the Bus Pirate to its user terminal and closes the port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	// back to bitbang, then reset; failures here do not keep the port open
	err := t.write(cmdReset)
	if err == nil {
		err = t.expect(bitbangBanner)
	}
	if err == nil {
		err = t.command(cmdExitBitbang)
	}
	if err != nil {
		t.logger.Warn("leaving binary mode", "error", err)
	}
	return t.port.Close()
}

var errClosed = errors.New("buspirate: transport closed")
