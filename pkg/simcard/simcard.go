// Package simcard simulates an SD card in SPI mode at the byte level.
//
// A Card is a bus endpoint: it implements the same Exchange/Select/Deselect
// contract as a real SPI transport, so a driver can be pointed at it directly.
// Every exchange is full duplex: the byte returned is taken from the card's output
// queue before the byte received is processed, exactly as on the wire.
//
// Failure paths can be forced with options (wrong reset status, corrupted probe
// echo, slow initialization, error tokens, rejected writes) so that tests can
// reach every branch of a driver deterministically.
package simcard

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/gregLibert/sd-card/pkg/bits"
)

// BlockSize is the size of one data block.
const BlockSize = 512

// Wire constants, as seen from the card.
const (
	fill            byte = 0xFF
	tokenStart      byte = 0xFE
	dataAccepted    byte = 0xE5 // xxx0 0101, upper bits undefined, set as most cards do
	dataWriteError  byte = 0xED
	dataOutOfRange  byte = 0x08
	r1Ready         byte = 0x00
	r1Idle          byte = 0x01
	r1Illegal       byte = 0x04
	r1CRCError      byte = 0x08
	r1AddressError  byte = 0x20
	crcCMD0         byte = 0x95
	crcCMD8         byte = 0x87
	argHCS          uint32 = 1 << 30
	minWarmupClocks        = 74
)

type cardState int

const (
	stateIdle cardState = iota
	stateCommand
	stateWriteWait
	stateWriteData
)

// Card is a simulated SD card. The zero value is not usable; call New.
type Card struct {
	mu   sync.Mutex
	opts options

	out   deque.Deque[byte]
	state cardState
	frame [6]byte
	n     int

	selected    bool
	warmClocks  int
	spiMode     bool
	appCmd      bool
	ready       bool
	hcs         bool
	opCondPolls int

	writeBlock uint32
	writeBuf   [BlockSize + 2]byte
	writePos   int

	commands  []byte
	selects   int
	deselects int
	powerOns  int
}

// New creates a card. Without options it behaves like a healthy SDHC card of
// 2048 blocks backed by memory.
func New(opts ...Option) *Card {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = NewMemoryStore(o.blocks)
	}
	return &Card{opts: o}
}

// Exchange implements the SPI byte exchange.
func (c *Card) Exchange(b byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selected {
		// power-up clocks: the card only counts them
		c.warmClocks += 8
		return fill, nil
	}

	out := fill
	if c.out.Len() > 0 {
		out = c.out.PopFront()
	}
	c.receive(b)
	return out, nil
}

// Select asserts chip-select.
func (c *Card) Select() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = true
	c.selects++
	return nil
}

// Deselect releases chip-select. Pending output is dropped and an unfinished
// command or write is abandoned.
func (c *Card) Deselect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
	c.deselects++
	c.out.Clear()
	c.state = stateIdle
	c.n = 0
	return nil
}

// PowerOn switches the simulated supply on. It resets the power-up clock count.
func (c *Card) PowerOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOns++
	if !c.spiMode {
		c.warmClocks = 0
	}
	return nil
}

func (c *Card) receive(b byte) {
	switch c.state {
	case stateIdle:
		// start bit 0, transmission bit 1
		if b&0xC0 == 0x40 {
			c.frame[0] = b
			c.n = 1
			c.state = stateCommand
		}
	case stateCommand:
		c.frame[c.n] = b
		c.n++
		if c.n == len(c.frame) {
			c.state = stateIdle
			c.n = 0
			c.dispatch()
		}
	case stateWriteWait:
		if b == tokenStart {
			c.writePos = 0
			c.state = stateWriteData
		}
	case stateWriteData:
		c.writeBuf[c.writePos] = b
		c.writePos++
		// two CRC bytes follow the data, ignored in SPI mode
		if c.writePos == len(c.writeBuf) {
			c.state = stateIdle
			c.finishWrite()
		}
	}
}

func (c *Card) dispatch() {
	index := c.frame[0] & 0x3F
	arg := bits.Uint32(c.frame[1], c.frame[2], c.frame[3], c.frame[4])
	crc := c.frame[5]
	app := c.appCmd
	c.appCmd = false

	if !c.spiMode {
		// In SD mode only a correctly protected CMD0 after the power-up clocks is
		// understood.
		if index != 0 || crc != crcCMD0 || c.warmClocks < minWarmupClocks {
			return
		}
	}

	c.commands = append(c.commands, index)
	c.out.Clear()
	c.pushFill(c.opts.responseLatency)

	if r1, ok := c.opts.overrides[index]; ok {
		if index == 0 {
			c.spiMode = true
		}
		c.out.PushBack(r1)
		return
	}

	switch {
	case index == 0:
		c.spiMode = true
		c.ready = false
		c.hcs = false
		c.opCondPolls = 0
		c.out.PushBack(c.opts.resetStatus)
	case index == 8:
		c.ifCond(arg, crc)
	case index == 13:
		c.out.PushBack(c.r1(0))
		c.out.PushBack(0x00)
	case index == 17:
		c.readSingle(arg)
	case index == 24:
		c.writeSingle(arg)
	case index == 55:
		c.appCmd = true
		c.out.PushBack(c.r1(0))
	case index == 41 && app:
		c.opCond(arg)
	default:
		c.out.PushBack(c.r1(r1Illegal))
	}
}

// r1 builds an R1 with the idle bit reflecting the initialization state.
func (c *Card) r1(flags byte) byte {
	if !c.ready {
		flags |= r1Idle
	}
	return flags
}

func (c *Card) ifCond(arg uint32, crc byte) {
	if c.opts.version1 {
		c.out.PushBack(c.r1(r1Illegal))
		return
	}
	if crc != crcCMD8 {
		c.out.PushBack(c.r1(r1CRCError))
		return
	}

	status := c.r1(0)
	if c.opts.probeStatus != nil {
		status = *c.opts.probeStatus
	}
	voltage := byte(arg>>8) & 0x0F
	if c.opts.probeVoltage != nil {
		voltage = *c.opts.probeVoltage
	}
	pattern := byte(arg)
	if c.opts.probePattern != nil {
		pattern = *c.opts.probePattern
	}
	c.out.PushBack(status)
	c.out.PushBack(0x00)
	c.out.PushBack(0x00)
	c.out.PushBack(voltage)
	c.out.PushBack(pattern)
}

func (c *Card) opCond(arg uint32) {
	if c.ready {
		c.out.PushBack(r1Ready)
		return
	}
	c.opCondPolls++
	if c.opCondPolls <= c.opts.initPolls {
		c.out.PushBack(r1Idle)
		return
	}
	c.ready = true
	c.hcs = arg&argHCS != 0 && c.opts.highCapacity && !c.opts.version1
	c.out.PushBack(r1Ready)
}

// block converts a command argument to a block index.
func (c *Card) block(arg uint32) (uint32, bool) {
	if c.hcs {
		return arg, true
	}
	return arg / BlockSize, arg%BlockSize == 0
}

func (c *Card) readSingle(arg uint32) {
	if !c.ready {
		c.out.PushBack(c.r1(r1Illegal))
		return
	}
	n, aligned := c.block(arg)
	if !aligned {
		c.out.PushBack(r1AddressError)
		return
	}
	c.out.PushBack(r1Ready)
	c.pushFill(c.opts.readLatency)

	if c.opts.readToken != nil && *c.opts.readToken != tokenStart {
		c.out.PushBack(*c.opts.readToken)
		return
	}
	if n >= c.opts.store.Blocks() {
		c.out.PushBack(dataOutOfRange)
		return
	}

	var buf [BlockSize]byte
	if err := c.opts.store.ReadBlock(n, buf[:]); err != nil {
		c.out.PushBack(0x01)
		return
	}
	c.out.PushBack(tokenStart)
	for _, b := range buf {
		c.out.PushBack(b)
	}
	crc := crc16(buf[:])
	c.out.PushBack(byte(crc >> 8))
	c.out.PushBack(byte(crc))
}

func (c *Card) writeSingle(arg uint32) {
	if !c.ready {
		c.out.PushBack(c.r1(r1Illegal))
		return
	}
	n, aligned := c.block(arg)
	if !aligned || n >= c.opts.store.Blocks() {
		c.out.PushBack(r1AddressError)
		return
	}
	c.out.PushBack(r1Ready)
	c.writeBlock = n
	c.state = stateWriteWait
}

func (c *Card) finishWrite() {
	token := dataAccepted
	if c.opts.writeResponse != nil {
		token = *c.opts.writeResponse
	}
	if token&0x0F == dataAccepted&0x0F {
		if err := c.opts.store.WriteBlock(c.writeBlock, c.writeBuf[:BlockSize]); err != nil {
			token = dataWriteError
		}
	}
	c.pushFill(c.opts.writeLatency)
	c.out.PushBack(token)
	for i := 0; i < c.opts.programmingBusy; i++ {
		c.out.PushBack(0x00)
	}
}

func (c *Card) pushFill(n int) {
	for i := 0; i < n; i++ {
		c.out.PushBack(fill)
	}
}

// crc16 is the CRC-16/XMODEM the card appends to data blocks.
func crc16(p []byte) uint16 {
	var crc uint16
	for _, b := range p {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Selected reports whether chip-select is currently asserted.
func (c *Card) Selected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Selects returns how many times chip-select was asserted.
func (c *Card) Selects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects
}

// Deselects returns how many times chip-select was released.
func (c *Card) Deselects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deselects
}

// PowerOns returns how many times the supply was switched on.
func (c *Card) PowerOns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerOns
}

// Commands returns the indexes of the commands the card accepted, in order.
func (c *Card) Commands() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.commands))
	copy(out, c.commands)
	return out
}

// CommandCount returns how many times the card accepted the given index.
func (c *Card) CommandCount(index byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.commands {
		if cmd == index {
			n++
		}
	}
	return n
}

// Ready reports whether the card left the idle state.
func (c *Card) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// HighCapacity reports whether block addressing was negotiated.
func (c *Card) HighCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hcs
}

// Store returns the backing medium.
func (c *Card) Store() Store {
	return c.opts.store
}
