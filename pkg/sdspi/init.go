package sdspi

import (
	"fmt"
)

// INITIALIZATION SEQUENCE (SPI mode):
//
// 0. Power-up: with chip-select released the card must see the command line high
//    for at least 1 ms and at least 74 clock cycles before the first command.
//
// 1. GO_IDLE_STATE (CMD0): with chip-select asserted this switches the card to SPI
//    mode. The only acceptable answer is R1 = 0x01 (idle).
//
// 2. SEND_IF_COND (CMD8): the host announces 2.7-3.6V and a check pattern. A card
//    that knows the command echoes both in bytes 3 and 4 of its R7. A card that
//    predates it flags the command as illegal.
//
// 3. SD_SEND_OP_COND (ACMD41), repeated: the host tells the card whether it
//    supports high capacity (HCS bit), then polls until the card leaves idle.
//
// The whole handshake runs inside a single chip-select assertion.

// probeOutcome classifies the R1 of SEND_IF_COND. Every R1 maps to exactly one
// outcome, and only the first two carry an ACMD41 argument.
type probeOutcome int

const (
	probeUnrecognized probeOutcome = iota
	probeV2
	probeLegacy
)

func classifyProbe(r1 Status) probeOutcome {
	switch r1 {
	case R1_IDLE_STATE:
		return probeV2
	case R1_ILLEGAL_COMMAND, R1_IDLE_STATE | R1_ILLEGAL_COMMAND:
		return probeLegacy
	default:
		return probeUnrecognized
	}
}

// opCondArgument returns the ACMD41 argument and detected version for an outcome.
func (p probeOutcome) opCondArgument() (uint32, Version, bool) {
	switch p {
	case probeV2:
		return ACMD41_ARG_HCS, Version2, true
	case probeLegacy:
		return ACMD41_ARG_SDSC, Version1, true
	default:
		return 0, VersionUnknown, false
	}
}

// PowerUp runs the power-on sequence. It is also run by Init.
func (c *Card) PowerUp() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerUp()
}

func (c *Card) powerUp() error {
	if ps, ok := c.bus.(PowerSwitch); ok {
		if err := ps.PowerOn(); err != nil {
			return transportErr("power on", err)
		}
	}

	if err := c.bus.Deselect(); err != nil {
		return transportErr("deselect", err)
	}
	c.delay(c.cfg.PowerUpDelay)

	for i := 0; i < c.cfg.PowerUpClocks; i++ {
		if _, err := c.exchange(fill); err != nil {
			return err
		}
	}

	if err := c.bus.Deselect(); err != nil {
		return transportErr("deselect", err)
	}
	c.logger.Debug("power up done", "clocks", c.cfg.PowerUpClocks*8)
	return nil
}

// Init brings the card from power-on to the ready state.
//
// It returns nil on success, or an error matching one of CMD0_ERROR, CMD8_ERROR,
// ACMD41_ERROR (or TRANSPORT_ERROR) identifying the stage that failed. No stage
// is retried except the bounded ACMD41 poll.
func (c *Card) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateUninitialized
	c.version = VersionUnknown
	c.failure = SUCCESS

	err := c.initialize()
	if err != nil {
		c.state = StateFailed
		c.failure = ResultOf(err)
		c.logger.Warn("card init failed", "result", c.failure.String(), "error", err)
		return err
	}

	c.logger.Info("card ready", "version", c.version.String())
	return nil
}

func (c *Card) initialize() error {
	if err := c.powerUp(); err != nil {
		return err
	}

	return c.transaction(func() error {
		// 1. Reset
		r1, err := c.command(NewCommand(CMD0, 0, CMD0_CRC))
		if err != nil {
			return err
		}
		if r1 != R1_IDLE_STATE {
			return fail(CMD0_ERROR, "R1 %s", r1.Verbose())
		}
		c.state = StateIdleReset

		// 2. Interface condition
		if err := c.writeCommand(NewCommand(CMD8, CMD8_ARG, CMD8_CRC)); err != nil {
			return err
		}
		var r7 [R7Size]byte
		if err := c.readResponse(r7[:]); err != nil {
			return err
		}
		c.logger.Debug("interface condition", "r7", fmt.Sprintf("% X", r7[:]))
		if r7[3] != VHS_27_36 || r7[4] != CHECK_PATTERN {
			return fail(CMD8_ERROR, "voltage 0x%02X pattern 0x%02X", r7[3], r7[4])
		}

		arg, version, ok := classifyProbe(Status(r7[0])).opCondArgument()
		if !ok {
			return fail(CMD8_ERROR, "unrecognized R1 %s", Status(r7[0]).Verbose())
		}
		c.state = StateInterfaceChecked

		// 3. Operating condition
		r1, err = c.negotiateOpCond(arg)
		if err != nil {
			return err
		}
		if r1 != R1_OK {
			return fail(ACMD41_ERROR, "still %s after %d attempts", r1.Verbose(), c.cfg.InitAttempts)
		}

		c.version = version
		c.state = StateReady
		return nil
	})
}

// negotiateOpCond polls ACMD41 until the card reports ready or the budget runs out.
// It returns the last R1 received.
func (c *Card) negotiateOpCond(arg uint32) (Status, error) {
	var r1 Status
	for attempt := 1; attempt <= c.cfg.InitAttempts; attempt++ {
		var err error
		r1, err = c.appCommand(NewCommand(ACMD41, arg, 0))
		if err != nil {
			return r1, err
		}
		if r1 == R1_OK {
			c.logger.Debug("operating condition reached", "attempt", attempt)
			break
		}
	}
	return r1, nil
}

// appCommand sends APP_CMD followed by cmd and returns the R1 of cmd.
func (c *Card) appCommand(cmd Command) (Status, error) {
	if _, err := c.command(NewCommand(CMD55, 0, 0)); err != nil {
		return 0, err
	}
	return c.command(cmd)
}
