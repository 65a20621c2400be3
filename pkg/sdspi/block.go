package sdspi

import "fmt"

// SINGLE BLOCK TRANSFERS:
//
// Write (WRITE_BLOCK, CMD24):
//
//	host: CMD24 frame | 0xFE | 512 data bytes | 0xFF ...
//	card:  R1=00      |                       | (CRC slots) data response token
//
// The driver appends no CRC: the fill bytes pumped while waiting for the data
// response double as the two CRC bytes, which the card ignores in SPI mode.
//
// Read (READ_SINGLE_BLOCK, CMD17):
//
//	host: CMD17 frame | 0xFF ...
//	card:  R1=00      | 0xFF ... 0xFE | 512 data bytes | CRC16 (2 bytes)
//
// The trailing CRC16 is clocked in and discarded unverified.
//
// The address argument is passed through untouched: a byte offset for standard
// capacity cards, a block index for high capacity ones.

// WriteBlock writes one block at addr.
func (c *Card) WriteBlock(addr uint32, data *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var token byte
	err := c.transaction(func() error {
		r1, err := c.command(NewCommand(CMD24, addr, 0))
		if err != nil {
			return err
		}
		if r1 != R1_OK {
			return fail(CMD24_ERROR, "addr 0x%08X: R1 %s", addr, r1.Verbose())
		}

		if _, err := c.exchange(TOKEN_BLOCK_START); err != nil {
			return err
		}
		for _, b := range data {
			if _, err := c.exchange(b); err != nil {
				return err
			}
		}

		token, err = c.pollWhileFill(c.cfg.MaxWriteCycles)
		return err
	})
	if err != nil {
		return err
	}

	if !writeAccepted(token) {
		c.logger.Warn("block write rejected", "addr", addr, "token", fmt.Sprintf("0x%02X", token))
		return fail(CMD24_WRITE_ERROR, "addr 0x%08X: data response 0x%02X", addr, token)
	}
	c.logger.Debug("block written", "addr", addr)
	return nil
}

// ReadBlock reads one block at addr into dst. dst is left untouched on failure.
func (c *Card) ReadBlock(addr uint32, dst *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transaction(func() error {
		r1, err := c.command(NewCommand(CMD17, addr, 0))
		if err != nil {
			return err
		}
		if r1 != R1_OK {
			return fail(CMD17_ERROR, "addr 0x%08X: R1 %s", addr, r1.Verbose())
		}

		token, err := c.pollWhileFill(c.cfg.MaxReadCycles)
		if err != nil {
			return err
		}
		if token != TOKEN_BLOCK_START {
			c.logger.Warn("no start token", "addr", addr, "token", fmt.Sprintf("0x%02X", token))
			if IsDataError(token) {
				return fail(CMD17_READ_ERROR, "addr 0x%08X: data error %s", addr, DataErrorToken(token).Verbose())
			}
			return fail(CMD17_READ_ERROR, "addr 0x%08X: token 0x%02X", addr, token)
		}

		var buf Block
		for i := range buf {
			if buf[i], err = c.exchange(fill); err != nil {
				return err
			}
		}
		// CRC16, unverified
		for i := 0; i < 2; i++ {
			if _, err := c.exchange(fill); err != nil {
				return err
			}
		}

		*dst = buf
		c.logger.Debug("block read", "addr", addr)
		return nil
	})
}

// Status issues SEND_STATUS and returns the R2 response.
func (c *Card) Status() (R2, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var r2 R2
	err := c.transaction(func() error {
		if err := c.writeCommand(NewCommand(CMD13, 0, 0)); err != nil {
			return err
		}
		var res [R2Size]byte
		if err := c.readResponse(res[:]); err != nil {
			return err
		}
		r2 = R2{R1: Status(res[0]), Status2: res[1]}
		if r2.R1 != R1_OK {
			return fail(CMD13_ERROR, "%s", r2.Verbose())
		}
		return nil
	})
	return r2, err
}

// pollWhileFill exchanges fill bytes until something else comes back or
// attempts runs out, and returns the last byte received.
func (c *Card) pollWhileFill(attempts int) (byte, error) {
	b := fill
	for i := 0; i < attempts; i++ {
		var err error
		if b, err = c.exchange(fill); err != nil {
			return b, err
		}
		if b != fill {
			break
		}
	}
	return b, nil
}
