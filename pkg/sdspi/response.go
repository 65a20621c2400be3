package sdspi

// RESPONSE FORMATS (SPI mode):
//   - R1: 1 byte, every command.
//   - R2: 2 bytes, R1 followed by a second status byte (SEND_STATUS).
//   - R7: 5 bytes, R1 followed by 4 bytes. For SEND_IF_COND byte 3 holds the
//     accepted voltage code and byte 4 echoes the check pattern.
//
// After a frame the card needs up to 8 byte times (Ncr) before it answers. Until
// then the line stays high and the host reads 0xFF. readR1 keeps pumping fill
// bytes while bit 8 of what it reads is set, for at most R1Attempts bytes.

// Response sizes in bytes.
const (
	R1Size = 1
	R2Size = 2
	R7Size = 5
)

// readR1 returns the first byte that is not busy, or the last busy byte when
// the attempt budget runs out. Callers decide what a still-busy byte means.
func (c *Card) readR1() (Status, error) {
	var r1 byte
	for i := 0; i < c.cfg.R1Attempts; i++ {
		b, err := c.exchange(fill)
		if err != nil {
			return 0, err
		}
		r1 = b
		if !Status(r1).IsBusy() {
			break
		}
	}
	return Status(r1), nil
}

// readResponse fills res with an R1 followed by len(res)-1 trailing bytes.
// The trailing bytes are read unconditionally.
func (c *Card) readResponse(res []byte) error {
	if len(res) == 0 {
		return nil
	}
	r1, err := c.readR1()
	if err != nil {
		return err
	}
	res[0] = byte(r1)
	for i := 1; i < len(res); i++ {
		b, err := c.exchange(fill)
		if err != nil {
			return err
		}
		res[i] = b
	}
	return nil
}
