/*
Package sdspi drives an SD or SDHC memory card in SPI mode: power-up, the
initialization handshake, and single 512-byte block reads and writes.

The driver owns no hardware. It talks to the card through a Transport (one
full-duplex byte exchange plus chip-select control) supplied by the caller.
pkg/transport holds implementations for real buses and pkg/simcard a simulated
card.

# Fundamentals

Communication with the card is strictly synchronous and byte oriented:
 1. The host clocks out a 6-byte command frame.
 2. The host keeps clocking fill bytes (0xFF) and reads the card's response.
 3. Data phases are framed by tokens: 0xFE starts a block in both directions, and
    the card closes a write with a data response token.

Every wait is a bounded number of exchanged bytes (see Config). There are no
wall-clock timeouts and no cancellation.

# Results

Operations return nil on success or an error wrapping exactly one Result code:

  - CMD0_ERROR, CMD8_ERROR, ACMD41_ERROR: the initialization stage that failed.
  - CMD24_ERROR, CMD24_WRITE_ERROR: write command rejected, data rejected.
  - CMD17_ERROR, CMD17_READ_ERROR: read command rejected, no start token.
  - CMD13_ERROR: status command rejected.
  - TRANSPORT_ERROR: the transport itself failed.

# Usage Example

	card := sdspi.NewCard(bus, sdspi.WithLogger(logger))
	if err := card.Init(); err != nil {
	    log.Fatalf("init: %v (code %d)", err, sdspi.ResultOf(err))
	}

	var blk sdspi.Block
	copy(blk[:], "hello")
	if err := card.WriteBlock(0, &blk); err != nil {
	    log.Fatal(err)
	}
	if err := card.ReadBlock(0, &blk); err != nil {
	    if errors.Is(err, sdspi.CMD17_READ_ERROR) {
	        // the card answered with a data error token
	    }
	}
*/
package sdspi
