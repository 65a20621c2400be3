package sdspi

import (
	"fmt"

	"github.com/gregLibert/sd-card/pkg/bits"
)

// COMMAND FRAME (SD Physical Layer, SPI mode):
// Every command is a fixed 6-byte frame clocked MSB first.
//
//	Byte 0:   0 1 i i i i i i   start bit (0), transmission bit (1), 6-bit command index
//	Byte 1-4: argument, 32-bit big-endian
//	Byte 5:   c c c c c c c 1   7-bit CRC, end bit (1)
//
// In SPI mode the CRC is only checked for CMD0 and CMD8, so those two carry fixed,
// precomputed check values. Every other command is sent with a zero CRC.
//
// APPLICATION COMMANDS (ACMD):
// Application-specific commands share the index space with the standard ones.
// They are distinguished by an APP_CMD (CMD55) escape sent immediately before.

// FrameSize is the length of an encoded command frame.
const FrameSize = 6

const (
	framePreamble  byte = 0x40
	framePostamble byte = 0x01
)

// CmdIndex is the 6-bit command index of a frame.
type CmdIndex byte

// Command indexes used by the driver.
const (
	CMD0   CmdIndex = 0  // GO_IDLE_STATE
	CMD8   CmdIndex = 8  // SEND_IF_COND
	CMD13  CmdIndex = 13 // SEND_STATUS
	CMD17  CmdIndex = 17 // READ_SINGLE_BLOCK
	CMD24  CmdIndex = 24 // WRITE_BLOCK
	CMD55  CmdIndex = 55 // APP_CMD
	ACMD41 CmdIndex = 41 // SD_SEND_OP_COND, only valid after CMD55
)

// Fixed check values, before the end bit is merged in.
const (
	CMD0_CRC byte = 0x94
	CMD8_CRC byte = 0x86
)

// Arguments with a protocol meaning.
const (
	// VHS_27_36 is the voltage-supplied code for 2.7-3.6V in SEND_IF_COND.
	VHS_27_36 byte = 0x01
	// CHECK_PATTERN is echoed back by the card in the R7 response.
	CHECK_PATTERN byte = 0xAA
	// CMD8_ARG combines VHS_27_36 and CHECK_PATTERN.
	CMD8_ARG uint32 = uint32(VHS_27_36)<<8 | uint32(CHECK_PATTERN)

	// ACMD41_ARG_HCS announces host support for high-capacity cards.
	ACMD41_ARG_HCS uint32 = 1 << 30
	// ACMD41_ARG_SDSC is used with cards that predate SEND_IF_COND.
	ACMD41_ARG_SDSC uint32 = 0
)

func (c CmdIndex) String() string {
	switch c {
	case CMD0:
		return "GO_IDLE_STATE"
	case CMD8:
		return "SEND_IF_COND"
	case CMD13:
		return "SEND_STATUS"
	case CMD17:
		return "READ_SINGLE_BLOCK"
	case CMD24:
		return "WRITE_BLOCK"
	case CMD55:
		return "APP_CMD"
	case ACMD41:
		return "SD_SEND_OP_COND"
	default:
		return fmt.Sprintf("CMD%d", byte(c))
	}
}

// Command is a single SPI command frame before serialization.
type Command struct {
	Index    CmdIndex
	Argument uint32
	CRC      byte
}

// NewCommand creates a command. The index is not range-checked; only bits 6-1
// reach the wire.
func NewCommand(index CmdIndex, arg uint32, crc byte) Command {
	return Command{Index: index, Argument: arg, CRC: crc}
}

// Bytes encodes the command into its 6-byte frame.
func (c Command) Bytes() [FrameSize]byte {
	arg := bits.Bytes32(c.Argument)
	return [FrameSize]byte{
		byte(c.Index)&0x3F | framePreamble,
		arg[0], arg[1], arg[2], arg[3],
		c.CRC | framePostamble,
	}
}

// String returns a readable representation of the command.
func (c Command) String() string {
	return fmt.Sprintf("CMD%d (%s) | Arg: 0x%08X | CRC: %02X", byte(c.Index), c.Index, c.Argument, c.CRC|framePostamble)
}
