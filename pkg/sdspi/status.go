package sdspi

import (
	"fmt"
	"strings"

	"github.com/gregLibert/sd-card/pkg/bits"
)

// R1 STATUS:
// The first byte of every response. Bit 8 is always 0 in a real reply, so a byte
// with bit 8 set means the card has not answered yet (the line is still high).
//
//	Bit 8: 0 (start bit)
//	Bit 7: parameter error
//	Bit 6: address error
//	Bit 5: erase sequence error
//	Bit 4: command CRC error
//	Bit 3: illegal command
//	Bit 2: erase reset
//	Bit 1: in idle state
//
// DATA TOKENS:
//   - 0xFE starts a single block, both directions.
//   - After a write the card answers with xxx0sss1: sss=010 accepted (low nibble 0x5),
//     101 rejected for CRC (0xB), 110 rejected by a write error (0xD).
//   - Instead of a start token, a read may answer with a data error token 0000eeee:
//     bit 1 error, bit 2 card controller error, bit 3 ECC failed, bit 4 out of range.

// Status is the R1 response byte.
type Status byte

const (
	R1_OK                 Status = 0x00
	R1_IDLE_STATE         Status = 0x01
	R1_ERASE_RESET        Status = 0x02
	R1_ILLEGAL_COMMAND    Status = 0x04
	R1_COM_CRC_ERROR      Status = 0x08
	R1_ERASE_SEQUENCE_ERR Status = 0x10
	R1_ADDRESS_ERROR      Status = 0x20
	R1_PARAMETER_ERROR    Status = 0x40
	R1_BUSY               Status = 0x80
)

// fill is clocked out while waiting, and read back while the card is silent.
const fill byte = 0xFF

var r1FlagNames = [7]string{
	"idle",
	"erase reset",
	"illegal command",
	"CRC error",
	"erase sequence error",
	"address error",
	"parameter error",
}

// Data tokens.
const (
	TOKEN_BLOCK_START byte = 0xFE

	TOKEN_WRITE_ACCEPT    byte = 0x05
	TOKEN_WRITE_CRC_ERROR byte = 0x0B
	TOKEN_WRITE_ERROR     byte = 0x0D

	TOKEN_DATA_ERROR              byte = 0x01
	TOKEN_DATA_ERROR_CC           byte = 0x02
	TOKEN_DATA_ERROR_ECC          byte = 0x04
	TOKEN_DATA_ERROR_OUT_OF_RANGE byte = 0x08
)

// IsBusy reports whether bit 8 is set, meaning no reply has been received.
func (s Status) IsBusy() bool {
	return bits.IsSet(byte(s), 8)
}

// IsIdle reports whether the card is still in its initialization phase.
func (s Status) IsIdle() bool {
	return !s.IsBusy() && bits.IsSet(byte(s), 1)
}

// IsIllegalCommand reports whether the card rejected the command index.
func (s Status) IsIllegalCommand() bool {
	return !s.IsBusy() && bits.IsSet(byte(s), 3)
}

// IsError reports whether any of the error flags (bits 7 to 2) is set.
func (s Status) IsError() bool {
	return !s.IsBusy() && bits.AnySet(byte(s), 0x7E)
}

// Flags lists the names of the set flags, lowest bit first.
func (s Status) Flags() []string {
	if s.IsBusy() {
		return []string{"busy"}
	}
	var set []string
	for n := uint(1); n <= 7; n++ {
		if bits.IsSet(byte(s), n) {
			set = append(set, r1FlagNames[n-1])
		}
	}
	return set
}

// Verbose returns a human-readable description of the status byte.
func (s Status) Verbose() string {
	switch {
	case s.IsBusy():
		return fmt.Sprintf("[%02X] No response (busy)", byte(s))
	case s == R1_OK:
		return "[00] Ready"
	default:
		return fmt.Sprintf("[%02X] %s", byte(s), strings.Join(s.Flags(), ", "))
	}
}

// R2 is the two-byte SEND_STATUS response.
//
//	Status2 bit 8: out of range / CSD overwrite
//	Status2 bit 7: erase param
//	Status2 bit 6: write protect violation
//	Status2 bit 5: card ECC failed
//	Status2 bit 4: card controller error
//	Status2 bit 3: error
//	Status2 bit 2: write protect erase skip / lock-unlock failed
//	Status2 bit 1: card is locked
type R2 struct {
	R1      Status
	Status2 byte
}

var r2FlagNames = [8]string{
	"card locked",
	"WP erase skip / lock-unlock failed",
	"error",
	"CC error",
	"card ECC failed",
	"WP violation",
	"erase param",
	"out of range / CSD overwrite",
}

// IsClear reports whether neither byte carries a flag.
func (r R2) IsClear() bool {
	return r.R1 == R1_OK && r.Status2 == 0
}

// Verbose returns a human-readable description of both status bytes.
func (r R2) Verbose() string {
	var set []string
	for n := uint(1); n <= 8; n++ {
		if bits.IsSet(r.Status2, n) {
			set = append(set, r2FlagNames[n-1])
		}
	}
	if len(set) == 0 {
		return fmt.Sprintf("R1 %s | Status2: [%02X] clear", r.R1.Verbose(), r.Status2)
	}
	return fmt.Sprintf("R1 %s | Status2: [%02X] %s", r.R1.Verbose(), r.Status2, strings.Join(set, ", "))
}

// DataErrorToken is the byte a card sends instead of TOKEN_BLOCK_START when a read fails.
type DataErrorToken byte

// IsDataError reports whether b has the shape of a data error token (0000eeee, non zero).
func IsDataError(b byte) bool {
	return b != 0 && bits.GetRange(b, 8, 5) == 0
}

// Verbose returns a human-readable description of the token.
func (t DataErrorToken) Verbose() string {
	if !IsDataError(byte(t)) {
		return fmt.Sprintf("[%02X] Not a data error token", byte(t))
	}
	var set []string
	if bits.IsSet(byte(t), 1) {
		set = append(set, "error")
	}
	if bits.IsSet(byte(t), 2) {
		set = append(set, "CC error")
	}
	if bits.IsSet(byte(t), 3) {
		set = append(set, "card ECC failed")
	}
	if bits.IsSet(byte(t), 4) {
		set = append(set, "out of range")
	}
	return fmt.Sprintf("[%02X] %s", byte(t), strings.Join(set, ", "))
}

// writeAccepted reports whether a data response token carries the accepted code.
func writeAccepted(token byte) bool {
	return bits.LowNibble(token) == TOKEN_WRITE_ACCEPT
}
