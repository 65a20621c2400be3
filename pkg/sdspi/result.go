package sdspi

import (
	"errors"
	"fmt"
)

// Result is the closed set of outcomes of a driver operation. The numeric values
// are stable and may be stored or sent to other firmware components.
//
// Every failure code implements error, so operations return them directly (or
// wrapped with detail) and callers match with errors.Is. SUCCESS is never
// returned as an error; a nil error is SUCCESS.
type Result uint8

const (
	SUCCESS           Result = 0
	CMD0_ERROR        Result = 1
	CMD8_ERROR        Result = 2
	ACMD41_ERROR      Result = 3
	CMD24_ERROR       Result = 4
	CMD24_WRITE_ERROR Result = 5
	CMD17_ERROR       Result = 6
	CMD17_READ_ERROR  Result = 7
	CMD13_ERROR       Result = 8
	TRANSPORT_ERROR   Result = 9
)

// Results enumerates every code in numeric order.
func Results() []Result {
	return []Result{
		SUCCESS,
		CMD0_ERROR,
		CMD8_ERROR,
		ACMD41_ERROR,
		CMD24_ERROR,
		CMD24_WRITE_ERROR,
		CMD17_ERROR,
		CMD17_READ_ERROR,
		CMD13_ERROR,
		TRANSPORT_ERROR,
	}
}

func (r Result) String() string {
	switch r {
	case SUCCESS:
		return "SUCCESS"
	case CMD0_ERROR:
		return "CMD0_ERROR"
	case CMD8_ERROR:
		return "CMD8_ERROR"
	case ACMD41_ERROR:
		return "ACMD41_ERROR"
	case CMD24_ERROR:
		return "CMD24_ERROR"
	case CMD24_WRITE_ERROR:
		return "CMD24_WRITE_ERROR"
	case CMD17_ERROR:
		return "CMD17_ERROR"
	case CMD17_READ_ERROR:
		return "CMD17_READ_ERROR"
	case CMD13_ERROR:
		return "CMD13_ERROR"
	case TRANSPORT_ERROR:
		return "TRANSPORT_ERROR"
	default:
		return fmt.Sprintf("Result(%d)", uint8(r))
	}
}

// Error implements error.
func (r Result) Error() string {
	return r.String()
}

// Verbose returns a human-readable description of the code.
func (r Result) Verbose() string {
	var desc string
	switch r {
	case SUCCESS:
		desc = "Operation completed"
	case CMD0_ERROR:
		desc = "Card did not enter idle state on reset"
	case CMD8_ERROR:
		desc = "Interface condition rejected (unsupported voltage or command version)"
	case ACMD41_ERROR:
		desc = "Card did not leave idle state during operating-condition negotiation"
	case CMD24_ERROR:
		desc = "Write command rejected"
	case CMD24_WRITE_ERROR:
		desc = "Data block not accepted by the card"
	case CMD17_ERROR:
		desc = "Read command rejected"
	case CMD17_READ_ERROR:
		desc = "No data start token received"
	case CMD13_ERROR:
		desc = "Status command rejected"
	case TRANSPORT_ERROR:
		desc = "Bus transport failure"
	default:
		desc = "Unknown result"
	}
	return fmt.Sprintf("[%d] %s: %s", uint8(r), r.String(), desc)
}

// ResultOf maps an error returned by this package back to its code.
// Errors that carry no code are reported as TRANSPORT_ERROR.
func ResultOf(err error) Result {
	if err == nil {
		return SUCCESS
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return TRANSPORT_ERROR
}

// fail wraps a result code with context.
func fail(r Result, format string, args ...any) error {
	return fmt.Errorf("%w: %s", r, fmt.Sprintf(format, args...))
}

// transportErr tags an I/O failure from the transport.
func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", TRANSPORT_ERROR, op, err)
}
