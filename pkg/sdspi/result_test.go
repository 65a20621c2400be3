package sdspi

import (
	"errors"
	"fmt"
	"testing"
)

func TestResult_Values(t *testing.T) {
	// The numeric values are part of the contract with other components.
	want := map[Result]uint8{
		SUCCESS:           0,
		CMD0_ERROR:        1,
		CMD8_ERROR:        2,
		ACMD41_ERROR:      3,
		CMD24_ERROR:       4,
		CMD24_WRITE_ERROR: 5,
		CMD17_ERROR:       6,
		CMD17_READ_ERROR:  7,
		CMD13_ERROR:       8,
		TRANSPORT_ERROR:   9,
	}

	all := Results()
	if len(all) != len(want) {
		t.Fatalf("Results() has %d codes, want %d", len(all), len(want))
	}
	for i, r := range all {
		if uint8(r) != uint8(i) {
			t.Errorf("Results()[%d] = %d, not in numeric order", i, r)
		}
		if v, ok := want[r]; !ok || v != uint8(r) {
			t.Errorf("%s = %d, want %d", r, uint8(r), v)
		}
	}
}

func TestResult_Strings(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Results() {
		s := r.String()
		if seen[s] {
			t.Errorf("duplicate name %q", s)
		}
		seen[s] = true
		if r.Error() != s {
			t.Errorf("%s.Error() = %q", s, r.Error())
		}
	}

	if got, want := CMD17_READ_ERROR.Verbose(), "[7] CMD17_READ_ERROR: No data start token received"; got != want {
		t.Errorf("Verbose() = %q, want %q", got, want)
	}
	if got := Result(42).String(); got != "Result(42)" {
		t.Errorf("unknown String() = %q", got)
	}
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Result
	}{
		{"nil is success", nil, SUCCESS},
		{"bare code", CMD0_ERROR, CMD0_ERROR},
		{"wrapped with detail", fail(CMD24_WRITE_ERROR, "token 0x%02X", 0x0B), CMD24_WRITE_ERROR},
		{"wrapped twice", fmt.Errorf("write: %w", fail(CMD17_ERROR, "x")), CMD17_ERROR},
		{"transport", transportErr("exchange", errBus), TRANSPORT_ERROR},
		{"joined keeps the first code", errors.Join(fail(CMD24_ERROR, "x"), transportErr("deselect", errBus)), CMD24_ERROR},
		{"foreign error", errors.New("boom"), TRANSPORT_ERROR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultOf(tt.err); got != tt.want {
				t.Errorf("ResultOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransportErr_KeepsCause(t *testing.T) {
	err := transportErr("select", errBus)
	if !errors.Is(err, TRANSPORT_ERROR) {
		t.Error("should match TRANSPORT_ERROR")
	}
	if !errors.Is(err, errBus) {
		t.Error("should keep the underlying cause")
	}
}
