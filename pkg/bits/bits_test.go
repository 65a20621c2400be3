package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0x01}, {3, 0x04}, {8, 0x80}, {0, 0x00},
		{9, 0x00}, // out of range gives an empty mask
	}

	for _, tt := range tests {
		if res := Bit(tt.n); res != tt.expected {
			t.Errorf("Bit(%d) = 0x%02X; want 0x%02X", tt.n, res, tt.expected)
		}
	}
}

func TestIsSet(t *testing.T) {
	r1 := byte(0x05) // idle + illegal command
	if !IsSet(r1, 1) {
		t.Error("Bit 1 (idle) should be set")
	}
	if IsSet(r1, 2) {
		t.Error("Bit 2 should NOT be set")
	}
	if !IsSet(r1, 3) {
		t.Error("Bit 3 (illegal command) should be set")
	}
	if IsSet(r1, 8) {
		t.Error("Bit 8 (busy) should NOT be set")
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		expected byte
	}{
		{"Accepted token low nibble", 0xE5, 4, 1, 0x05},
		{"CRC error token low nibble", 0x0B, 4, 1, 0x0B},
		{"Response code bits 4-2", 0b0000_1101, 4, 2, 0b110},
		{"Top bit", 0x80, 8, 8, 1},
		{"Full Byte", 0xAA, 8, 1, 0xAA},
		{"Inverted range", 0xFF, 1, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := GetRange(tt.input, tt.high, tt.low); res != tt.expected {
				t.Errorf("GetRange(0x%02X, %d, %d) = %d; want %d", tt.input, tt.high, tt.low, res, tt.expected)
			}
		})
	}
}

func TestAnySet(t *testing.T) {
	if !AnySet(0x05, 0x04) || AnySet(0x05, 0x02) {
		t.Error("AnySet mismatch")
	}
}

func TestUint32RoundTrip(t *testing.T) {
	b := Bytes32(0x400001AA)
	if b != [4]byte{0x40, 0x00, 0x01, 0xAA} {
		t.Fatalf("Bytes32 = % X", b)
	}
	if v := Uint32(b[0], b[1], b[2], b[3]); v != 0x400001AA {
		t.Errorf("Uint32 = 0x%08X; want 0x400001AA", v)
	}
}
