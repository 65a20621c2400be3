package sdspi

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCommand_Bytes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want [FrameSize]byte
	}{
		{
			name: "GO_IDLE_STATE",
			cmd:  NewCommand(CMD0, 0, CMD0_CRC),
			want: [FrameSize]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95},
		},
		{
			name: "SEND_IF_COND",
			cmd:  NewCommand(CMD8, CMD8_ARG, CMD8_CRC),
			want: [FrameSize]byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87},
		},
		{
			name: "READ_SINGLE_BLOCK, big-endian argument",
			cmd:  NewCommand(CMD17, 0x12345678, 0),
			want: [FrameSize]byte{0x51, 0x12, 0x34, 0x56, 0x78, 0x01},
		},
		{
			name: "WRITE_BLOCK at 0",
			cmd:  NewCommand(CMD24, 0, 0),
			want: [FrameSize]byte{0x58, 0x00, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "APP_CMD",
			cmd:  NewCommand(CMD55, 0, 0),
			want: [FrameSize]byte{0x77, 0x00, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "SD_SEND_OP_COND with HCS",
			cmd:  NewCommand(ACMD41, ACMD41_ARG_HCS, 0),
			want: [FrameSize]byte{0x69, 0x40, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "Index wider than 6 bits is truncated",
			cmd:  NewCommand(CmdIndex(0xC0|17), 0, 0),
			want: [FrameSize]byte{0x51, 0x00, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "End bit already set is kept",
			cmd:  NewCommand(CMD0, 0, 0x95),
			want: [FrameSize]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.cmd.Bytes()); diff != "" {
				t.Errorf("Bytes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommand_String(t *testing.T) {
	got := NewCommand(CMD8, CMD8_ARG, CMD8_CRC).String()
	for _, part := range []string{"CMD8", "SEND_IF_COND", "0x000001AA", "87"} {
		if !strings.Contains(got, part) {
			t.Errorf("String() = %q, missing %q", got, part)
		}
	}

	if got := CmdIndex(42).String(); got != "CMD42" {
		t.Errorf("unknown index String() = %q, want CMD42", got)
	}
}
