package sdspi

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "Zero value",
			in:   Config{},
			want: DefaultConfig(),
		},
		{
			name: "Custom budgets are kept",
			in:   Config{R1Attempts: 3, InitAttempts: 5, MaxReadCycles: 7, MaxWriteCycles: 9},
			want: Config{
				R1Attempts:     3,
				InitAttempts:   5,
				PowerUpClocks:  SD_POWER_UP_CLOCKS,
				PowerUpDelay:   SD_POWER_UP_DELAY,
				MaxReadCycles:  7,
				MaxWriteCycles: 9,
			},
		},
		{
			name: "Power-up never below the minimum",
			in:   Config{PowerUpClocks: 4, PowerUpDelay: time.Microsecond},
			want: DefaultConfig(),
		},
		{
			name: "Longer power-up is kept",
			in:   Config{PowerUpClocks: 20, PowerUpDelay: 5 * time.Millisecond},
			want: func() Config {
				c := DefaultConfig()
				c.PowerUpClocks = 20
				c.PowerUpDelay = 5 * time.Millisecond
				return c
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.in.withDefaults()); diff != "" {
				t.Errorf("withDefaults() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewCard_Defaults(t *testing.T) {
	c := NewCard(&scriptBus{})
	if diff := cmp.Diff(DefaultConfig(), c.Config()); diff != "" {
		t.Errorf("Config() mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", c.State())
	}
	if c.Version() != VersionUnknown {
		t.Errorf("Version() = %s, want unknown", c.Version())
	}
}

func TestCard_ConfigDuringInit(t *testing.T) {
	f := newFixture(t, Config{InitAttempts: 7})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.card.Init(); err != nil {
			t.Errorf("Init() error = %v", err)
		}
	}()
	for i := 0; i < 100; i++ {
		if got := f.card.Config().InitAttempts; got != 7 {
			t.Fatalf("Config().InitAttempts = %d, want 7", got)
		}
	}
	wg.Wait()
}
