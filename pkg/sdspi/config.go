package sdspi

import "time"

// Config holds the attempt budgets of the driver. The protocol has no wall-clock
// timeouts; every wait is a bounded number of exchanged bytes, so total latency
// scales with the bus clock.
type Config struct {
	// R1Attempts bounds the wait for the first response byte.
	R1Attempts int `yaml:"R1Attempts"`
	// InitAttempts bounds the ACMD41 polling loop.
	InitAttempts int `yaml:"InitAttempts"`
	// PowerUpClocks is the number of fill bytes sent with chip-select released
	// before the first command (8 clocks each, at least 74 clocks are required).
	PowerUpClocks int `yaml:"PowerUpClocks"`
	// PowerUpDelay is the settle time before the power-up clocks.
	PowerUpDelay time.Duration `yaml:"PowerUpDelay"`
	// MaxReadCycles bounds the wait for the read start token.
	MaxReadCycles int `yaml:"MaxReadCycles"`
	// MaxWriteCycles bounds the wait for the data response token after a write.
	MaxWriteCycles int `yaml:"MaxWriteCycles"`
}

const (
	SD_R1_ATTEMPTS     = 10
	SD_INIT_ATTEMPTS   = 20
	SD_POWER_UP_CLOCKS = 10
	SD_POWER_UP_DELAY  = time.Millisecond
	SD_MAX_READ_CYCLE  = 5000
	SD_MAX_WRITE_CYCLE = 65535
)

// DefaultConfig returns the budgets used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		R1Attempts:     SD_R1_ATTEMPTS,
		InitAttempts:   SD_INIT_ATTEMPTS,
		PowerUpClocks:  SD_POWER_UP_CLOCKS,
		PowerUpDelay:   SD_POWER_UP_DELAY,
		MaxReadCycles:  SD_MAX_READ_CYCLE,
		MaxWriteCycles: SD_MAX_WRITE_CYCLE,
	}
}

// withDefaults fills zero fields from DefaultConfig. Power-up clocks and delay
// are never allowed below the minimum the card requires.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.R1Attempts <= 0 {
		c.R1Attempts = d.R1Attempts
	}
	if c.InitAttempts <= 0 {
		c.InitAttempts = d.InitAttempts
	}
	if c.PowerUpClocks < d.PowerUpClocks {
		c.PowerUpClocks = d.PowerUpClocks
	}
	if c.PowerUpDelay < d.PowerUpDelay {
		c.PowerUpDelay = d.PowerUpDelay
	}
	if c.MaxReadCycles <= 0 {
		c.MaxReadCycles = d.MaxReadCycles
	}
	if c.MaxWriteCycles <= 0 {
		c.MaxWriteCycles = d.MaxWriteCycles
	}
	return c
}
