// Package config loads the YAML configuration of the sdcard tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/sd-card/pkg/logging"
	"github.com/gregLibert/sd-card/pkg/sdspi"
	"github.com/gregLibert/sd-card/pkg/transport/buspirate"
	"github.com/gregLibert/sd-card/pkg/transport/rpispi"
)

const CONFILE = "sdcard.yml"

// Transport kinds.
const (
	TransportSim       = "sim"
	TransportRPIO      = "rpio"
	TransportBusPirate = "buspirate"
)

// SimConfig describes the simulated card.
type SimConfig struct {
	// Image is a raw disk image backing the card. Empty means memory.
	Image string `yaml:"Image"`
	// Blocks is the capacity of a memory card, or of a newly created image.
	Blocks uint32 `yaml:"Blocks"`
	// StandardCapacity makes the card refuse high capacity addressing.
	StandardCapacity bool `yaml:"StandardCapacity"`
	// InitPolls is the number of busy ACMD41 answers before ready.
	InitPolls int `yaml:"InitPolls"`
}

type Config struct {
	Configfile string `yaml:"-"`

	Transport string           `yaml:"Transport"`
	Protocol  sdspi.Config     `yaml:"Protocol"`
	RPIO      rpispi.Config    `yaml:"RPIO"`
	BusPirate buspirate.Config `yaml:"BusPirate"`
	Sim       SimConfig        `yaml:"Sim"`
	Logging   logging.Config   `yaml:"Logging"`
}

// Default returns the configuration used without a config file: a simulated
// card with the protocol defaults.
func Default() *Config {
	return &Config{
		Transport: TransportSim,
		Protocol:  sdspi.DefaultConfig(),
		RPIO: rpispi.Config{
			SPIFrequency:  rpispi.DEFAULT_SPI_FREQUENCY,
			ChipSelectPin: 25,
		},
		BusPirate: buspirate.Config{
			Port:         "/dev/ttyUSB0",
			BaudRate:     buspirate.DEFAULT_BAUD_RATE,
			SPIFrequency: buspirate.DEFAULT_SPI_FREQUENCY,
			ReadTimeout:  buspirate.DEFAULT_READ_TIMEOUT,
		},
		Sim: SimConfig{
			Blocks:    2048,
			InitPolls: 2,
		},
		Logging: logging.Config{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// ReadConfig loads cfile over the defaults and validates the result. Keys
// missing from the file keep their default value; unknown keys are an error.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate reports every inconsistency at once.
func (c *Config) Validate() error {
	var errs []error

	c.Transport = strings.ToLower(c.Transport)
	switch c.Transport {
	case TransportSim:
		if c.Sim.Blocks == 0 && c.Sim.Image == "" {
			errs = append(errs, errors.New("Sim.Blocks must be positive"))
		}
		if c.Sim.InitPolls < 0 {
			errs = append(errs, errors.New("Sim.InitPolls must not be negative"))
		}
	case TransportRPIO:
		if c.RPIO.ChipSelectPin <= 0 || c.RPIO.ChipSelectPin > 27 {
			errs = append(errs, fmt.Errorf("RPIO.ChipSelectPin %d must be between 1 and 27", c.RPIO.ChipSelectPin))
		}
		if c.RPIO.PowerPin < 0 || c.RPIO.PowerPin > 27 {
			errs = append(errs, fmt.Errorf("RPIO.PowerPin %d must be between 0 and 27", c.RPIO.PowerPin))
		}
		if c.RPIO.PowerPin != 0 && c.RPIO.PowerPin == c.RPIO.ChipSelectPin {
			errs = append(errs, errors.New("RPIO.PowerPin and RPIO.ChipSelectPin must differ"))
		}
	case TransportBusPirate:
		if c.BusPirate.Port == "" {
			errs = append(errs, errors.New("BusPirate.Port must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown Transport %q (want %s, %s or %s)", c.Transport, TransportSim, TransportRPIO, TransportBusPirate))
	}

	p := c.Protocol
	if p.R1Attempts < 0 || p.InitAttempts < 0 || p.MaxReadCycles < 0 || p.MaxWriteCycles < 0 {
		errs = append(errs, errors.New("Protocol attempt budgets must not be negative"))
	}
	if p.PowerUpClocks != 0 && p.PowerUpClocks < sdspi.SD_POWER_UP_CLOCKS {
		errs = append(errs, fmt.Errorf("Protocol.PowerUpClocks must be at least %d", sdspi.SD_POWER_UP_CLOCKS))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("Logging.Format %q must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
