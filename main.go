package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gregLibert/sd-card/pkg/config"
	"github.com/gregLibert/sd-card/pkg/logging"
	"github.com/gregLibert/sd-card/pkg/sdspi"
	"github.com/gregLibert/sd-card/pkg/simcard"
	"github.com/gregLibert/sd-card/pkg/transport/buspirate"
	"github.com/gregLibert/sd-card/pkg/transport/rpispi"
)

type globalFlags struct {
	configFile string
	transport  string
	logLevel   string
	trace      bool
}

// session is one opened card: the bus, the driver on top of it and everything
// that has to be closed afterwards.
type session struct {
	card    *sdspi.Card
	rec     *sdspi.Recorder
	logger  *slog.Logger
	closers []io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is the result code for driver failures, 1 for anything else.
func exitCode(err error) int {
	var r sdspi.Result
	if errors.As(err, &r) && r != sdspi.SUCCESS {
		return int(r)
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "sdcard",
		Short:         "Talk to an SD card over SPI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default ./"+config.CONFILE+" when present)")
	root.PersistentFlags().StringVar(&g.transport, "transport", "", "bus to use: sim, rpio or buspirate")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	root.PersistentFlags().BoolVar(&g.trace, "trace", false, "print every bus event after the command")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Power up and initialize the card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, &g, func(s *session) error {
				err := s.card.Init()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "state:   %s\n", s.card.State())
				fmt.Fprintf(out, "version: %s\n", s.card.Version())
				if err != nil {
					fmt.Fprintf(out, "result:  %s\n", s.card.Failure().Verbose())
				}
				return err
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Initialize the card and print SEND_STATUS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, &g, func(s *session) error {
				if err := s.card.Init(); err != nil {
					return err
				}
				r2, err := s.card.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r2.Verbose())
				return nil
			})
		},
	}

	var outFile string
	readCmd := &cobra.Command{
		Use:   "read ADDR",
		Short: "Read one 512-byte block",
		Long:  "Read one block. ADDR is a block index on high capacity cards and a byte address otherwise.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, &g, func(s *session) error {
				if err := s.card.Init(); err != nil {
					return err
				}
				var blk sdspi.Block
				if err := s.card.ReadBlock(addr, &blk); err != nil {
					return err
				}
				if outFile != "" {
					return os.WriteFile(outFile, blk[:], 0o644)
				}
				_, err := io.WriteString(cmd.OutOrStdout(), hex.Dump(blk[:]))
				return err
			})
		},
	}
	readCmd.Flags().StringVar(&outFile, "out", "", "write the raw block to this file instead of a hex dump")

	var inFile string
	writeCmd := &cobra.Command{
		Use:   "write ADDR",
		Short: "Write one 512-byte block",
		Long:  "Write one block from a file of at most 512 bytes; shorter input is padded with zeros.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			blk, err := loadBlock(inFile)
			if err != nil {
				return err
			}
			return withSession(cmd, &g, func(s *session) error {
				if err := s.card.Init(); err != nil {
					return err
				}
				if err := s.card.WriteBlock(addr, blk); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote block at %d\n", addr)
				return nil
			})
		},
	}
	writeCmd.Flags().StringVar(&inFile, "in", "", "file holding the block data")
	_ = writeCmd.MarkFlagRequired("in")

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports a Bus Pirate may be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := buspirate.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	root.AddCommand(infoCmd, statusCmd, readCmd, writeCmd, portsCmd)
	return root
}

func parseAddr(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(addr), nil
}

func loadBlock(path string) (*sdspi.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > sdspi.BlockSize {
		return nil, fmt.Errorf("%s holds %d bytes, a block is %d", path, len(data), sdspi.BlockSize)
	}
	var blk sdspi.Block
	copy(blk[:], data)
	return &blk, nil
}

// loadConfig reads the explicit config file, else ./sdcard.yml when it exists,
// else the defaults. Flags override the file.
func loadConfig(g *globalFlags) (*config.Config, error) {
	var conf *config.Config
	switch {
	case g.configFile != "":
		c, err := config.ReadConfig(g.configFile)
		if err != nil {
			return nil, err
		}
		conf = c
	default:
		if _, err := os.Stat(config.CONFILE); err == nil {
			c, err := config.ReadConfig(config.CONFILE)
			if err != nil {
				return nil, err
			}
			conf = c
		} else {
			conf = config.Default()
		}
	}

	if g.transport != "" {
		conf.Transport = g.transport
	}
	if g.logLevel != "" {
		conf.Logging.Level = g.logLevel
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func withSession(cmd *cobra.Command, g *globalFlags, run func(*session) error) (err error) {
	conf, err := loadConfig(g)
	if err != nil {
		return err
	}
	s, err := openSession(conf, g.trace, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if s.rec != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), s.rec.Trace().Describe())
		}
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return run(s)
}

func openSession(conf *config.Config, trace bool, logOut io.Writer) (*session, error) {
	logger, logCloser, err := logging.Setup(conf.Logging, logOut)
	if err != nil {
		return nil, fmt.Errorf("can't set up logging: %w", err)
	}
	s := &session{logger: logger, closers: []io.Closer{logCloser}}

	bus, err := s.openBus(conf)
	if err != nil {
		s.Close()
		return nil, err
	}
	if trace {
		s.rec = sdspi.NewRecorder(bus)
		bus = s.rec
	}

	s.card = sdspi.NewCard(bus,
		sdspi.WithConfig(conf.Protocol),
		sdspi.WithLogger(logger.With("transport", conf.Transport)),
	)
	return s, nil
}

func (s *session) openBus(conf *config.Config) (sdspi.Transport, error) {
	switch conf.Transport {
	case config.TransportRPIO:
		t, err := rpispi.Open(conf.RPIO)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, t)
		return t, nil
	case config.TransportBusPirate:
		t, err := buspirate.Open(conf.BusPirate, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, t)
		return t, nil
	default:
		return s.openSim(conf.Sim)
	}
}

func (s *session) openSim(sc config.SimConfig) (sdspi.Transport, error) {
	opts := []simcard.Option{simcard.WithInitPolls(sc.InitPolls)}
	if sc.StandardCapacity {
		opts = append(opts, simcard.WithStandardCapacity())
	}

	if sc.Image == "" {
		opts = append(opts, simcard.WithBlocks(sc.Blocks))
		return simcard.New(opts...), nil
	}

	var store *simcard.FileStore
	var err error
	if _, statErr := os.Stat(sc.Image); statErr == nil {
		store, err = simcard.OpenFileStore(sc.Image)
	} else {
		s.logger.Info("creating card image", "image", sc.Image, "blocks", sc.Blocks)
		store, err = simcard.CreateFileStore(sc.Image, sc.Blocks)
	}
	if err != nil {
		return nil, fmt.Errorf("can't open card image: %w", err)
	}
	s.closers = append(s.closers, store)
	opts = append(opts, simcard.WithStore(store))
	return simcard.New(opts...), nil
}

// Close releases the bus first and the log file last.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
