// Command metriful-tool talks to a Metriful MS430 on a Linux I2C bus.
//
// Usage:
//
//	metriful-tool [flags] <command> [command flags] [args]
//
// Commands:
//
//	status    Print the device status
//	reset     Reset the device and print the fresh status
//	mode      Switch operational mode (standby, cycle:3s, cycle:100s, cycle:300s)
//	read      Read metrics once
//	clear     Clear a latched light or sound interrupt
//	watch     Read metrics continuously with a read strategy
//	record    Like watch, writing readings to a CBOR recording
//	replay    Print a recording
//	metrics   List known metric names
//	shell     Interactive session
//
// Examples:
//
//	# Read air data from the default bus and address
//	metriful-tool read combined_air
//
//	# Watch temperature every 3 s in cycle mode, without hardware
//	metriful-tool -simulate watch -strategy cycle -period 3s temperature
//
//	# Record on-demand readings every 10 s
//	metriful-tool -config /etc/metriful.yaml record -strategy interval -interval 10s -o run.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"metriful-go/errcode"
	"metriful-go/internal/config"
)

const usage = `metriful-tool - Metriful MS430 sensor tool

Usage:
  metriful-tool [flags] <command> [command flags] [args]

Commands:
%s
Use "metriful-tool <command> -help" for more information about a command.

Flags:
`

// options are the global flags. Unset flags fall back to the config file,
// then to config.Default.
type options struct {
	ConfigFile  string
	Bus         string
	Address     string
	ReadyPin    string
	OpenTimeout time.Duration
	Simulate    bool
	LogLevel    string
	JSON        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("metriful-tool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&opts.Bus, "bus", "", "I2C bus, e.g. /dev/i2c-1 (default from config)")
	fs.StringVar(&opts.Address, "address", "", "Device address, decimal or 0x-prefixed hex (default 0x71)")
	fs.StringVar(&opts.ReadyPin, "ready-pin", "", "READY GPIO name, e.g. GPIO11")
	fs.DurationVar(&opts.OpenTimeout, "open-timeout", 0, "Wait at most this long for READY on open (0 waits forever)")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Use an emulated device instead of hardware")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default $METRIFUL_LOG or info)")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON lines instead of text")
	fs.Usage = func() {
		fmt.Fprintf(stderr, usage, commandList())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		fs.Usage()
		return 2
	}

	level, err := parseLevel(opts.LogLevel, os.Getenv("METRIFUL_LOG"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	e := &env{out: stdout, errOut: stderr, log: log, json: opts.JSON, simulate: opts.Simulate}
	if e.cfg, err = loadConfig(opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cmd.device {
		if err := e.open(ctx); err != nil {
			return fail(stderr, log, err)
		}
		defer e.close()
	}
	if err := cmd.run(ctx, e, fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return fail(stderr, log, err)
	}
	return 0
}

func fail(stderr io.Writer, log *slog.Logger, err error) int {
	log.Debug("command failed", "code", errcode.Of(err))
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func parseLevel(flagValue, envValue string) (slog.Level, error) {
	s := flagValue
	if s == "" {
		s = envValue
	}
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// loadConfig layers flags over the config file over the defaults.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			return cfg, err
		}
	}
	if opts.Bus != "" {
		cfg.Device.Bus = opts.Bus
	}
	if opts.Address != "" {
		a, err := strconv.ParseUint(opts.Address, 0, 16)
		if err != nil {
			return cfg, fmt.Errorf("invalid address %q: %w", opts.Address, err)
		}
		cfg.Device.Address = uint16(a)
	}
	if opts.ReadyPin != "" {
		cfg.Device.ReadyPin = opts.ReadyPin
	}
	if opts.OpenTimeout > 0 {
		cfg.Device.OpenTimeoutMs = int(opts.OpenTimeout / time.Millisecond)
	}
	return cfg, config.Validate(&cfg)
}
