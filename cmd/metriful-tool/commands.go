package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"metriful-go/drivers/metriful"
	"metriful-go/drivers/metriful/sim"
	"metriful-go/internal/config"
	"metriful-go/internal/platform"
	"metriful-go/x/timex"
)

// newClock is the clock of simulated devices; tests swap in a fake.
var newClock = func() timex.Clock { return timex.System }

// env is what a command runs against. s is nil for commands that do not
// need the device.
type env struct {
	cfg      config.Config
	out      io.Writer
	errOut   io.Writer
	log      *slog.Logger
	json     bool
	simulate bool

	clock timex.Clock
	s     *metriful.Session
	dev   *sim.Device // set when simulating
}

func (e *env) open(ctx context.Context) error {
	if e.errOut == nil {
		e.errOut = e.out
	}
	if !e.simulate {
		s, err := platform.Open(ctx, e.cfg.Device, e.log)
		if err != nil {
			return err
		}
		e.s, e.clock = s, timex.System
		return nil
	}
	e.clock = newClock()
	s, dev, err := platform.Simulated(ctx, e.cfg.Device, e.clock, e.log)
	if err != nil {
		return err
	}
	e.s, e.dev = s, dev
	return nil
}

func (e *env) close() {
	if e.s != nil {
		if err := e.s.Close(); err != nil {
			e.log.Warn("close device", "err", err)
		}
	}
}

func (e *env) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

// print writes v as one JSON line or as its text form.
func (e *env) print(v any) error {
	if e.json {
		return json.NewEncoder(e.out).Encode(v)
	}
	_, err := fmt.Fprintln(e.out, v)
	return err
}

type command struct {
	summary string
	device  bool
	run     func(ctx context.Context, e *env, args []string) error
}

// commands is filled in init: the shell refers back to it.
var commands map[string]command

var commandOrder = []string{"status", "reset", "mode", "read", "clear", "watch", "record", "replay", "metrics", "shell"}

func init() {
	commands = map[string]command{
		"status":  {"Print the device status", true, runStatus},
		"reset":   {"Reset the device and print the fresh status", true, runReset},
		"mode":    {"Switch operational mode: standby | cycle:<3s|100s|300s>", true, runMode},
		"read":    {"Read metrics once", true, runRead},
		"clear":   {"Clear a latched interrupt: light | sound", true, runClear},
		"watch":   {"Read metrics continuously", true, runWatch},
		"record":  {"Read metrics continuously into a CBOR recording", true, runRecord},
		"replay":  {"Print a recording", false, runReplay},
		"metrics": {"List known metric names", false, runMetrics},
		"shell":   {"Interactive session", true, runShell},
	}
}

func commandList() string {
	var b strings.Builder
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "  %-8s  %s\n", name, commands[name].summary)
	}
	return b.String()
}

func newFlagSet(e *env, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	out := e.errOut
	if out == nil {
		out = e.out
	}
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "metriful-tool %s - %s\n\nUsage:\n  metriful-tool %s [flags] %s\n\n",
			name, commands[name].summary, name, args)
		fs.PrintDefaults()
	}
	return fs
}

func runStatus(_ context.Context, e *env, args []string) error {
	if err := newFlagSet(e, "status", "").Parse(args); err != nil {
		return err
	}
	st, err := e.s.ReadStatus()
	if err != nil {
		return err
	}
	return e.print(st)
}

func runReset(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet(e, "reset", "").Parse(args); err != nil {
		return err
	}
	st, err := e.s.Reset(ctx)
	if err != nil {
		return err
	}
	return e.print(st)
}

func runMode(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "mode", "<standby|cycle:PERIOD>")
	timeout := fs.Duration("timeout", 10*time.Second, "Bound on each READY wait (0 waits forever)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("mode: exactly one mode required")
	}
	m, err := metriful.ParseOperationalMode(fs.Arg(0))
	if err != nil {
		return err
	}
	st, err := e.s.SetMode(ctx, m, *timeout)
	if err != nil {
		return err
	}
	return e.print(st)
}

func runRead(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "read", "[metric...]")
	measure := fs.Bool("measure", true, "In standby, trigger a measurement before reading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	descs, err := resolve(fs.Args(), e.cfg.Read.Metrics)
	if err != nil {
		return err
	}
	st, ok := e.s.Status()
	if !ok {
		if st, err = e.s.ReadStatus(); err != nil {
			return err
		}
	}
	if *measure && st.Mode.IsStandby() {
		if err := e.s.ExecuteMeasurement(); err != nil {
			return err
		}
	}
	if err := e.s.WaitForReady(ctx, 0); err != nil {
		return err
	}
	ss, err := readSet(descs)(e.s)
	if err != nil {
		return err
	}
	return e.emit(ss, nil)
}

func runClear(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "clear", "<light|sound>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch fs.Arg(0) {
	case "light":
		return e.s.ClearLightInterrupt()
	case "sound":
		return e.s.ClearSoundInterrupt()
	}
	fs.Usage()
	return fmt.Errorf("clear: want light or sound")
}

func runMetrics(_ context.Context, e *env, args []string) error {
	if err := newFlagSet(e, "metrics", "").Parse(args); err != nil {
		return err
	}
	ds := metriful.Descriptors()
	if e.json {
		for _, d := range ds {
			if err := e.print(struct {
				Name     string            `json:"name"`
				Register byte              `json:"register"`
				Unit     metriful.UnitInfo `json:"unit"`
			}{d.Name, d.Register, d.Unit}); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREGISTER\tUNIT\tSYMBOL")
	for _, d := range ds {
		reg := "-"
		if d.Register != 0 {
			reg = fmt.Sprintf("0x%02X", d.Register)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, reg, d.Unit.Name, d.Unit.Symbol)
	}
	return tw.Flush()
}

// ---------------- Samples ----------------

// sample is one named reading of a metric set.
type sample struct {
	Name    string
	Reading metriful.Reading
}

func resolve(names, fallback []string) ([]metriful.Descriptor, error) {
	if len(names) == 0 {
		names = fallback
	}
	out := make([]metriful.Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := metriful.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown metric %q (see metriful-tool metrics)", n)
		}
		out = append(out, d)
	}
	return out, nil
}

// readSet reads every descriptor in turn as one strategy step.
func readSet(ds []metriful.Descriptor) metriful.ReadFunc[[]sample] {
	return func(s *metriful.Session) ([]sample, error) {
		out := make([]sample, 0, len(ds))
		for _, d := range ds {
			r, err := d.Read(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.Name, err)
			}
			out = append(out, sample{d.Name, r})
		}
		return out, nil
	}
}

type sampleJSON struct {
	Metric string            `json:"metric"`
	Time   time.Time         `json:"time"`
	Unit   metriful.UnitInfo `json:"unit"`
	Value  any               `json:"value"`
}

// emit prints ss and appends them to rec when it is set.
func (e *env) emit(ss []sample, rec recorder) error {
	for _, s := range ss {
		var err error
		if e.json {
			err = e.print(sampleJSON{s.Name, s.Reading.Timestamp(), s.Reading.UnitInfo(), s.Reading.Any()})
		} else {
			_, err = fmt.Fprintf(e.out, "%s %-22s %s\n", s.Reading.Timestamp().Format(time.RFC3339), s.Name, s.Reading)
		}
		if err != nil {
			return err
		}
		if rec != nil {
			if err := rec.Write(s.Name, s.Reading); err != nil {
				return err
			}
		}
	}
	return nil
}

func names(ds []metriful.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}
