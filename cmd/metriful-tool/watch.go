package main

import (
	"context"
	"fmt"
	"iter"
	"time"

	"metriful-go/drivers/metriful"
	"metriful-go/internal/config"
	"metriful-go/internal/record"
)

// recorder receives every sample of a watch run.
type recorder interface {
	Write(metric string, r metriful.Reading) error
	WriteError(metric string, at time.Time, err error) error
}

type watchOptions struct {
	strategy config.Strategy
	period   metriful.CyclePeriod
	interval time.Duration
	count    int
	output   string
}

func runWatch(ctx context.Context, e *env, args []string) error {
	return watch(ctx, e, "watch", args)
}

func runRecord(ctx context.Context, e *env, args []string) error {
	return watch(ctx, e, "record", args)
}

func watch(ctx context.Context, e *env, name string, args []string) error {
	fs := newFlagSet(e, name, "[metric...]")
	rc := e.cfg.Read
	opts := watchOptions{period: rc.Period, output: e.cfg.Record.Path}
	strategy := fs.String("strategy", string(rc.Strategy), "Read strategy: interval, cycle, background")
	fs.TextVar(&opts.period, "period", rc.Period, "Cycle period: 3s, 100s, 300s")
	fs.DurationVar(&opts.interval, "interval", rc.Interval(), "Interval strategy period")
	fs.IntVar(&opts.count, "count", 0, "Stop after this many samples (0 runs until interrupted)")
	if name == "record" {
		fs.StringVar(&opts.output, "o", opts.output, "Recording file")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.strategy = config.Strategy(*strategy)

	descs, err := resolve(fs.Args(), rc.Metrics)
	if err != nil {
		return err
	}

	var rec recorder
	if name == "record" {
		w, err := record.Create(opts.output, record.NewHeader(e.now(), e.s.Address(), string(opts.strategy), names(descs)))
		if err != nil {
			return err
		}
		defer w.Close()
		e.log.Info("recording", "path", opts.output, "run_id", w.Header().RunID)
		rec = w
	}

	e.log.Info("watching", "strategy", opts.strategy, "metrics", names(descs))
	read := readSet(descs)
	switch opts.strategy {
	case config.StrategyInterval:
		if opts.interval <= 0 {
			return fmt.Errorf("%s: -interval must be positive", name)
		}
		if _, err := e.s.SetMode(ctx, metriful.Standby, 0); err != nil {
			return err
		}
		return e.consume(ctx, metriful.NewIntervalReader(e.s, read, opts.interval).All(ctx), opts.count, rec)
	case config.StrategyCycle:
		return e.consume(ctx, metriful.NewCycleReader(e.s, read, opts.period).All(ctx), opts.count, rec)
	case config.StrategyBackground:
		return e.background(ctx, read, opts, rec)
	}
	return fmt.Errorf("%s: unknown strategy %q", name, opts.strategy)
}

// consume drains a pull strategy. Cancellation of ctx ends the run cleanly.
func (e *env) consume(ctx context.Context, seq iter.Seq2[[]sample, error], count int, rec recorder) error {
	n := 0
	for ss, err := range seq {
		if err != nil {
			return e.finish(ctx, err, rec)
		}
		if err := e.emit(ss, rec); err != nil {
			return err
		}
		if n++; count > 0 && n >= count {
			return nil
		}
	}
	return nil
}

// background runs the strategy on its own goroutine and takes the Session
// back when done.
func (e *env) background(ctx context.Context, read metriful.ReadFunc[[]sample], opts watchOptions, rec recorder) error {
	ctx, cancel := context.WithCancel(ctx)
	b := metriful.StartBackground(ctx, e.s, read, opts.period)
	defer func() {
		b.Stop()
		e.s = b.Join()
		cancel()
		e.log.Debug("background reader joined")
	}()

	n := 0
	for it := range b.Readings() {
		if it.Err != nil {
			return e.finish(ctx, it.Err, rec)
		}
		if err := e.emit(it.Value, rec); err != nil {
			return err
		}
		if n++; opts.count > 0 && n >= opts.count {
			return nil
		}
	}
	return ctx.Err()
}

func (e *env) finish(ctx context.Context, err error, rec recorder) error {
	if ctx.Err() != nil {
		e.log.Debug("watch interrupted")
		return nil
	}
	if rec != nil {
		if werr := rec.WriteError("", e.now(), err); werr != nil {
			e.log.Warn("record error", "err", werr)
		}
	}
	return err
}

func runReplay(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "replay", "[file]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := e.cfg.Record.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	r, err := record.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	if e.json {
		if err := e.print(h); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(e.out, "run %s started %s address 0x%02X strategy %s metrics %v\n",
			h.RunID, h.Started.Format(time.RFC3339), h.Address, h.Strategy, h.Metrics)
	}
	for rec, err := range r.All() {
		if err != nil {
			return err
		}
		if e.json {
			err = e.print(rec)
		} else if rec.Err != "" {
			_, err = fmt.Fprintf(e.out, "%s error: %s\n", rec.Time.Format(time.RFC3339), rec.Err)
		} else {
			_, err = fmt.Fprintf(e.out, "%s %-22s %v %s\n", rec.Time.Format(time.RFC3339), rec.Metric, rec.Value, rec.Symbol)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
