package metriful

import (
	"context"
	"iter"
	"time"

	"metriful-go/x/timex"
)

// Item is one step of a read strategy: a value or the error that ended it.
type Item[T any] struct {
	Value T
	Err   error
}

// stepper is the shared termination rule: the first error is yielded once,
// after which the sequence stays exhausted.
type stepper[T any] struct {
	done bool
	step func(ctx context.Context) (T, error)
}

func (p *stepper[T]) next(ctx context.Context) (Item[T], bool) {
	if p.done {
		return Item[T]{}, false
	}
	v, err := p.step(ctx)
	if err != nil {
		p.done = true
		return Item[T]{Err: err}, true
	}
	return Item[T]{Value: v}, true
}

func (p *stepper[T]) all(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			it, ok := p.next(ctx)
			if !ok || !yield(it.Value, it.Err) {
				return
			}
		}
	}
}

// IntervalReader takes on-demand measurements in Standby roughly every
// interval. The ~550 ms acquisition is absorbed into the interval when the
// interval is longer. The Session must already have a cached Standby
// status (see SetMode).
type IntervalReader[T any] struct {
	s        *Session
	read     ReadFunc[T]
	interval time.Duration
	last     time.Time
	p        stepper[T]
}

// NewIntervalReader returns an interval strategy for read on s.
//
//	r := metriful.NewIntervalReader(s, metriful.Temperature.Reader(), 5*time.Second)
func NewIntervalReader[T any](s *Session, read ReadFunc[T], interval time.Duration) *IntervalReader[T] {
	r := &IntervalReader[T]{s: s, read: read, interval: interval}
	r.p.step = r.step
	return r
}

func (r *IntervalReader[T]) step(ctx context.Context) (T, error) {
	var zero T
	if err := r.s.WaitForReady(ctx, 0); err != nil {
		return zero, err
	}
	if !r.last.IsZero() {
		r.s.clock.Sleep(timex.Remaining(r.s.clock, r.last, r.interval))
	}
	r.last = r.s.clock.Now()
	if err := r.s.ExecuteMeasurement(); err != nil {
		return zero, err
	}
	if err := r.s.WaitForReady(ctx, 0); err != nil {
		return zero, err
	}
	return r.read(r.s)
}

// Next produces the next item. ok is false once the reader is exhausted.
func (r *IntervalReader[T]) Next(ctx context.Context) (it Item[T], ok bool) { return r.p.next(ctx) }

// All ranges over the remaining items.
func (r *IntervalReader[T]) All(ctx context.Context) iter.Seq2[T, error] { return r.p.all(ctx) }

// CycleReader consumes the device's autonomous cycle. The first step
// switches the Session to Cycle(period) and reads at once; later steps wait
// for the next measurement to start and finish. Callers must ask for the
// next item before the current cycle ends or the device skips it; nothing
// is buffered.
type CycleReader[T any] struct {
	s       *Session
	read    ReadFunc[T]
	period  CyclePeriod
	started bool
	p       stepper[T]
}

// NewCycleReader returns a cycle strategy for read on s.
func NewCycleReader[T any](s *Session, read ReadFunc[T], period CyclePeriod) *CycleReader[T] {
	r := &CycleReader[T]{s: s, read: read, period: period}
	r.p.step = r.step
	return r
}

func (r *CycleReader[T]) step(ctx context.Context) (T, error) {
	var zero T
	if !r.started {
		if _, err := r.s.SetMode(ctx, Cycle(r.period), 0); err != nil {
			return zero, err
		}
		r.started = true
		return r.read(r.s)
	}
	if err := r.s.WaitForNotReady(ctx, 0); err != nil {
		return zero, err
	}
	if err := r.s.WaitForReady(ctx, 0); err != nil {
		return zero, err
	}
	return r.read(r.s)
}

// Next produces the next item. ok is false once the reader is exhausted.
func (r *CycleReader[T]) Next(ctx context.Context) (it Item[T], ok bool) { return r.p.next(ctx) }

// All ranges over the remaining items.
func (r *CycleReader[T]) All(ctx context.Context) iter.Seq2[T, error] { return r.p.all(ctx) }

// Period returns the cycle period the reader drives.
func (r *CycleReader[T]) Period() CyclePeriod { return r.period }
