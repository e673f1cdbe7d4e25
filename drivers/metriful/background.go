package metriful

import (
	"context"
	"sync"
)

// Background runs a CycleReader on its own goroutine and republishes each
// item on Readings. It owns the Session until Join.
type Background[T any] struct {
	out    chan Item[T]
	stop   chan struct{}
	done   chan struct{} // loop ended
	quit   chan struct{} // tells pump to drop the queue
	pumped chan struct{} // pump ended

	stopOnce sync.Once
	joinOnce sync.Once
	s        *Session
}

// StartBackground moves s into a background cycle reader. Every operation
// on s fails with ErrMoved from here on; Join returns the live Session.
//
// Readings is unbounded: items queue until they are received. The loop ends
// after the first error item, after Stop, or when ctx is done. Cancelling
// ctx or calling Join drops anything still queued; otherwise Readings is
// closed once the loop has ended and the queue is drained.
func StartBackground[T any](ctx context.Context, s *Session, read ReadFunc[T], period CyclePeriod) *Background[T] {
	b := &Background[T]{
		out:    make(chan Item[T]),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		pumped: make(chan struct{}),
		s:      s.move(),
	}
	in := make(chan Item[T])
	go b.loop(ctx, in, read, period)
	go b.pump(ctx, in)
	return b
}

func (b *Background[T]) loop(ctx context.Context, in chan<- Item[T], read ReadFunc[T], period CyclePeriod) {
	defer close(b.done)
	defer close(in)

	r := NewCycleReader(b.s, read, period)
	log := b.s.log.With("period", period.String())
	log.Debug("background reader started")
	for {
		select {
		case <-b.stop:
			log.Debug("background reader stopped")
			return
		default:
		}
		it, ok := r.Next(ctx)
		if !ok || ctx.Err() != nil {
			return
		}
		select {
		case in <- it:
		case <-ctx.Done():
			return
		}
		if it.Err != nil {
			log.Debug("background reader ended", "err", it.Err)
			return
		}
	}
}

// pump forwards in to b.out through an unbounded queue.
func (b *Background[T]) pump(ctx context.Context, in <-chan Item[T]) {
	defer close(b.pumped)
	defer close(b.out)
	var queue []Item[T]
	for in != nil || len(queue) > 0 {
		var send chan<- Item[T]
		var head Item[T]
		if len(queue) > 0 {
			send, head = b.out, queue[0]
		}
		select {
		case it, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, it)
		case send <- head:
			queue[0] = Item[T]{}
			queue = queue[1:]
		case <-ctx.Done():
			return
		case <-b.quit:
			return
		}
	}
}

// Readings returns the item stream in production order.
func (b *Background[T]) Readings() <-chan Item[T] { return b.out }

// Stop asks the loop to end before its next iteration. An in-flight wait is
// not interrupted, so the loop may take up to one cycle period to notice.
func (b *Background[T]) Stop() { b.stopOnce.Do(func() { close(b.stop) }) }

// Done is closed when the loop has ended.
func (b *Background[T]) Done() <-chan struct{} { return b.done }

// Join waits for the loop to end, drops any readings not yet received and
// hands the Session back. Readings is closed when Join returns. Only the
// first call returns the Session; later or concurrent calls return nil.
func (b *Background[T]) Join() *Session {
	var s *Session
	b.joinOnce.Do(func() {
		<-b.done
		close(b.quit)
		<-b.pumped
		s, b.s = b.s, nil
	})
	return s
}
