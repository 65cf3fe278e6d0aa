package world

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrStopped = errors.New("world runner stopped")

type request struct {
	fn   func(*World)
	done chan struct{}
}

// Runner owns a World and drives it from a single goroutine. Every other
// goroutine reaches the world through Do.
type Runner struct {
	w *World

	reqs    chan request
	stop    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	subs    map[int]chan Observation
	nextSub int
}

func NewRunner(w *World) *Runner {
	return &Runner{
		w:       w,
		reqs:    make(chan request, 256),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    map[int]chan Observation{},
	}
}

// Do queues fn for the next tick and waits until it has run.
func (r *Runner) Do(ctx context.Context, fn func(*World)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
}

// Subscribe returns a channel of per-tick observations. Slow subscribers
// miss ticks rather than stalling the loop.
func (r *Runner) Subscribe(buf int) (<-chan Observation, func()) {
	if buf <= 0 {
		buf = 4
	}
	ch := make(chan Observation, buf)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	interval := time.Second / time.Duration(r.w.tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []request
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.reqs:
			pending = append(pending, req)
		case <-ticker.C:
			for _, req := range pending {
				req.fn(r.w)
				close(req.done)
			}
			pending = pending[:0]
			r.w.Step()
			r.publish(r.w.Observe())
		}
	}
}

func (r *Runner) Stop() { close(r.stop) }

func (r *Runner) publish(obs Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- obs:
		default:
		}
	}
}
