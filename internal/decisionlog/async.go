package decisionlog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultAsyncBuffer       = 1024
	DefaultAsyncWriteTimeout = 2 * time.Second
)

type AsyncOptions struct {
	Buffer       int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Async queues decisions for a slower Store and writes them from a single
// goroutine, so the request path never waits on the backend. When the queue
// is full the event is dropped and counted.
type Async struct {
	store   Store
	eventCh chan Event
	opts    AsyncOptions

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewAsync(store Store, opts AsyncOptions) *Async {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultAsyncBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultAsyncWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Async{
		store:   store,
		eventCh: make(chan Event, opts.Buffer),
		opts:    opts,
	}
}

// Record enqueues ev without blocking. It never fails; overflow shows up in
// Dropped.
func (a *Async) Record(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case a.eventCh <- ev:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Run writes queued events until ctx is cancelled, then flushes what is
// still buffered before returning.
func (a *Async) Run(ctx context.Context) {
	a.opts.Logger.Info("Decision log writer started")
	defer a.opts.Logger.Info("Decision log writer stopped")

	for {
		select {
		case ev := <-a.eventCh:
			a.write(ev)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *Async) drain() {
	for {
		select {
		case ev := <-a.eventCh:
			a.write(ev)
		default:
			return
		}
	}
}

func (a *Async) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
	defer cancel()

	if err := a.store.Record(ctx, ev); err != nil {
		a.failed.Add(1)
		a.opts.Logger.Warn("Failed to write policy decision",
			slog.String("policy", ev.Policy),
			slog.Any("error", err))
	}
}

// Store returns the wrapped store.
func (a *Async) Store() Store {
	return a.store
}

func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failed counts writes the backend rejected.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}

func (a *Async) Pending() int {
	return len(a.eventCh)
}
