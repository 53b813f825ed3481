package suggest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FrancescoCarrabino/feelghost/internal/editor"
)

// DefaultDelay is the debounce delay used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// ErrSuperseded settles a scheduled fetch whose timer was cancelled by a
// newer Schedule call, when the overlay has no abort value of its own.
var ErrSuperseded = errors.New("suggestion fetch superseded")

// FetchFunc returns the suggestion for a document state. An empty string
// means no suggestion.
type FetchFunc func(ctx context.Context, st editor.State) (string, error)

// Result is the settled outcome of one scheduled fetch.
type Result struct {
	Text string
	Err  error
}

// Debouncer delays calls to a FetchFunc until no newer call has been
// scheduled for the configured delay. Only the timer is cancellable: a call
// that already started runs to completion.
type Debouncer struct {
	fn       FetchFunc
	delay    time.Duration
	abortErr error

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	abort   func()
	stopped bool
}

// NewDebouncer wraps fn. A negative delay falls back to DefaultDelay; zero
// invokes fn as soon as possible. When abortErr is nil, superseded results
// never settle.
func NewDebouncer(fn FetchFunc, delay time.Duration, abortErr error) *Debouncer {
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Debouncer{fn: fn, delay: delay, abortErr: abortErr}
}

// Delay returns the effective debounce delay.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Schedule arms the timer for st, cancelling any armed timer. The returned
// channel receives exactly one Result, unless the schedule is superseded and
// no abort value is configured.
func (d *Debouncer) Schedule(ctx context.Context, st editor.State) <-chan Result {
	out := make(chan Result, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		if d.abortErr != nil {
			out <- Result{Err: d.abortErr}
		}
		return out
	}

	d.cancelLocked()
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen || d.stopped {
			// Lost the race against a newer Schedule; its cancel already settled out.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.abort = nil
		d.mu.Unlock()

		text, err := d.call(ctx, st)
		out <- Result{Text: text, Err: err}
	})
	d.abort = func() {
		if d.abortErr != nil {
			out <- Result{Err: d.abortErr}
		}
	}
	return out
}

// Stop cancels the armed timer, if any. Later Schedule calls settle
// immediately with the abort value.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.abort != nil {
		d.abort()
		d.abort = nil
	}
}

func (d *Debouncer) call(ctx context.Context, st editor.State) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("suggestion fetch panicked: %v", r)
		}
	}()
	return d.fn(ctx, st)
}
