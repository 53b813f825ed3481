package suggest

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FrancescoCarrabino/feelghost/internal/editor"
)

// Surface draws annotations on the host editor. A nil annotation clears the
// ghost text. Calls are made outside the overlay's lock and in order.
type Surface interface {
	RenderAnnotation(a *Annotation)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(a *Annotation)

func (f SurfaceFunc) RenderAnnotation(a *Annotation) { f(a) }

// Option configures an Overlay.
type Option func(*Overlay)

// WithDelay sets the debounce delay. Negative values are ignored.
func WithDelay(d time.Duration) Option {
	return func(o *Overlay) {
		if d < 0 {
			log.Printf("[FG][suggest] Ignoring negative delay %s, using %s", d, o.delay)
			return
		}
		o.delay = d
	}
}

// WithAbortError sets the value superseded fetches settle with.
func WithAbortError(err error) Option {
	return func(o *Overlay) {
		if err != nil {
			o.abortErr = err
		}
	}
}

// WithSurface sets where annotations are drawn.
func WithSurface(s Surface) Option {
	return func(o *Overlay) { o.surface = s }
}

// WithInitialState sets the document and selection the overlay starts from.
func WithInitialState(st editor.State) Option {
	return func(o *Overlay) { o.state = st }
}

// WithAcceptKey changes the key that commits a suggestion (default "tab").
func WithAcceptKey(key string) Option {
	return func(o *Overlay) {
		if key != "" {
			o.acceptKey = key
		}
	}
}

// Overlay attaches inline suggestions to one editor. It mirrors the editor
// state, fetches a suggestion after each user edit and keeps at most one
// suggestion, valid only for the current document.
type Overlay struct {
	delay     time.Duration
	abortErr  error
	acceptKey string
	surface   Surface
	debouncer *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      editor.State
	suggestion State
	annotation *Annotation
	seq        uint64
	closed     bool

	renderMu     sync.Mutex
	renderedSeq  uint64
	lastRendered *Annotation
}

// New returns an overlay that asks fetch for suggestions.
func New(fetch FetchFunc, opts ...Option) *Overlay {
	o := &Overlay{
		delay:     DefaultDelay,
		abortErr:  ErrSuperseded,
		acceptKey: "tab",
		state:     editor.NewState(""),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.debouncer = NewDebouncer(fetch, o.delay, o.abortErr)
	return o
}

type applied struct {
	annotation *Annotation
	seq        uint64
}

// ApplyTransaction updates the mirrored editor state. Document changes reset
// the suggestion and schedule a new fetch; a Pending effect becomes the
// suggestion when it matches the resulting document.
func (o *Overlay) ApplyTransaction(tr editor.Transaction) error {
	o.mu.Lock()
	res, err := o.applyLocked(tr)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.after(res)
	return nil
}

// OnKey handles a key press. For the accept key with an active suggestion
// it commits the suggestion and returns the transaction it applied, which
// the host must mirror. Otherwise it returns false and the host should run
// its default key behaviour.
func (o *Overlay) OnKey(key string) (*editor.Transaction, bool) {
	if !strings.EqualFold(key, o.acceptKey) {
		return nil, false
	}

	o.mu.Lock()
	tr, ok := Accept(o.state, o.suggestion)
	if !ok {
		o.mu.Unlock()
		return nil, false
	}
	id := o.suggestion.ID()
	res, err := o.applyLocked(tr)
	o.mu.Unlock()
	if err != nil {
		log.Printf("[FG][suggest] Failed to apply accepted suggestion %s: %v", id, err)
		return nil, false
	}

	log.Printf("[FG][suggest] Accepted suggestion %s", id)
	o.after(res)
	return &tr, true
}

// State returns the mirrored editor state.
func (o *Overlay) State() editor.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Suggestion returns the current suggestion state.
func (o *Overlay) Suggestion() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suggestion
}

// Annotation returns the current ghost-text annotation, or nil.
func (o *Overlay) Annotation() *Annotation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.annotation == nil {
		return nil
	}
	a := *o.annotation
	return &a
}

// Close stops the armed timer and cancels fetches still running. Results
// arriving afterwards are dropped.
func (o *Overlay) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.debouncer.Stop()
	o.cancel()
}

func (o *Overlay) applyLocked(tr editor.Transaction) (applied, error) {
	next, err := o.state.Apply(tr)
	if err != nil {
		return applied{}, err
	}
	if p, ok := pendingFrom(tr); ok && !p.Doc.Equal(next.Doc) {
		log.Printf("[FG][suggest] Dropping stale suggestion %s", p.ID)
	}
	o.state = next
	o.suggestion = Update(o.suggestion, tr, next.Doc)
	o.annotation = Render(o.suggestion, next.Selection.Primary().Head)
	o.seq++
	if tr.DocChanged() && !o.closed {
		o.trigger(next)
	}
	return applied{annotation: o.annotation, seq: o.seq}, nil
}

// after runs outside the lock; seq keeps renders in transaction order.
func (o *Overlay) after(res applied) {
	if o.surface == nil {
		return
	}
	o.renderMu.Lock()
	defer o.renderMu.Unlock()
	if res.seq <= o.renderedSeq {
		return
	}
	o.renderedSeq = res.seq
	if res.annotation.equal(o.lastRendered) {
		return
	}
	o.lastRendered = res.annotation
	o.surface.RenderAnnotation(res.annotation)
}

// trigger schedules a fetch for st. It runs under o.mu so schedules follow
// transaction order. Each edit costs one debounce cycle; the result comes
// back through ApplyTransaction like any other update.
func (o *Overlay) trigger(st editor.State) {
	ch := o.debouncer.Schedule(o.ctx, st)
	go o.await(st.Doc, ch)
}

func (o *Overlay) await(doc editor.Snapshot, ch <-chan Result) {
	var res Result
	select {
	case res = <-ch:
	case <-o.ctx.Done():
		return
	}

	switch {
	case errors.Is(res.Err, o.abortErr):
		return
	case res.Err != nil:
		if o.ctx.Err() == nil {
			log.Printf("[FG][suggest] Fetch failed, no suggestion: %v", res.Err)
		}
		return
	case res.Text == "":
		return
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}

	p := Pending{ID: uuid.NewString(), Text: res.Text, Doc: doc}
	log.Printf("[FG][suggest] Dispatching suggestion %s (%d bytes)", p.ID, len(p.Text))
	if err := o.ApplyTransaction(editor.Transaction{Effects: []any{p}}); err != nil {
		log.Printf("[FG][suggest] Failed to dispatch suggestion %s: %v", p.ID, err)
	}
}
