package suggest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrancescoCarrabino/feelghost/internal/editor"
)

// recordingFetch counts invocations and remembers the documents it saw.
type recordingFetch struct {
	mu    sync.Mutex
	docs  []string
	reply func(doc string) (string, error)
	lag   time.Duration
}

func (r *recordingFetch) fetch(ctx context.Context, st editor.State) (string, error) {
	r.mu.Lock()
	r.docs = append(r.docs, st.Doc.String())
	r.mu.Unlock()
	if r.lag > 0 {
		time.Sleep(r.lag)
	}
	if r.reply == nil {
		return "", nil
	}
	return r.reply(st.Doc.String())
}

func (r *recordingFetch) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.docs...)
}

func waitResult(t *testing.T, ch <-chan Result, within time.Duration) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(within):
		t.Fatalf("no result within %s", within)
		return Result{}
	}
}

func TestDebouncer_CoalescesWithinWindow(t *testing.T) {
	rec := &recordingFetch{reply: func(doc string) (string, error) { return doc + "!", nil }}
	d := NewDebouncer(rec.fetch, 50*time.Millisecond, nil)

	first := d.Schedule(context.Background(), editor.NewState("a"))
	second := d.Schedule(context.Background(), editor.NewState("ab"))

	res := waitResult(t, second, time.Second)
	require.NoError(t, res.Err)
	assert.Equal(t, "ab!", res.Text)
	assert.Equal(t, []string{"ab"}, rec.calls())

	select {
	case r := <-first:
		t.Fatalf("superseded schedule settled without abort value: %+v", r)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDebouncer_SupersededRejectsWithAbortValue(t *testing.T) {
	abort := errors.New("aborted")
	rec := &recordingFetch{}
	d := NewDebouncer(rec.fetch, 50*time.Millisecond, abort)

	first := d.Schedule(context.Background(), editor.NewState("doc"))
	d.Schedule(context.Background(), editor.NewState("doc2"))

	res := waitResult(t, first, 10*time.Millisecond)
	assert.ErrorIs(t, res.Err, abort)

	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"doc2"}, rec.calls())
}

func TestDebouncer_StartedCallIsNotCancelled(t *testing.T) {
	rec := &recordingFetch{
		lag:   40 * time.Millisecond,
		reply: func(doc string) (string, error) { return "for " + doc, nil },
	}
	d := NewDebouncer(rec.fetch, 5*time.Millisecond, ErrSuperseded)

	first := d.Schedule(context.Background(), editor.NewState("one"))
	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, time.Millisecond)

	second := d.Schedule(context.Background(), editor.NewState("two"))

	assert.Equal(t, "for one", waitResult(t, first, time.Second).Text)
	assert.Equal(t, "for two", waitResult(t, second, time.Second).Text)
}

func TestDebouncer_ZeroDelayLastCallWins(t *testing.T) {
	rec := &recordingFetch{reply: func(doc string) (string, error) { return doc, nil }}
	d := NewDebouncer(rec.fetch, 0, ErrSuperseded)

	var chans []<-chan Result
	for _, doc := range []string{"a", "b", "c"} {
		chans = append(chans, d.Schedule(context.Background(), editor.NewState(doc)))
	}

	last := waitResult(t, chans[2], time.Second)
	assert.Equal(t, "c", last.Text)
	for _, ch := range chans[:2] {
		res := waitResult(t, ch, time.Second)
		if res.Err == nil {
			continue // already started before the next schedule
		}
		assert.ErrorIs(t, res.Err, ErrSuperseded)
	}
}

func TestDebouncer_PanicBecomesError(t *testing.T) {
	d := NewDebouncer(func(context.Context, editor.State) (string, error) {
		panic("model exploded")
	}, 0, nil)

	res := waitResult(t, d.Schedule(context.Background(), editor.NewState("x")), time.Second)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "model exploded")
}

func TestDebouncer_StopCancelsArmedTimer(t *testing.T) {
	rec := &recordingFetch{}
	d := NewDebouncer(rec.fetch, 20*time.Millisecond, ErrSuperseded)

	ch := d.Schedule(context.Background(), editor.NewState("x"))
	d.Stop()

	assert.ErrorIs(t, waitResult(t, ch, 10*time.Millisecond).Err, ErrSuperseded)
	assert.ErrorIs(t, waitResult(t, d.Schedule(context.Background(), editor.NewState("y")), 10*time.Millisecond).Err, ErrSuperseded)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.calls())
}

func TestNewDebouncer_NegativeDelayUsesDefault(t *testing.T) {
	d := NewDebouncer(func(context.Context, editor.State) (string, error) { return "", nil }, -1, nil)
	assert.Equal(t, DefaultDelay, d.Delay())
}
