package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_InsertMovesCaret(t *testing.T) {
	st := NewState("hello")

	next, err := st.Apply(Transaction{Changes: []Change{{From: 5, To: 5, Insert: " world"}}})
	require.NoError(t, err)

	assert.Equal(t, "hello world", next.Doc.String())
	assert.Equal(t, Cursor(11), next.Selection.Primary())
}

func TestApply_ExplicitSelection(t *testing.T) {
	st := NewState("abc")
	sel := Single(1)

	next, err := st.Apply(Transaction{Selection: &sel})
	require.NoError(t, err)

	assert.Equal(t, "abc", next.Doc.String())
	assert.Equal(t, Cursor(1), next.Selection.Primary())
}

func TestApply_RejectsBadChanges(t *testing.T) {
	st := NewState("abc")

	_, err := st.Apply(Transaction{Changes: []Change{{From: 2, To: 9}}})
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = st.Apply(Transaction{Changes: []Change{{From: 0, To: 2}, {From: 1, To: 3}}})
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestApply_MultipleChangesUseOriginalCoordinates(t *testing.T) {
	st := NewState("a-b-c")

	next, err := st.Apply(Transaction{Changes: []Change{
		{From: 3, To: 4, Insert: "+"},
		{From: 1, To: 2, Insert: "++"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "a++b+c", next.Doc.String())
}

func TestTransaction_DocChanged(t *testing.T) {
	assert.False(t, Transaction{}.DocChanged())
	assert.False(t, Transaction{Changes: []Change{{From: 2, To: 2}}}.DocChanged())
	assert.True(t, Transaction{Changes: []Change{{From: 2, To: 3}}}.DocChanged())
}

func TestMapPos(t *testing.T) {
	changes := []Change{{From: 2, To: 2, Insert: "xx"}, {From: 4, To: 6, Insert: ""}}

	assert.Equal(t, 1, MapPos(1, changes, 1))
	assert.Equal(t, 2, MapPos(2, changes, -1))
	assert.Equal(t, 4, MapPos(2, changes, 1))
	assert.Equal(t, 5, MapPos(3, changes, 1))
	assert.Equal(t, 6, MapPos(5, changes, 1))
	assert.Equal(t, 7, MapPos(7, changes, 1))
}

func TestChangeByRange_ShiftsLaterRanges(t *testing.T) {
	st := State{
		Doc:       NewSnapshot("ab\nab"),
		Selection: Selection{Ranges: []Range{Cursor(2), Cursor(5)}},
	}

	tr := st.ChangeByRange(func(r Range, _ bool) RangeResult {
		return RangeResult{
			Changes: []Change{{From: r.Head, To: r.Head, Insert: "c"}},
			Range:   Cursor(r.Head + 1),
		}
	})

	next, err := st.Apply(tr)
	require.NoError(t, err)
	assert.Equal(t, "abc\nabc", next.Doc.String())
	assert.Equal(t, []Range{Cursor(3), Cursor(7)}, next.Selection.Ranges)
}

func TestSelectionNormalizeDropsDuplicates(t *testing.T) {
	st := NewState("abc")
	sel := Selection{Ranges: []Range{Cursor(1), Cursor(9), Cursor(1)}, Main: 2}

	next, err := st.Apply(Transaction{Selection: &sel})
	require.NoError(t, err)
	assert.Equal(t, []Range{Cursor(1), Cursor(3)}, next.Selection.Ranges)
	assert.Equal(t, 0, next.Selection.Main)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		updated string
		want    Change
	}{
		{"append", "hello", "hello world", Change{From: 5, To: 5, Insert: " world"}},
		{"delete middle", "abcdef", "abef", Change{From: 2, To: 4, Insert: ""}},
		{"replace", "a > 5", "a < 5", Change{From: 2, To: 3, Insert: "<"}},
		{"identical", "same", "same", Change{From: 4, To: 4, Insert: ""}},
		{"repeated chars", "aaa", "aaaa", Change{From: 3, To: 3, Insert: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.updated)
			assert.Equal(t, tt.want, got)

			st, err := NewState(tt.old).Apply(Transaction{Changes: []Change{got}})
			require.NoError(t, err)
			assert.Equal(t, tt.updated, st.Doc.String())
		})
	}
}

func TestSnapshotSliceClamps(t *testing.T) {
	s := NewSnapshot("hello")
	assert.Equal(t, "hel", s.Slice(-4, 3))
	assert.Equal(t, "lo", s.Slice(3, 99))
	assert.Equal(t, "", s.Slice(4, 2))
	assert.True(t, s.Equal(NewSnapshot("hello")))
}
