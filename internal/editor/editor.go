// Package editor models the editing surface the suggestion overlay is
// attached to: immutable document snapshots, multi-range selections and
// transactions that change both.
//
// All positions are zero-based byte offsets into the document text.
package editor

import (
	"errors"
	"fmt"
	"sort"
)

// User event tags carried by transactions.
const (
	EventType     = "input.type"
	EventComplete = "input.complete"
	EventDelete   = "delete"
	EventSelect   = "select"
	EventSync     = "sync"
)

// ErrOutOfRange is returned when a change or selection does not fit the document.
var ErrOutOfRange = errors.New("position out of range")

// Snapshot is an immutable view of the full document text.
// Two snapshots are the same document when their text is equal.
type Snapshot struct {
	text string
}

// NewSnapshot wraps text as a snapshot.
func NewSnapshot(text string) Snapshot {
	return Snapshot{text: text}
}

func (s Snapshot) String() string { return s.text }

// Len returns the document length in bytes.
func (s Snapshot) Len() int { return len(s.text) }

// Equal reports whether both snapshots hold the same content.
func (s Snapshot) Equal(other Snapshot) bool { return s.text == other.text }

// Slice returns the text between from and to, clamped to the document.
func (s Snapshot) Slice(from, to int) string {
	from = clamp(from, 0, len(s.text))
	to = clamp(to, from, len(s.text))
	return s.text[from:to]
}

// Range is a selection range. Head is the caret end, Anchor the fixed end.
type Range struct {
	Anchor int
	Head   int
}

// Cursor returns an empty range at pos.
func Cursor(pos int) Range { return Range{Anchor: pos, Head: pos} }

func (r Range) From() int   { return min(r.Anchor, r.Head) }
func (r Range) To() int     { return max(r.Anchor, r.Head) }
func (r Range) Empty() bool { return r.Anchor == r.Head }

// Selection is a set of ranges, one of which is the primary one.
type Selection struct {
	Ranges []Range
	Main   int
}

// Single returns a selection holding one cursor at pos.
func Single(pos int) Selection {
	return Selection{Ranges: []Range{Cursor(pos)}}
}

// Primary returns the main range. An empty selection behaves as a cursor at 0.
func (s Selection) Primary() Range {
	if len(s.Ranges) == 0 {
		return Cursor(0)
	}
	if s.Main < 0 || s.Main >= len(s.Ranges) {
		return s.Ranges[0]
	}
	return s.Ranges[s.Main]
}

// normalize clamps ranges to a document of length n and drops duplicates,
// keeping the primary range primary.
func (s Selection) normalize(n int) Selection {
	if len(s.Ranges) == 0 {
		return Single(0)
	}
	mainIdx := s.Main
	if mainIdx < 0 || mainIdx >= len(s.Ranges) {
		mainIdx = 0
	}
	out := Selection{Ranges: make([]Range, 0, len(s.Ranges))}
	index := make(map[Range]int, len(s.Ranges))
	for i, r := range s.Ranges {
		r = Range{Anchor: clamp(r.Anchor, 0, n), Head: clamp(r.Head, 0, n)}
		j, dup := index[r]
		if !dup {
			j = len(out.Ranges)
			index[r] = j
			out.Ranges = append(out.Ranges, r)
		}
		if i == mainIdx {
			out.Main = j
		}
	}
	return out
}

// Change replaces the text between From and To with Insert.
// From and To refer to the document the transaction starts from.
type Change struct {
	From   int
	To     int
	Insert string
}

func (c Change) noop() bool { return c.From == c.To && c.Insert == "" }

// Transaction describes one update of the editing surface. Effects carry
// out-of-band values (for example a dispatched suggestion) that do not
// touch the text.
type Transaction struct {
	Changes   []Change
	Selection *Selection
	UserEvent string
	Effects   []any
}

// DocChanged reports whether applying the transaction alters the text.
func (t Transaction) DocChanged() bool {
	for _, c := range t.Changes {
		if !c.noop() {
			return true
		}
	}
	return false
}

// State is the document plus the selection.
type State struct {
	Doc       Snapshot
	Selection Selection
}

// NewState returns a state for text with the caret at its end.
func NewState(text string) State {
	return State{Doc: NewSnapshot(text), Selection: Single(len(text))}
}

// Apply returns the state after tr. Changes must not overlap. When tr has no
// explicit selection, the current ranges are mapped through the changes.
func (s State) Apply(tr Transaction) (State, error) {
	changes, err := sortedChanges(tr.Changes, s.Doc.Len())
	if err != nil {
		return s, err
	}

	text := s.Doc.text
	if len(changes) > 0 {
		buf := make([]byte, 0, len(text))
		last := 0
		for _, c := range changes {
			buf = append(buf, text[last:c.From]...)
			buf = append(buf, c.Insert...)
			last = c.To
		}
		buf = append(buf, text[last:]...)
		text = string(buf)
	}

	var sel Selection
	if tr.Selection != nil {
		sel = Selection{Ranges: append([]Range(nil), tr.Selection.Ranges...), Main: tr.Selection.Main}
	} else {
		sel = Selection{Ranges: make([]Range, len(s.Selection.Ranges)), Main: s.Selection.Main}
		for i, r := range s.Selection.Ranges {
			sel.Ranges[i] = Range{
				Anchor: MapPos(r.Anchor, changes, 1),
				Head:   MapPos(r.Head, changes, 1),
			}
		}
	}

	return State{Doc: NewSnapshot(text), Selection: sel.normalize(len(text))}, nil
}

// RangeResult is what a ChangeByRange callback returns for one range:
// the changes to make around it and where the range ends up, expressed in
// the document with only these changes applied.
type RangeResult struct {
	Changes []Change
	Range   Range
}

// ChangeByRange runs fn for every selection range and combines the results
// into one transaction whose selection holds the resulting ranges.
func (s State) ChangeByRange(fn func(r Range, primary bool) RangeResult) Transaction {
	type owned struct {
		Change
		owner int
	}
	results := make([]RangeResult, len(s.Selection.Ranges))
	var all []owned
	for i, r := range s.Selection.Ranges {
		results[i] = fn(r, i == s.Selection.Main)
		for _, c := range results[i].Changes {
			all = append(all, owned{Change: c, owner: i})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].From < all[j].From })

	changes := make([]Change, len(all))
	for i, c := range all {
		changes[i] = c.Change
	}

	sel := Selection{Ranges: make([]Range, len(results)), Main: s.Selection.Main}
	for i, res := range results {
		if len(res.Changes) == 0 {
			sel.Ranges[i] = Range{
				Anchor: MapPos(res.Range.Anchor, changes, -1),
				Head:   MapPos(res.Range.Head, changes, -1),
			}
			continue
		}
		own := res.Changes[0].From
		for _, c := range res.Changes[1:] {
			own = min(own, c.From)
		}
		shift := 0
		for _, c := range all {
			if c.owner != i && c.To <= own {
				shift += len(c.Insert) - (c.To - c.From)
			}
		}
		sel.Ranges[i] = Range{Anchor: res.Range.Anchor + shift, Head: res.Range.Head + shift}
	}

	return Transaction{Changes: changes, Selection: &sel}
}

// MapPos maps pos in the original document through changes (sorted by From).
// assoc decides which side of an insertion at pos the position ends up on:
// negative stays before it, otherwise it moves after it.
func MapPos(pos int, changes []Change, assoc int) int {
	delta := 0
	for _, c := range changes {
		if pos < c.From || (pos == c.From && c.From == c.To && assoc < 0) {
			return pos + delta
		}
		if pos > c.To {
			delta += len(c.Insert) - (c.To - c.From)
			continue
		}
		if assoc < 0 {
			return c.From + delta
		}
		return c.From + delta + len(c.Insert)
	}
	return pos + delta
}

// Diff returns the single change turning old into updated, found by trimming
// their common prefix and suffix.
func Diff(old, updated string) Change {
	limit := min(len(old), len(updated))
	prefix := 0
	for prefix < limit && old[prefix] == updated[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < limit-prefix && old[len(old)-1-suffix] == updated[len(updated)-1-suffix] {
		suffix++
	}
	return Change{
		From:   prefix,
		To:     len(old) - suffix,
		Insert: updated[prefix : len(updated)-suffix],
	}
}

func sortedChanges(in []Change, docLen int) ([]Change, error) {
	changes := make([]Change, 0, len(in))
	for _, c := range in {
		if c.From < 0 || c.To < c.From || c.To > docLen {
			return nil, fmt.Errorf("change [%d,%d) in document of length %d: %w", c.From, c.To, docLen, ErrOutOfRange)
		}
		if !c.noop() {
			changes = append(changes, c)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].From < changes[j].From })
	for i := 1; i < len(changes); i++ {
		if changes[i].From < changes[i-1].To {
			return nil, fmt.Errorf("overlapping changes at %d: %w", changes[i].From, ErrOutOfRange)
		}
	}
	return changes, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
