package suggest

import "github.com/FrancescoCarrabino/feelghost/internal/editor"

// Accept builds the transaction that commits s into st. The suggestion is
// inserted at the primary caret, which moves to its end. Every other empty
// range gets the same insertion when the text before it matches the text
// before the primary caret over the suggestion's length; other ranges are
// left alone. The transaction carries an Accepted effect naming the
// suggestion. ok is false when there is nothing to accept.
func Accept(st editor.State, s State) (tr editor.Transaction, ok bool) {
	if !s.Active() || s.Text() == "" {
		return editor.Transaction{}, false
	}

	text := s.Text()
	n := len(text)
	head := st.Selection.Primary().Head
	before := st.Doc.Slice(head-n, head)

	tr = st.ChangeByRange(func(r editor.Range, primary bool) editor.RangeResult {
		if primary {
			return editor.RangeResult{
				Changes: []editor.Change{{From: head, To: head, Insert: text}},
				Range:   editor.Cursor(head + n),
			}
		}
		at := r.From()
		if !r.Empty() || st.Doc.Slice(at-n, at) != before {
			return editor.RangeResult{Range: r}
		}
		return editor.RangeResult{
			Changes: []editor.Change{{From: at, To: at, Insert: text}},
			Range:   editor.Cursor(at + n),
		}
	})
	tr.UserEvent = editor.EventComplete
	tr.Effects = append(tr.Effects, Accepted{ID: s.ID()})
	return tr, true
}
