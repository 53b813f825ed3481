// Package suggest implements inline ghost-text suggestions on top of the
// editor model: a debounced fetch triggered by document edits, a state
// machine that only accepts results for the current document, a renderer
// that places the suggestion at the caret and a key handler that commits it.
package suggest

import "github.com/FrancescoCarrabino/feelghost/internal/editor"

// Pending is a fetched suggestion on its way into the state, bound to the
// document it was computed for.
type Pending struct {
	ID   string
	Text string
	Doc  editor.Snapshot
}

// Accepted is the effect Accept attaches to the transaction that commits a
// suggestion.
type Accepted struct {
	ID string
}

// AcceptedID returns the ID of the suggestion tr commits, if it commits one.
func AcceptedID(tr editor.Transaction) (string, bool) {
	for _, e := range tr.Effects {
		if a, ok := e.(Accepted); ok {
			return a.ID, true
		}
	}
	return "", false
}

// State is the suggestion state of one editor. The zero value is Idle.
type State struct {
	active bool
	id     string
	text   string
	doc    editor.Snapshot
}

// Active reports whether a suggestion is pending acceptance.
func (s State) Active() bool { return s.active }

// Text returns the suggestion, or "" when idle.
func (s State) Text() string { return s.text }

// ID returns the identifier of the dispatch that produced the suggestion.
func (s State) ID() string { return s.id }

// Doc returns the document the suggestion is bound to.
func (s State) Doc() editor.Snapshot { return s.doc }

// Update computes the state after tr produced doc.
//
//	dispatch for doc            -> Active
//	dispatch for another doc    -> Idle (stale result)
//	document change, no dispatch -> Idle
//	anything else               -> unchanged
func Update(prev State, tr editor.Transaction, doc editor.Snapshot) State {
	if p, ok := pendingFrom(tr); ok {
		if p.Text != "" && p.Doc.Equal(doc) {
			return State{active: true, id: p.ID, text: p.Text, doc: doc}
		}
		return State{}
	}
	if tr.DocChanged() {
		return State{}
	}
	return prev
}

func pendingFrom(tr editor.Transaction) (Pending, bool) {
	for _, e := range tr.Effects {
		switch p := e.(type) {
		case Pending:
			return p, true
		case *Pending:
			if p != nil {
				return *p, true
			}
		}
	}
	return Pending{}, false
}
