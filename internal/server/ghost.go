package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/FrancescoCarrabino/feelghost/internal/editor"
	"github.com/FrancescoCarrabino/feelghost/internal/lsp"
	"github.com/FrancescoCarrabino/feelghost/internal/position"
	"github.com/FrancescoCarrabino/feelghost/internal/suggest"
)

// clientSurface draws ghost text by notifying the client.
type clientSurface struct {
	server *Server
	uri    lsp.DocumentURI
}

func (c *clientSurface) RenderAnnotation(a *suggest.Annotation) {
	params := lsp.SuggestionParams{TextDocument: lsp.TextDocumentIdentifier{URI: c.uri}}
	if a != nil {
		text := a.Text
		params.ID = a.ID
		params.Position = position.OffsetToPosition([]byte(a.Doc.String()), a.Pos)
		params.Text = &text
		params.Class = a.Class
		params.Opacity = a.Opacity
	}
	if err := c.server.sendNotification("ghost/suggestion", params); err != nil {
		log.Printf("[FG][server] Failed to send ghost/suggestion for %s: %v", c.uri, err)
	}
}

func (s *Server) handleSelectionChange(ctx context.Context, req lsp.RequestMessage) error {
	var params lsp.SelectionChangeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("unmarshal ghost/selectionChange params: %w", err)
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil
	}

	content := []byte(doc.overlay.State().Doc.String())
	sel, err := toSelection(content, params.Selections, params.Main)
	if err != nil {
		return fmt.Errorf("ghost/selectionChange: %w", err)
	}
	return doc.overlay.ApplyTransaction(editor.Transaction{Selection: &sel, UserEvent: editor.EventSelect})
}

func (s *Server) handleKey(ctx context.Context, req lsp.RequestMessage) error {
	if req.ID == nil {
		return errors.New("ghost/key request missing ID")
	}
	var params lsp.KeyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		errResp := lsp.ResponseError{Code: lsp.InvalidParams, Message: fmt.Sprintf("Unmarshal params error: %v", err)}
		return s.sendResponse(*req.ID, nil, &errResp)
	}
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(*req.ID, lsp.KeyResult{}, nil)
	}

	// Requests are handled one at a time and dispatches never change the
	// text, so the document read here is the one the edits apply to.
	before := []byte(doc.overlay.State().Doc.String())
	tr, handled := doc.overlay.OnKey(params.Key)
	if !handled {
		return s.sendResponse(*req.ID, lsp.KeyResult{}, nil)
	}
	id, _ := suggest.AcceptedID(*tr)

	after := doc.overlay.State()
	result := lsp.KeyResult{Handled: true, Main: after.Selection.Main}
	for _, c := range tr.Changes {
		result.Edits = append(result.Edits, lsp.TextEdit{
			Range: lsp.Range{
				Start: position.OffsetToPosition(before, c.From),
				End:   position.OffsetToPosition(before, c.To),
			},
			NewText: c.Insert,
		})
	}
	result.Selections = fromSelection([]byte(after.Doc.String()), after.Selection)

	s.logToClient(lsp.TypeLog, fmt.Sprintf("Accepted suggestion %s", id))
	return s.sendResponse(*req.ID, result, nil)
}

// handleInlineCompletion answers pull requests with the active suggestion
// when the requested position is the mirrored caret.
func (s *Server) handleInlineCompletion(ctx context.Context, req lsp.RequestMessage) error {
	if req.ID == nil {
		return errors.New("inlineCompletion request missing ID")
	}
	var params lsp.InlineCompletionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		errResp := lsp.ResponseError{Code: lsp.InvalidParams, Message: fmt.Sprintf("Unmarshal params error: %v", err)}
		return s.sendResponse(*req.ID, nil, &errResp)
	}

	text, ok := s.activeAt(params.TextDocument.URI, params.Position)
	if !ok {
		return s.sendResponse(*req.ID, lsp.InlineCompletionList{Items: []lsp.InlineCompletionItem{}}, nil)
	}
	at := lsp.Range{Start: params.Position, End: params.Position}
	items := []lsp.InlineCompletionItem{{InsertText: text, Range: &at}}
	return s.sendResponse(*req.ID, lsp.InlineCompletionList{Items: items}, nil)
}

// handleCompletion offers the active suggestion as a single popup item for
// clients without inline rendering.
func (s *Server) handleCompletion(ctx context.Context, req lsp.RequestMessage) error {
	if req.ID == nil {
		return errors.New("completion request missing ID")
	}
	var params lsp.CompletionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		errResp := lsp.ResponseError{Code: lsp.InvalidParams, Message: fmt.Sprintf("Unmarshal params error: %v", err)}
		return s.sendResponse(*req.ID, nil, &errResp)
	}

	list := lsp.CompletionList{IsIncomplete: true, Items: []lsp.CompletionItem{}}
	if text, ok := s.activeAt(params.TextDocument.URI, params.Position); ok {
		kind := lsp.CompletionItemKindText
		format := lsp.InsertTextFormatPlainText
		detail := "feelghost suggestion"
		list.Items = append(list.Items, lsp.CompletionItem{
			Label:            text,
			Kind:             &kind,
			Detail:           &detail,
			InsertText:       &text,
			InsertTextFormat: &format,
		})
	}
	return s.sendResponse(*req.ID, list, nil)
}

func (s *Server) activeAt(uri lsp.DocumentURI, pos lsp.Position) (string, bool) {
	doc, ok := s.document(uri)
	if !ok {
		return "", false
	}
	st := doc.overlay.State()
	sug := doc.overlay.Suggestion()
	if !sug.Active() || !sug.Doc().Equal(st.Doc) {
		return "", false
	}
	offset, err := position.PositionToOffset([]byte(st.Doc.String()), pos)
	if err != nil || offset != st.Selection.Primary().Head {
		return "", false
	}
	return sug.Text(), true
}

func toSelection(content []byte, ranges []lsp.SelectionRange, main int) (editor.Selection, error) {
	if len(ranges) == 0 {
		return editor.Selection{}, errors.New("empty selection")
	}
	sel := editor.Selection{Ranges: make([]editor.Range, 0, len(ranges)), Main: main}
	for _, r := range ranges {
		anchor, err := position.PositionToOffset(content, r.Anchor)
		if err != nil {
			return editor.Selection{}, err
		}
		head, err := position.PositionToOffset(content, r.Head)
		if err != nil {
			return editor.Selection{}, err
		}
		sel.Ranges = append(sel.Ranges, editor.Range{Anchor: anchor, Head: head})
	}
	if main < 0 || main >= len(sel.Ranges) {
		sel.Main = 0
	}
	return sel, nil
}

func fromSelection(content []byte, sel editor.Selection) []lsp.SelectionRange {
	out := make([]lsp.SelectionRange, 0, len(sel.Ranges))
	for _, r := range sel.Ranges {
		out = append(out, lsp.SelectionRange{
			Anchor: position.OffsetToPosition(content, r.Anchor),
			Head:   position.OffsetToPosition(content, r.Head),
		})
	}
	return out
}
