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

// --- Lifecycle Handlers ---

func (s *Server) handleInitialize(ctx context.Context, req lsp.RequestMessage) error {
	if req.ID == nil {
		return errors.New("initialize request missing ID")
	}

	s.stateMutex.RLock()
	already := s.initialized
	s.stateMutex.RUnlock()
	if already {
		log.Println("[FG][server] Warning: Received initialize request after server already initialized.")
		errResp := lsp.ResponseError{Code: -32002, Message: "Server already initialized"}
		return s.sendResponse(*req.ID, nil, &errResp)
	}

	var params lsp.InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		errResp := lsp.ResponseError{Code: lsp.InvalidParams, Message: fmt.Sprintf("Failed to unmarshal initialize params: %v", err)}
		return s.sendResponse(*req.ID, nil, &errResp)
	}

	s.stateMutex.Lock()
	s.clientCaps = params.Capabilities
	s.stateMutex.Unlock()

	if params.ClientInfo != nil {
		log.Printf("[FG][server] Client Info: Name=%s, Version=%s", params.ClientInfo.Name, params.ClientInfo.Version)
	}
	if params.InitializationOptions != nil {
		s.applyOptions(params.InitializationOptions)
	}

	openClose := true
	syncKind := lsp.SyncFull
	resolveProvider := false
	result := lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptions{
				OpenClose: &openClose,
				Change:    &syncKind,
			},
			CompletionProvider:       &lsp.CompletionOptions{ResolveProvider: &resolveProvider},
			InlineCompletionProvider: &lsp.InlineCompletionOptions{},
		},
		ServerInfo: &lsp.ServerInfo{Name: "feelghost", Version: "0.1.0"},
	}
	return s.sendResponse(*req.ID, result, nil)
}

func (s *Server) handleInitialized(ctx context.Context, req lsp.RequestMessage) error {
	s.stateMutex.Lock()
	s.initialized = true
	s.stateMutex.Unlock()
	log.Println("[FG][server] Server initialized by client.")

	model := "none"
	if s.aiClient != nil {
		model = s.aiClient.Identify()
	}
	s.logToClient(lsp.TypeInfo, fmt.Sprintf("feelghost ready (model: %s, delay: %s)", model, s.delay))
	if !s.inlineCapable() {
		log.Println("[FG][server] Client has no inlineCompletion support; suggestions reach it through ghost/suggestion and textDocument/completion.")
	}
	return nil
}

func (s *Server) handleShutdown(ctx context.Context, req lsp.RequestMessage) error {
	log.Println("[FG][server] Shutdown request received.")
	s.stateMutex.Lock()
	s.shutdown = true
	s.stateMutex.Unlock()

	if req.ID == nil {
		log.Println("[FG][server] Warning: Shutdown received as notification")
		return nil
	}
	// Cleanup happens in Close once Run returns.
	return s.sendResponse(*req.ID, nil, nil)
}

func (s *Server) handleExit(ctx context.Context, req lsp.RequestMessage) {
	log.Println("[FG][server] Exit notification received.")
}

func (s *Server) handleDidChangeConfiguration(ctx context.Context, req lsp.RequestMessage) error {
	var params lsp.DidChangeConfigurationParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("unmarshal didChangeConfiguration params: %w", err)
	}
	if params.Settings.FeelGhost != nil {
		s.applyOptions(params.Settings.FeelGhost)
	}
	return nil
}

// applyOptions takes the evaluation context from client options. It may
// arrive as a JSON object or as a string holding one.
func (s *Server) applyOptions(opts *lsp.InitializationOptions) {
	if len(opts.FeelContext) == 0 || s.provider == nil {
		return
	}
	evalContext := string(opts.FeelContext)
	var asString string
	if err := json.Unmarshal(opts.FeelContext, &asString); err == nil {
		evalContext = asString
	}
	s.provider.SetEvalContext(evalContext)
	log.Printf("[FG][server] Evaluation context set (%d bytes)", len(evalContext))
}

// --- Document Synchronization Handlers ---

func (s *Server) handleDidOpen(ctx context.Context, req lsp.RequestMessage) error {
	if !s.isInitialized() {
		return errors.New("received didOpen before initialized")
	}

	var params lsp.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("unmarshal didOpen params: %w", err)
	}
	item := params.TextDocument

	overlay := suggest.New(
		s.fetchFor(string(item.URI), item.LanguageID),
		suggest.WithDelay(s.delay),
		suggest.WithSurface(&clientSurface{server: s, uri: item.URI}),
		suggest.WithInitialState(editor.NewState(item.Text)),
	)

	s.stateMutex.Lock()
	previous := s.documents[item.URI]
	s.documents[item.URI] = &document{overlay: overlay, version: item.Version, languageID: item.LanguageID}
	s.stateMutex.Unlock()
	if previous != nil {
		previous.overlay.Close()
	}

	log.Printf("[FG][server] Opened document: %s (Lang: %s, Version: %d, Size: %d)", item.URI, item.LanguageID, item.Version, len(item.Text))
	return nil
}

func (s *Server) handleDidChange(ctx context.Context, req lsp.RequestMessage) error {
	if !s.isInitialized() {
		return errors.New("received didChange before initialized")
	}

	var params lsp.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("unmarshal didChange params: %w", err)
	}
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		log.Printf("[FG][server] Warning: didChange for unopened document: %s", uri)
		return nil
	}

	old := doc.overlay.State().Doc.String()
	updated, err := applyContentChanges(old, params.ContentChanges)
	if err != nil {
		return fmt.Errorf("didChange %s: %w", uri, err)
	}

	s.stateMutex.Lock()
	doc.version = params.TextDocument.Version
	s.stateMutex.Unlock()

	change := editor.Diff(old, updated)
	if change.From == change.To && change.Insert == "" {
		log.Printf("[FG][server] didChange for %s (version %d) matches the mirror", uri, params.TextDocument.Version)
		return nil
	}

	// Full sync carries no caret; assume it sits after the inserted text
	// until the client reports the selection.
	caret := editor.Single(change.From + len(change.Insert))
	tr := editor.Transaction{
		Changes:   []editor.Change{change},
		Selection: &caret,
		UserEvent: editor.EventSync,
	}
	if err := doc.overlay.ApplyTransaction(tr); err != nil {
		return fmt.Errorf("apply change to %s: %w", uri, err)
	}
	return nil
}

// applyContentChanges replays LSP content changes on text. Events without a
// range replace the whole document.
func applyContentChanges(text string, changes []lsp.TextDocumentContentChangeEvent) (string, error) {
	for _, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		from, err := position.PositionToOffset([]byte(text), c.Range.Start)
		if err != nil {
			return "", err
		}
		to, err := position.PositionToOffset([]byte(text), c.Range.End)
		if err != nil {
			return "", err
		}
		if to < from {
			return "", fmt.Errorf("change range end %d before start %d", to, from)
		}
		text = text[:from] + c.Text + text[to:]
	}
	return text, nil
}

func (s *Server) handleDidClose(ctx context.Context, req lsp.RequestMessage) error {
	if !s.isInitialized() {
		return errors.New("received didClose before initialized")
	}

	var params lsp.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fmt.Errorf("unmarshal didClose params: %w", err)
	}
	uri := params.TextDocument.URI

	s.stateMutex.Lock()
	doc, ok := s.documents[uri]
	delete(s.documents, uri)
	s.stateMutex.Unlock()

	if ok {
		doc.overlay.Close()
		log.Printf("[FG][server] Closed document: %s", uri)
	}
	return nil
}

func (s *Server) fetchFor(uri, languageID string) suggest.FetchFunc {
	if s.provider == nil {
		return func(context.Context, editor.State) (string, error) { return "", nil }
	}
	return s.provider.FetchFor(uri, languageID)
}
