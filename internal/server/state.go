package server

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/FrancescoCarrabino/feelghost/internal/ai"
	"github.com/FrancescoCarrabino/feelghost/internal/lsp"
	"github.com/FrancescoCarrabino/feelghost/internal/parser"
	"github.com/FrancescoCarrabino/feelghost/internal/suggest"
)

// document is the server's mirror of one open editor.
type document struct {
	overlay    *suggest.Overlay
	version    int
	languageID string
}

// Server holds the state and manages the LSP communication loop.
type Server struct {
	reader      *bufio.Reader // Reader for LSP input
	writer      io.Writer     // Writer for LSP output
	writerMutex sync.Mutex    // For sending responses/notifications

	stateMutex  sync.RWMutex // Protects fields below
	initialized bool
	shutdown    bool
	documents   map[lsp.DocumentURI]*document
	clientCaps  lsp.ClientCapabilities

	parser   *parser.Manager
	aiClient ai.Client // nil when no model is configured
	provider *ai.Provider
	delay    time.Duration
}

func (s *Server) isInitialized() bool {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.initialized
}

// inlineCapable reports whether the client announced inline completion support.
func (s *Server) inlineCapable() bool {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	td := s.clientCaps.TextDocument
	return td != nil && td.InlineCompletion != nil
}

func (s *Server) document(uri lsp.DocumentURI) (*document, bool) {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	doc, ok := s.documents[uri]
	return doc, ok
}
