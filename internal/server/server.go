package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/textproto"
	"strconv"

	"github.com/FrancescoCarrabino/feelghost/internal/ai"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
	"github.com/FrancescoCarrabino/feelghost/internal/lsp"
	"github.com/FrancescoCarrabino/feelghost/internal/parser"
)

// NewServer loads the configuration and builds a server with the configured
// model behind its rate limiter and cache. A model that cannot be set up is
// logged and leaves the server running without suggestions.
func NewServer() *Server {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("[FG][server] FATAL: Failed to load configuration: %v", err)
	}

	parserManager, err := parser.NewManager()
	if err != nil {
		log.Printf("[FG][server] ERROR initializing parser: %v. Syntax context disabled.", err)
		parserManager = nil
	}

	var client ai.Client
	if raw, err := ai.NewClient(cfg); err != nil {
		log.Printf("[FG][server] ERROR initializing AI client for provider '%s': %v. Suggestions disabled.", cfg.Provider, err)
	} else {
		log.Printf("[FG][server] Using AI client %s", raw.Identify())
		if p, ok := raw.(interface{ Ping(context.Context) error }); ok {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutDuration)
			if err := p.Ping(ctx); err != nil {
				log.Printf("[FG][server] Warning: %s is not reachable yet: %v", raw.Identify(), err)
			}
			cancel()
		}
		client = ai.Wrap(raw, cfg)
	}
	return New(cfg, client, parserManager)
}

// New creates a server. client and pm may be nil.
func New(cfg *config.Config, client ai.Client, pm *parser.Manager) *Server {
	s := &Server{
		documents: make(map[lsp.DocumentURI]*document),
		parser:    pm,
		aiClient:  client,
		delay:     cfg.Suggest.DelayDuration,
	}
	if client != nil {
		s.provider = ai.NewProvider(client, pm, cfg.Feel.Context)
	}
	log.Printf("[FG][server] Using suggestion delay: %s", s.delay)
	return s
}

// Run starts the server's main loop, reading from r and writing to w.
func (s *Server) Run(r io.Reader, w io.Writer) error {
	s.reader = bufio.NewReader(r)
	s.writer = w
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mimeReader := textproto.NewReader(s.reader)
	for {
		header, err := mimeReader.ReadMIMEHeader()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Println("[FG][server] Client closed connection (EOF on header read)")
				return nil
			}
			log.Printf("[FG][server] Error reading header: %v", err)
			continue
		}

		contentLengthStr := header.Get("Content-Length")
		if contentLengthStr == "" {
			log.Println("[FG][server] Error: Missing Content-Length header")
			continue
		}
		contentLength, err := strconv.Atoi(contentLengthStr)
		if err != nil || contentLength < 0 {
			log.Printf("[FG][server] Error converting Content-Length '%s' to int: %v", contentLengthStr, err)
			continue
		}

		jsonData := make([]byte, contentLength)
		if n, err := io.ReadFull(s.reader, jsonData); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Println("[FG][server] Client closed connection (EOF on content read)")
				return nil
			}
			log.Printf("[FG][server] Error reading content (read %d/%d bytes): %v", n, contentLength, err)
			continue
		}

		if s.handleMessage(ctx, jsonData) {
			log.Println("[FG][server] Exit notification processed, stopping server run loop.")
			return nil
		}
	}
}

// handleMessage decodes and dispatches a received JSON message.
// Returns true if the 'exit' notification was received.
func (s *Server) handleMessage(ctx context.Context, jsonData []byte) (exit bool) {
	var req lsp.RequestMessage
	if err := json.Unmarshal(jsonData, &req); err != nil {
		log.Printf("[FG][server] Error unmarshalling base request: %v. JSON: %s", err, string(jsonData))
		return false
	}

	log.Printf("[FG][server] Received message: Method=%s (ID: %v)", req.Method, idString(req.ID))

	var err error
	switch req.Method {
	case "initialize":
		err = s.handleInitialize(ctx, req)
	case "initialized":
		err = s.handleInitialized(ctx, req)
	case "shutdown":
		err = s.handleShutdown(ctx, req)
	case "exit":
		s.handleExit(ctx, req)
		return true
	case "workspace/didChangeConfiguration":
		err = s.handleDidChangeConfiguration(ctx, req)
	case "textDocument/didOpen":
		err = s.handleDidOpen(ctx, req)
	case "textDocument/didChange":
		err = s.handleDidChange(ctx, req)
	case "textDocument/didSave":
		// Nothing to do: the mirror already follows didChange.
	case "textDocument/didClose":
		err = s.handleDidClose(ctx, req)
	case "textDocument/inlineCompletion":
		err = s.handleInlineCompletion(ctx, req)
	case "textDocument/completion":
		err = s.handleCompletion(ctx, req)
	case "ghost/selectionChange":
		err = s.handleSelectionChange(ctx, req)
	case "ghost/key":
		err = s.handleKey(ctx, req)
	case "$/cancelRequest", "$/setTrace":
		log.Printf("[FG][server] Ignoring %s", req.Method)
	default:
		if req.ID != nil {
			log.Printf("[FG][server] Unhandled method request: %s", req.Method)
			errResp := lsp.ResponseError{Code: lsp.MethodNotFound, Message: fmt.Sprintf("Method not supported: %s", req.Method)}
			err = s.sendResponse(*req.ID, nil, &errResp)
		} else {
			log.Printf("[FG][server] Ignoring unhandled notification: %s", req.Method)
		}
	}

	if err != nil {
		log.Printf("[FG][server] Error handling method %s: %v", req.Method, err)
	}
	return false
}

func idString(id *int) string {
	if id == nil {
		return "-"
	}
	return strconv.Itoa(*id)
}

func (s *Server) sendResponse(id int, result any, respErr *lsp.ResponseError) error {
	var rawResult json.RawMessage
	rawError := respErr
	if respErr == nil {
		var err error
		rawResult, err = json.Marshal(result)
		if err != nil {
			log.Printf("[FG][server] Error marshalling result for ID %d: %v", id, err)
			rawResult = nil
			rawError = &lsp.ResponseError{Code: lsp.InternalError, Message: fmt.Sprintf("Failed to marshal result: %v", err)}
		}
	}
	resp := lsp.ResponseMessage{RPCVersion: "2.0", ID: &id, Result: rawResult, Error: rawError}
	respData, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response structure: %w", err)
	}
	return s.write(respData)
}

func (s *Server) sendNotification(method string, params any) error {
	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal notification params: %w", err)
		}
	}
	req := lsp.RequestMessage{RPCVersion: "2.0", Method: method, Params: rawParams}
	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification structure: %w", err)
	}
	return s.write(reqData)
}

func (s *Server) write(data []byte) error {
	s.writerMutex.Lock()
	defer s.writerMutex.Unlock()
	if s.writer == nil {
		return errors.New("server is not running")
	}
	if _, err := fmt.Fprintf(s.writer, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *Server) logToClient(level lsp.MessageType, message string) {
	if !s.isInitialized() {
		log.Printf("[FG][server] (pre-init) %s", message)
		return
	}
	if err := s.sendNotification("window/logMessage", lsp.LogMessageParams{Type: level, Message: message}); err != nil {
		log.Printf("[FG][server] Error sending log message to client (level %d): %v - Message: %s", level, err, message)
	}
}

// Close stops every overlay and releases the parser and model client.
func (s *Server) Close() {
	s.stateMutex.Lock()
	docs := s.documents
	s.documents = make(map[lsp.DocumentURI]*document)
	s.stateMutex.Unlock()

	log.Printf("[FG][server] Closing %d open documents...", len(docs))
	for _, doc := range docs {
		doc.overlay.Close()
	}
	if s.parser != nil {
		s.parser.Close()
	}
	if c, ok := s.aiClient.(interface{ Close() }); ok {
		c.Close()
	}
}
