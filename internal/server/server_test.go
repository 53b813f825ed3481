package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
	"github.com/FrancescoCarrabino/feelghost/internal/lsp"
)

// scriptedClient completes "amount >" with " 100" and nothing else.
type scriptedClient struct {
	mu           sync.Mutex
	evalContexts []string
}

func (c *scriptedClient) GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error) {
	c.mu.Lock()
	c.evalContexts = append(c.evalContexts, info.EvalContext)
	c.mu.Unlock()
	if strings.HasSuffix(info.BeforeCursor(), "amount >") {
		return " 100", nil
	}
	return "", nil
}

func (c *scriptedClient) Identify() string { return "scripted/test" }

func (c *scriptedClient) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.evalContexts...)
}

// wireMessage is any JSON-RPC message the server writes.
type wireMessage struct {
	ID     *int               `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Result json.RawMessage    `json:"result"`
	Error  *lsp.ResponseError `json:"error"`
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Suggest.DelayDuration = 5 * time.Millisecond
	return &cfg
}

func frame(t *testing.T, w io.Writer, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(data), data)
	require.NoError(t, err)
}

func request(id int, method string, params any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
}

func notification(method string, params any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "method": method, "params": params}
}

// readFrames decodes framed messages from r until it fails.
func readFrames(r io.Reader, out chan<- wireMessage) {
	defer close(out)
	br := bufio.NewReader(r)
	tp := textproto.NewReader(br)
	for {
		header, err := tp.ReadMIMEHeader()
		if err != nil {
			return
		}
		n, err := strconv.Atoi(header.Get("Content-Length"))
		if err != nil {
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return
		}
		out <- msg
	}
}

func waitFor(t *testing.T, ch <-chan wireMessage, match func(wireMessage) bool) wireMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatal("server output closed")
			}
			if match(msg) {
				return msg
			}
		case <-timeout:
			t.Fatal("timed out waiting for message")
		}
	}
}

func responseTo(id int) func(wireMessage) bool {
	return func(m wireMessage) bool { return m.ID != nil && *m.ID == id && m.Method == "" }
}

func method(name string) func(wireMessage) bool {
	return func(m wireMessage) bool { return m.Method == name }
}

func TestServerSuggestAndAccept(t *testing.T) {
	client := &scriptedClient{}
	s := New(testConfig(), client, nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	msgs := make(chan wireMessage, 64)
	go readFrames(outR, msgs)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(inR, outW)
		outW.Close()
	}()

	const uri = "file:///rules/discount.feel"

	frame(t, inW, request(1, "initialize", map[string]any{
		"processId":             1,
		"capabilities":          map[string]any{},
		"initializationOptions": map[string]any{"feelContext": map[string]any{"amount": 150}},
	}))
	resp := waitFor(t, msgs, responseTo(1))
	require.Nil(t, resp.Error)
	var initResult lsp.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &initResult))
	assert.NotNil(t, initResult.Capabilities.InlineCompletionProvider)
	assert.Equal(t, "feelghost", initResult.ServerInfo.Name)

	frame(t, inW, notification("initialized", map[string]any{}))
	frame(t, inW, notification("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "feel", "version": 1, "text": ""},
	}))
	frame(t, inW, notification("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": 2},
		"contentChanges": []map[string]any{{"text": "amount >"}},
	}))

	shown := waitFor(t, msgs, method("ghost/suggestion"))
	var sug lsp.SuggestionParams
	require.NoError(t, json.Unmarshal(shown.Params, &sug))
	require.NotNil(t, sug.Text)
	assert.Equal(t, " 100", *sug.Text)
	assert.Equal(t, lsp.Position{Line: 0, Character: 8}, sug.Position)
	assert.Equal(t, "cm-inline-suggestion", sug.Class)
	assert.InDelta(t, 0.4, sug.Opacity, 1e-9)
	assert.NotEmpty(t, sug.ID)
	assert.Contains(t, client.seen(), `{"amount":150}`)

	// Pull request away from the caret gets nothing.
	frame(t, inW, request(2, "textDocument/inlineCompletion", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 0, "character": 3},
		"context":      map[string]any{"triggerKind": 1},
	}))
	resp = waitFor(t, msgs, responseTo(2))
	var list lsp.InlineCompletionList
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	assert.Empty(t, list.Items)

	frame(t, inW, request(3, "textDocument/inlineCompletion", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 0, "character": 8},
		"context":      map[string]any{"triggerKind": 1},
	}))
	resp = waitFor(t, msgs, responseTo(3))
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, " 100", list.Items[0].InsertText)

	frame(t, inW, request(4, "ghost/key", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"key":          "Tab",
	}))
	cleared := waitFor(t, msgs, method("ghost/suggestion"))
	var gone lsp.SuggestionParams
	require.NoError(t, json.Unmarshal(cleared.Params, &gone))
	assert.Nil(t, gone.Text)

	logged := waitFor(t, msgs, method("window/logMessage"))
	var logParams lsp.LogMessageParams
	require.NoError(t, json.Unmarshal(logged.Params, &logParams))
	assert.Equal(t, "Accepted suggestion "+sug.ID, logParams.Message)

	resp = waitFor(t, msgs, responseTo(4))
	var key lsp.KeyResult
	require.NoError(t, json.Unmarshal(resp.Result, &key))
	assert.True(t, key.Handled)
	require.Len(t, key.Edits, 1)
	assert.Equal(t, lsp.TextEdit{
		Range:   lsp.Range{Start: lsp.Position{Line: 0, Character: 8}, End: lsp.Position{Line: 0, Character: 8}},
		NewText: " 100",
	}, key.Edits[0])
	assert.Equal(t, []lsp.SelectionRange{{
		Anchor: lsp.Position{Line: 0, Character: 12},
		Head:   lsp.Position{Line: 0, Character: 12},
	}}, key.Selections)

	// The client echoes the accepted text back; the mirror already has it.
	frame(t, inW, notification("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": 3},
		"contentChanges": []map[string]any{{"text": "amount > 100"}},
	}))
	frame(t, inW, request(5, "feel/evaluate", map[string]any{}))
	resp = waitFor(t, msgs, responseTo(5))
	require.NotNil(t, resp.Error)
	assert.Equal(t, lsp.MethodNotFound, resp.Error.Code)

	doc, ok := s.document(uri)
	require.True(t, ok)
	s.stateMutex.RLock()
	assert.Equal(t, 3, doc.version)
	s.stateMutex.RUnlock()
	assert.Equal(t, "amount > 100", doc.overlay.State().Doc.String())

	frame(t, inW, request(6, "shutdown", nil))
	resp = waitFor(t, msgs, responseTo(6))
	assert.Nil(t, resp.Error)
	frame(t, inW, notification("exit", nil))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exit")
	}
	inW.Close()
}

// newDirectServer returns an initialized server whose output is collected
// in a buffer. Messages are fed with handle.
func newDirectServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := New(testConfig(), nil, nil)
	s.writer = &out
	s.initialized = true
	t.Cleanup(s.Close)
	return s, &out
}

func handle(t *testing.T, s *Server, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.False(t, s.handleMessage(context.Background(), data))
}

func decodeOutput(t *testing.T, out *bytes.Buffer) []wireMessage {
	t.Helper()
	ch := make(chan wireMessage, 64)
	readFrames(bytes.NewReader(out.Bytes()), ch)
	var msgs []wireMessage
	for m := range ch {
		msgs = append(msgs, m)
	}
	out.Reset()
	return msgs
}

func lastResponse(t *testing.T, out *bytes.Buffer, id int) wireMessage {
	t.Helper()
	for _, m := range decodeOutput(t, out) {
		if responseTo(id)(m) {
			return m
		}
	}
	t.Fatalf("no response to request %d", id)
	return wireMessage{}
}

func TestSelectionChangeMovesMirrorCaret(t *testing.T) {
	s, _ := newDirectServer(t)
	const uri = "file:///multi.feel"

	handle(t, s, notification("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "feel", "version": 1, "text": "a < 1\nb > 2"},
	}))
	handle(t, s, notification("ghost/selectionChange", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"selections": []map[string]any{
			{"anchor": map[string]any{"line": 0, "character": 1}, "head": map[string]any{"line": 0, "character": 1}},
			{"anchor": map[string]any{"line": 1, "character": 0}, "head": map[string]any{"line": 1, "character": 3}},
		},
		"main": 1,
	}))

	doc, ok := s.document(uri)
	require.True(t, ok)
	sel := doc.overlay.State().Selection
	require.Len(t, sel.Ranges, 2)
	assert.Equal(t, 1, sel.Main)
	assert.Equal(t, 6, sel.Primary().Anchor)
	assert.Equal(t, 9, sel.Primary().Head)
	assert.Equal(t, 1, sel.Ranges[0].Head)
}

func TestKeyWithoutSuggestionIsNotHandled(t *testing.T) {
	s, out := newDirectServer(t)
	const uri = "file:///idle.feel"

	handle(t, s, notification("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "feel", "version": 1, "text": "x"},
	}))

	handle(t, s, request(1, "ghost/key", map[string]any{"textDocument": map[string]any{"uri": uri}, "key": "tab"}))
	resp := lastResponse(t, out, 1)
	assert.JSONEq(t, `{"handled":false}`, string(resp.Result))

	handle(t, s, request(2, "ghost/key", map[string]any{"textDocument": map[string]any{"uri": "file:///unknown"}, "key": "tab"}))
	resp = lastResponse(t, out, 2)
	assert.JSONEq(t, `{"handled":false}`, string(resp.Result))

	handle(t, s, request(3, "textDocument/completion", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": 0, "character": 1},
	}))
	resp = lastResponse(t, out, 3)
	assert.JSONEq(t, `{"isIncomplete":true,"items":[]}`, string(resp.Result))
}

func TestInitializeTwice(t *testing.T) {
	s, out := newDirectServer(t)

	handle(t, s, request(1, "initialize", map[string]any{"capabilities": map[string]any{}}))
	resp := lastResponse(t, out, 1)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32002, resp.Error.Code)
}

func TestFeelContextOptions(t *testing.T) {
	var out bytes.Buffer
	s := New(testConfig(), &scriptedClient{}, nil)
	s.writer = &out
	t.Cleanup(s.Close)

	handle(t, s, request(1, "initialize", map[string]any{
		"capabilities":          map[string]any{},
		"initializationOptions": map[string]any{"feelContext": `{"customer":{"age":30}}`},
	}))
	assert.Equal(t, `{"customer":{"age":30}}`, s.provider.EvalContext())

	handle(t, s, notification("workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"feelghost": map[string]any{"feelContext": map[string]any{"x": 1}}},
	}))
	assert.Equal(t, `{"x":1}`, s.provider.EvalContext())

	// Settings for other servers leave the context alone.
	handle(t, s, notification("workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"other": true},
	}))
	assert.Equal(t, `{"x":1}`, s.provider.EvalContext())
}

func TestApplyContentChanges(t *testing.T) {
	rng := func(sl, sc, el, ec int) *lsp.Range {
		return &lsp.Range{Start: lsp.Position{Line: sl, Character: sc}, End: lsp.Position{Line: el, Character: ec}}
	}
	tests := []struct {
		name    string
		text    string
		changes []lsp.TextDocumentContentChangeEvent
		want    string
		wantErr bool
	}{
		{
			name:    "full replacement",
			text:    "old",
			changes: []lsp.TextDocumentContentChangeEvent{{Text: "new text"}},
			want:    "new text",
		},
		{
			name:    "ranged insert",
			text:    "a > 1",
			changes: []lsp.TextDocumentContentChangeEvent{{Range: rng(0, 5, 0, 5), Text: "0"}},
			want:    "a > 10",
		},
		{
			name: "ranged edits in sequence",
			text: "x\ny",
			changes: []lsp.TextDocumentContentChangeEvent{
				{Range: rng(1, 0, 1, 1), Text: "z"},
				{Range: rng(0, 0, 1, 0), Text: ""},
			},
			want: "z",
		},
		{
			name:    "utf16 columns",
			text:    "\"é\" = s",
			changes: []lsp.TextDocumentContentChangeEvent{{Range: rng(0, 3, 0, 3), Text: "!"}},
			want:    "\"é\"! = s",
		},
		{
			name:    "end before start",
			text:    "abc",
			changes: []lsp.TextDocumentContentChangeEvent{{Range: rng(0, 2, 0, 1), Text: ""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyContentChanges(tt.text, tt.changes)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
