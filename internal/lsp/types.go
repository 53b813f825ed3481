// Package lsp holds the JSON-RPC and Language Server Protocol types the
// server reads and writes, plus the ghost/* extension messages used by
// editors that draw the suggestion themselves.
package lsp

import "encoding/json"

type DocumentURI string

// RequestMessage is a JSON-RPC request, or a notification when ID is nil.
type RequestMessage struct {
	RPCVersion string          `json:"jsonrpc"`
	ID         *int            `json:"id,omitempty"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"` // decoded by the handler
}

type ResponseMessage struct {
	RPCVersion string          `json:"jsonrpc"`
	ID         *int            `json:"id"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ResponseError  `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// --- Lifecycle ---

type InitializeParams struct {
	ProcessID             *int                   `json:"processId,omitempty"`
	RootURI               *DocumentURI           `json:"rootUri,omitempty"`
	ClientInfo            *ClientInfo            `json:"clientInfo,omitempty"`
	InitializationOptions *InitializationOptions `json:"initializationOptions,omitempty"`
	Capabilities          ClientCapabilities     `json:"capabilities"`
}

// InitializationOptions are the server-specific options a client may send.
type InitializationOptions struct {
	// FeelContext is the evaluation context, either a JSON object or a string holding one.
	FeelContext json.RawMessage `json:"feelContext,omitempty"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities keeps only the sections the server looks at.
type ClientCapabilities struct {
	TextDocument *struct {
		InlineCompletion *struct {
			DynamicRegistration *bool `json:"dynamicRegistration,omitempty"`
		} `json:"inlineCompletion,omitempty"`
	} `json:"textDocument,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync         *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
	CompletionProvider       *CompletionOptions       `json:"completionProvider,omitempty"`
	InlineCompletionProvider *InlineCompletionOptions `json:"inlineCompletionProvider,omitempty"`
}

type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

type TextDocumentSyncOptions struct {
	OpenClose *bool                 `json:"openClose,omitempty"`
	Change    *TextDocumentSyncKind `json:"change,omitempty"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   *bool    `json:"resolveProvider,omitempty"`
}

type InlineCompletionOptions struct{}

type MessageType int

const (
	TypeError   MessageType = 1
	TypeWarning MessageType = 2
	TypeInfo    MessageType = 3
	TypeLog     MessageType = 4
)

// LogMessageParams is sent with 'window/logMessage'.
type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// DidChangeConfigurationParams is sent with 'workspace/didChangeConfiguration'.
// Only the "feelghost" section is read.
type DidChangeConfigurationParams struct {
	Settings struct {
		FeelGhost *InitializationOptions `json:"feelghost,omitempty"`
	} `json:"settings"`
}

// --- Documents ---

// Position is zero-based; Character counts UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is half-open: End is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     DocumentURI `json:"uri"`
	Version int         `json:"version"` // version after the change
}

type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent replaces Range with Text, or the whole
// document when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range       *Range  `json:"range,omitempty"`
	RangeLength *uint32 `json:"rangeLength,omitempty"` // deprecated by the protocol, ignored
	Text        string  `json:"text"`
}

// --- Completion ---

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type CompletionParams struct {
	TextDocumentPositionParams
	Context *struct {
		TriggerKind      int     `json:"triggerKind"`
		TriggerCharacter *string `json:"triggerCharacter,omitempty"`
	} `json:"context,omitempty"`
}

type InsertTextFormat int

const (
	InsertTextFormatPlainText InsertTextFormat = 1
	InsertTextFormatSnippet   InsertTextFormat = 2
)

type CompletionItemKind int

const (
	CompletionItemKindText    CompletionItemKind = 1
	CompletionItemKindSnippet CompletionItemKind = 15
)

type CompletionItem struct {
	Label            string              `json:"label"`
	Kind             *CompletionItemKind `json:"kind,omitempty"`
	Detail           *string             `json:"detail,omitempty"`
	InsertText       *string             `json:"insertText,omitempty"`
	InsertTextFormat *InsertTextFormat   `json:"insertTextFormat,omitempty"`
}

type CompletionList struct {
	// IsIncomplete asks the client to query again as the user keeps typing.
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type InlineCompletionTriggerKind int

const (
	TriggerInvoke    InlineCompletionTriggerKind = 0
	TriggerAutomatic InlineCompletionTriggerKind = 1
)

// InlineCompletionParams is the 'textDocument/inlineCompletion' request.
type InlineCompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      struct {
		TriggerKind InlineCompletionTriggerKind `json:"triggerKind"`
	} `json:"context"`
}

type InlineCompletionList struct {
	Items []InlineCompletionItem `json:"items"`
}

type InlineCompletionItem struct {
	InsertText string  `json:"insertText"`
	FilterText *string `json:"filterText,omitempty"`
	Range      *Range  `json:"range,omitempty"`
}

// --- ghost/* extension messages ---

// SelectionRange is one selection range of a multi-cursor editor.
type SelectionRange struct {
	Anchor Position `json:"anchor"`
	Head   Position `json:"head"`
}

// SelectionChangeParams corresponds to the 'ghost/selectionChange' notification.
type SelectionChangeParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Selections   []SelectionRange       `json:"selections"`
	Main         int                    `json:"main"`
}

// KeyParams corresponds to the 'ghost/key' request.
type KeyParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Key          string                 `json:"key"`
}

// KeyResult is the 'ghost/key' response. When Handled is false the client
// runs its default key binding.
type KeyResult struct {
	Handled    bool             `json:"handled"`
	Edits      []TextEdit       `json:"edits,omitempty"`
	Selections []SelectionRange `json:"selections,omitempty"`
	Main       int              `json:"main,omitempty"`
}

// SuggestionParams corresponds to the server->client 'ghost/suggestion'
// notification. A nil Text clears the ghost text.
type SuggestionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	ID           string                 `json:"id,omitempty"`
	Position     Position               `json:"position"`
	Text         *string                `json:"text"`
	Class        string                 `json:"class,omitempty"`
	Opacity      float64                `json:"opacity,omitempty"`
}
