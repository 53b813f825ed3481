package ai

import (
	"context"
	"strings"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
)

// Client is implemented by every model backend. GetSuggestion returns the
// text to insert at the caret, or "" when the model has nothing to add.
type Client interface {
	GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error)
	Identify() string
}

// cleanResponse strips markdown fences and the stop marker models sometimes
// leave around the expression.
func cleanResponse(raw, languageID string) string {
	cleaned := strings.TrimLeft(raw, "\r\n")
	if fenced := strings.TrimSpace(cleaned); strings.HasPrefix(fenced, "```") {
		cleaned = strings.TrimPrefix(fenced, "```"+strings.ToLower(languageID))
		cleaned = strings.TrimPrefix(cleaned, "```")
		// Drop the rest of the opening fence line (an unknown language tag).
		if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(strings.TrimSpace(cleaned[:nl]), " \t") {
			cleaned = cleaned[nl+1:]
		}
	}
	cleaned = strings.TrimSuffix(strings.TrimRight(cleaned, " \t\r\n"), "```")
	cleaned = strings.TrimSuffix(cleaned, "<END>")
	return strings.TrimRight(cleaned, " \t\r\n")
}

// completionFrom turns a model response holding the whole expression into
// the part that extends partial. A response that does not start with the
// partial expression yields "".
func completionFrom(response, partial string) string {
	if partial == "" {
		return response
	}
	if strings.HasPrefix(response, partial) {
		return response[len(partial):]
	}
	// Models tend to drop the whitespace the user typed last.
	trimmed := strings.TrimRight(partial, " \t")
	if trimmed != partial && strings.HasPrefix(response, trimmed) {
		return strings.TrimLeft(response[len(trimmed):], " \t")
	}
	return ""
}

// suggestionFrom applies cleanResponse and completionFrom for info.
func suggestionFrom(raw string, info *analyzer.ContextInfo) string {
	return completionFrom(cleanResponse(raw, info.LanguageID), info.BeforeCursor())
}
