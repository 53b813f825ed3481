package ai

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
)

//go:embed prompts
var promptFS embed.FS

const (
	systemPromptPath = "prompts/system.txt"
	userTemplatePath = "prompts/user.tmpl"
)

// Prompt renders the chat messages sent to a model.
type Prompt struct {
	System string
	user   *template.Template
}

// NewPrompt loads the embedded prompts. A non-empty systemOverride replaces
// the embedded system prompt.
func NewPrompt(systemOverride string) (*Prompt, error) {
	system := systemOverride
	if strings.TrimSpace(system) == "" {
		raw, err := promptFS.ReadFile(systemPromptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read system prompt '%s': %w", systemPromptPath, err)
		}
		system = strings.TrimSpace(string(raw))
	}

	user, err := template.ParseFS(promptFS, userTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template '%s': %w", userTemplatePath, err)
	}
	return &Prompt{System: system, user: user}, nil
}

// User renders the user message for info. An empty EvalContext renders as "{}".
func (p *Prompt) User(info *analyzer.ContextInfo) (string, error) {
	data := *info
	if strings.TrimSpace(data.EvalContext) == "" {
		data.EvalContext = "{}"
	}
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, &data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
