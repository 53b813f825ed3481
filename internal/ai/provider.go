package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
	"github.com/FrancescoCarrabino/feelghost/internal/editor"
	"github.com/FrancescoCarrabino/feelghost/internal/parser"
	"github.com/FrancescoCarrabino/feelghost/internal/suggest"
)

// NewClient builds the model client selected by cfg.Provider.
func NewClient(cfg *config.Config) (Client, error) {
	prompt, err := NewPrompt(cfg.Feel.SystemPrompt)
	if err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg.Providers.OpenAI, *cfg, prompt)
	case "ollama":
		return NewOllamaClient(cfg.Providers.Ollama, *cfg, prompt)
	default:
		return nil, fmt.Errorf("unsupported provider '%s' (want openai or ollama)", cfg.Provider)
	}
}

// Wrap puts client behind the configured rate limiter and result cache.
// Cache hits do not consume rate tokens.
func Wrap(client Client, cfg *config.Config) *CachedClient {
	limited := NewLimitedClient(client, cfg.Suggest.Rate, cfg.Suggest.Burst)
	return NewCachedClient(limited, cfg.Suggest.CacheTTLDuration)
}

// Provider turns a Client into suggestion fetch functions for editors.
type Provider struct {
	client Client
	parser *parser.Manager

	mu          sync.RWMutex
	evalContext string
}

// NewProvider returns a Provider. pm may be nil, in which case only the
// textual context is sent.
func NewProvider(client Client, pm *parser.Manager, evalContext string) *Provider {
	return &Provider{client: client, parser: pm, evalContext: evalContext}
}

// SetEvalContext replaces the JSON evaluation context sent with each request.
func (p *Provider) SetEvalContext(evalContext string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalContext = evalContext
}

func (p *Provider) EvalContext() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evalContext
}

// FetchFor returns the fetch function for one document.
func (p *Provider) FetchFor(filename, languageID string) suggest.FetchFunc {
	return func(ctx context.Context, st editor.State) (string, error) {
		return p.fetch(ctx, st, filename, languageID)
	}
}

func (p *Provider) fetch(ctx context.Context, st editor.State, filename, languageID string) (string, error) {
	content := []byte(st.Doc.String())
	caret := st.Selection.Primary().Head

	if strings.TrimSpace(string(content[:min(caret, len(content))])) == "" {
		return "", nil
	}

	info := analyzer.ExtractContext(content, p.syntaxRoot(ctx, languageID, content), caret, languageID, filename)
	info.EvalContext = p.EvalContext()

	suggestion, err := p.client.GetSuggestion(ctx, info)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.client.Identify(), err)
	}
	return suggestion, nil
}

func (p *Provider) syntaxRoot(ctx context.Context, languageID string, content []byte) *sitter.Node {
	if !p.parser.Supports(languageID) {
		return nil
	}
	tree, err := p.parser.Parse(ctx, languageID, nil, content)
	if err != nil {
		log.Printf("[FG][ai] Parse failed for %s, using text context: %v", languageID, err)
		return nil
	}
	if tree == nil {
		return nil
	}
	return tree.RootNode()
}
