package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/yaml"
)

// Manager owns one tree-sitter parser and the embedded grammars it can use.
// A sitter.Parser is not safe for concurrent use, so Parse serializes on mu.
type Manager struct {
	mu      sync.Mutex
	parser  *sitter.Parser
	langMap map[string]*sitter.Language
}

func NewManager() (*Manager, error) {
	m := &Manager{
		parser: sitter.NewParser(),
		langMap: map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"bash":       bash.GetLanguage(),
			"yaml":       yaml.GetLanguage(),
			"html":       html.GetLanguage(),
		},
	}

	for langID, lang := range m.langMap {
		if lang == nil {
			log.Printf("[FG][parser] Warning: embedded grammar for %q loaded as nil, dropping it", langID)
			delete(m.langMap, langID)
		}
	}
	log.Printf("[FG][parser] Loaded %d embedded grammars", len(m.langMap))
	return m, nil
}

// Supports reports whether a grammar is available for langID.
func (m *Manager) Supports(langID string) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.langMap[langID]
	return ok
}

// Parse parses content with the grammar for langID. It returns a nil tree
// and nil error when the language has no grammar.
func (m *Manager) Parse(ctx context.Context, langID string, oldTree *sitter.Tree, content []byte) (*sitter.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lang, ok := m.langMap[langID]
	if !ok {
		return nil, nil
	}
	if m.parser == nil {
		return nil, errors.New("parser manager is closed")
	}
	m.parser.SetLanguage(lang)

	tree, err := m.parser.ParseCtx(ctx, oldTree, content)
	if err != nil {
		return nil, fmt.Errorf("parsing failed for lang %s: %w", langID, err)
	}
	return tree, nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parser != nil {
		m.parser.Close()
		m.parser = nil
	}
}
