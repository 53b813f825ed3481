package analyzer

import (
	"log"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// ContextInfo holds what a completion model gets to see of the document
// around the caret.
type ContextInfo struct {
	LanguageID        string
	Filename          string
	Prefix            string    // Text BEFORE the current line (bounded window)
	Suffix            string    // Text AFTER the current line (bounded window)
	CurrentLinePrefix string    // Part of current line BEFORE cursor
	CurrentLineSuffix string    // Part of current line AFTER cursor
	CursorNode        *NodeInfo // Smallest named node at the cursor, when a syntax tree is available
	EnclosingNode     *NodeInfo // Nearest enclosing block (function/class/...), when one exists
	Imports           []string

	// EvalContext is the JSON object the expression is evaluated against.
	EvalContext string
}

// NodeInfo provides basic details about a relevant AST node.
type NodeInfo struct {
	Type      string
	Content   string
	StartByte uint32
	EndByte   uint32
}

// BeforeCursor returns the windowed text preceding the caret.
func (c *ContextInfo) BeforeCursor() string {
	return c.Prefix + c.CurrentLinePrefix
}

// AfterCursor returns the windowed text following the caret.
func (c *ContextInfo) AfterCursor() string {
	if c.Suffix == "" {
		return c.CurrentLineSuffix
	}
	return c.CurrentLineSuffix + "\n" + c.Suffix
}

const (
	prefixContextBytes = 2048 // bytes before the current line
	suffixContextBytes = 256  // bytes after the current line
)

var blockNodeTypes = map[string][]string{
	"go":         {"function_declaration", "method_declaration", "type_spec"},
	"python":     {"function_definition", "class_definition"},
	"javascript": {"function_declaration", "function_expression", "arrow_function", "method_definition", "class_declaration", "object"},
	"typescript": {"function_declaration", "arrow_function", "method_definition", "class_declaration", "interface_declaration"},
	"rust":       {"function_item", "impl_item", "struct_item", "enum_item"},
	"yaml":       {"block_mapping_pair"},
}

var importNodeTypes = map[string][]string{
	"go":         {"import_spec"},
	"python":     {"import_statement", "import_from_statement"},
	"javascript": {"import_statement"},
	"typescript": {"import_statement"},
	"rust":       {"use_declaration"},
}

// ExtractContext returns the context around cursorByteOffset. rootNode may be
// nil for languages without a grammar (FEEL among them); only the textual
// windows are filled in that case.
func ExtractContext(content []byte, rootNode *sitter.Node, cursorByteOffset int, languageID, filename string) *ContextInfo {
	cursor := min(max(cursorByteOffset, 0), len(content))
	info := &ContextInfo{
		LanguageID: languageID,
		Filename:   filename,
		Imports:    []string{},
	}

	lineStart, lineEnd := lineBounds(content, cursor)
	info.CurrentLinePrefix = string(content[lineStart:cursor])
	info.CurrentLineSuffix = string(content[cursor:lineEnd])
	prefixStart := max(lineStart-prefixContextBytes, 0)
	for prefixStart < lineStart && !utf8.RuneStart(content[prefixStart]) {
		prefixStart++
	}
	info.Prefix = string(content[prefixStart:lineStart])

	suffixStart := lineEnd
	if suffixStart < len(content) && content[suffixStart] == '\n' {
		suffixStart++
	}
	suffixEnd := min(suffixStart+suffixContextBytes, len(content))
	for suffixEnd > suffixStart && suffixEnd < len(content) && !utf8.RuneStart(content[suffixEnd]) {
		suffixEnd--
	}
	info.Suffix = string(content[suffixStart:suffixEnd])

	if rootNode != nil {
		addTreeContext(info, content, rootNode, cursor, languageID)
	}
	return info
}

func lineBounds(content []byte, cursor int) (start, end int) {
	start = cursor
	for start > 0 && content[start-1] != '\n' {
		start--
	}
	end = cursor
	for end < len(content) && content[end] != '\n' {
		end++
	}
	return start, end
}

func addTreeContext(info *ContextInfo, content []byte, root *sitter.Node, cursor int, languageID string) {
	point := pointAt(content, cursor)
	node := root.NamedDescendantForPointRange(point, point)
	if node == nil {
		log.Printf("[FG][analyzer] No named node at %d:%d", point.Row, point.Column)
		return
	}
	info.CursorNode = nodeInfo(node, content)

	if block := enclosing(node, blockNodeTypes[languageID]); block != nil {
		info.EnclosingNode = nodeInfo(block, content)
	}
	info.Imports = collectImports(root, content, importNodeTypes[languageID])
}

func nodeInfo(n *sitter.Node, content []byte) *NodeInfo {
	return &NodeInfo{
		Type:      n.Type(),
		Content:   nodeText(n, content),
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
	}
}

func nodeText(n *sitter.Node, content []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start > end || int(end) > len(content) {
		return ""
	}
	return string(content[start:end])
}

// enclosing walks up from n to the first node whose type is in types.
func enclosing(n *sitter.Node, types []string) *sitter.Node {
	for ; n != nil; n = n.Parent() {
		for _, t := range types {
			if n.Type() == t {
				return n
			}
		}
	}
	return nil
}

func collectImports(root *sitter.Node, content []byte, types []string) []string {
	imports := []string{}
	if len(types) == 0 {
		return imports
	}
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	seen := make(map[string]bool)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if want[n.Type()] {
			text := strings.Join(strings.Fields(nodeText(n, content)), " ")
			if text != "" && !seen[text] {
				seen[text] = true
				imports = append(imports, text)
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return imports
}

// pointAt converts a byte offset to a tree-sitter point (row, byte column).
func pointAt(content []byte, offset int) sitter.Point {
	var p sitter.Point
	for _, b := range content[:min(max(offset, 0), len(content))] {
		if b == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}
