package analyzer

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FrancescoCarrabino/feelghost/internal/parser"
)

func TestExtractContext_TextOnly(t *testing.T) {
	content := []byte("if amount > 100\nthen \"big\"\nelse \"small\"")
	cursor := strings.Index(string(content), "\"big\"")

	info := ExtractContext(content, nil, cursor, "feel", "rule.feel")
	assert.Equal(t, "feel", info.LanguageID)
	assert.Equal(t, "if amount > 100\n", info.Prefix)
	assert.Equal(t, "then ", info.CurrentLinePrefix)
	assert.Equal(t, "\"big\"", info.CurrentLineSuffix)
	assert.Equal(t, "else \"small\"", info.Suffix)
	assert.Equal(t, "if amount > 100\nthen ", info.BeforeCursor())
	assert.Equal(t, "\"big\"\nelse \"small\"", info.AfterCursor())
	assert.Nil(t, info.CursorNode)
	assert.Empty(t, info.Imports)
}

func TestExtractContext_ClampsCursor(t *testing.T) {
	info := ExtractContext([]byte("abc"), nil, 99, "feel", "")
	assert.Equal(t, "abc", info.BeforeCursor())
	assert.Equal(t, "", info.AfterCursor())

	info = ExtractContext([]byte("abc"), nil, -1, "feel", "")
	assert.Equal(t, "", info.BeforeCursor())
}

func TestExtractContext_WindowsPrefix(t *testing.T) {
	long := strings.Repeat("x", prefixContextBytes+100) + "\ny"
	info := ExtractContext([]byte(long), nil, len(long), "feel", "")
	assert.Len(t, info.Prefix, prefixContextBytes)
	assert.Equal(t, "y", info.CurrentLinePrefix)
}

func TestExtractContext_WindowsKeepRunesWhole(t *testing.T) {
	// Both window edges fall inside a two-byte rune.
	head := "x" + strings.Repeat("é", prefixContextBytes)
	tail := strings.Repeat("é", suffixContextBytes)
	content := head + "\ny\n" + "x" + tail
	cursor := len(head) + 2

	info := ExtractContext([]byte(content), nil, cursor, "feel", "")
	assert.True(t, utf8.ValidString(info.Prefix))
	assert.True(t, utf8.ValidString(info.Suffix))
	assert.Len(t, info.Prefix, prefixContextBytes-1)
	assert.Len(t, info.Suffix, suffixContextBytes-1)
	assert.True(t, strings.HasSuffix(info.Prefix, "é\n"))
	assert.Equal(t, "y", info.CurrentLinePrefix)
}

func TestExtractContext_WithTree(t *testing.T) {
	m, err := parser.NewManager()
	require.NoError(t, err)
	defer m.Close()

	src := []byte("package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(1)\n}\n")
	tree, err := m.Parse(context.Background(), "go", nil, src)
	require.NoError(t, err)
	require.NotNil(t, tree)

	cursor := strings.Index(string(src), "Println")
	info := ExtractContext(src, tree.RootNode(), cursor, "go", "main.go")
	require.NotNil(t, info.CursorNode)
	require.NotNil(t, info.EnclosingNode)
	assert.Equal(t, "function_declaration", info.EnclosingNode.Type)
	assert.Equal(t, []string{"\"fmt\""}, info.Imports)
}
