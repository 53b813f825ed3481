// Package position converts between LSP positions (0-based line, UTF-16
// character) and byte offsets into a document.
package position

import (
	"fmt"
	"unicode/utf8"

	"github.com/FrancescoCarrabino/feelghost/internal/lsp"
)

// PositionToOffset converts an LSP position to a byte offset. A character
// beyond the end of its line clamps to the line end (before any "\r\n"), and
// a line beyond the last one clamps to len(content).
func PositionToOffset(content []byte, pos lsp.Position) (int, error) {
	if pos.Line < 0 {
		return 0, fmt.Errorf("invalid position: line %d is negative", pos.Line)
	}
	if pos.Character < 0 {
		return 0, fmt.Errorf("invalid position: character %d is negative", pos.Character)
	}

	lineStart := 0
	for line := 0; line < pos.Line; line++ {
		next := indexNewline(content, lineStart)
		if next < 0 {
			return len(content), nil
		}
		lineStart = next + 1
	}

	lineEnd := indexNewline(content, lineStart)
	if lineEnd < 0 {
		lineEnd = len(content)
	}
	if lineEnd > lineStart && content[lineEnd-1] == '\r' {
		lineEnd--
	}

	units := 0
	offset := lineStart
	for offset < lineEnd {
		r, size := utf8.DecodeRune(content[offset:lineEnd])
		w := utf16Len(r)
		// A character pointing into the middle of a surrogate pair lands before the rune.
		if units+w > pos.Character {
			break
		}
		units += w
		offset += size
	}
	return offset, nil
}

// OffsetToPosition converts a byte offset to an LSP position. Offsets are
// clamped to [0, len(content)].
func OffsetToPosition(content []byte, offset int) lsp.Position {
	offset = min(max(offset, 0), len(content))

	var pos lsp.Position
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			pos.Line++
			lineStart = i + 1
		}
	}
	for i := lineStart; i < offset; {
		r, size := utf8.DecodeRune(content[i:offset])
		pos.Character += utf16Len(r)
		i += size
	}
	return pos
}

func indexNewline(content []byte, from int) int {
	for i := from; i < len(content); i++ {
		if content[i] == '\n' {
			return i
		}
	}
	return -1
}

func utf16Len(r rune) int {
	if r > 0xFFFF {
		return 2 // surrogate pair
	}
	return 1
}
