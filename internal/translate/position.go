// Package translate holds the pure, side-effect-free conversions between
// LSP and tsserver coordinate/shape conventions.
package translate

import (
	"strings"
	"unicode/utf16"
)

// LspPosition is zero-based, UTF-16-code-unit-indexed
type LspPosition struct {
	Line int
	Character int
}

// TsLocation is one-based, UTF-16-code-unit-indexed.
type TsLocation struct {
	Line int
	Offset int
}

// LineIndex maps between absolute UTF-16 offsets and (line, column) pairs for
// a single document's text. It is recomputed whenever the document's text
// changes.
type LineIndex struct {
	// lineStartsUTF16 holds, for each line, the cumulative count of UTF-16
	// code units preceding it (i.e. lineStartsUTF16[i] is where line i begins).
	lineStartsUTF16 []int
	text string
}

// NewLineIndex builds an index over text, splitting on '\n' (a preceding
// '\r' is considered part of the same line). A lone '\r' is not treated as
// a line break.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	units := 0
	for _, r := range text {
		units += utf16Units(r)
		if r == '\n' {
			starts = append(starts, units)
		}
	}
	return &LineIndex{lineStartsUTF16: starts, text: text}
}

func utf16Units(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// LineCount returns the number of lines in the document, used by the
// diagnostics scheduler's per-buffer debounce formula.
func (idx *LineIndex) LineCount() int {
	return len(idx.lineStartsUTF16)
}

// ToTsLocation converts a zero-based LSP position into a one-based tsserver
// Location, clamping at the (1,1) minimum. A line past the end of the
// document clamps to the last line, and a character past the end of its
// line clamps to that line's length.
func (idx *LineIndex) ToTsLocation(p LspPosition) TsLocation {
	line := p.Line
	if line < 0 {
		line = 0
	}
	if line >= len(idx.lineStartsUTF16) {
		line = len(idx.lineStartsUTF16) - 1
	}
	lineStart := idx.lineStartsUTF16[line]
	lineEnd := len(utf16.Encode([]rune(idx.text)))
	if line+1 < len(idx.lineStartsUTF16) {
		lineEnd = idx.lineStartsUTF16[line+1]
	}
	maxChar := lineEnd - lineStart
	char := p.Character
	if char < 0 {
		char = 0
	}
	if char > maxChar {
		char = maxChar
	}
	return TsLocation{Line: line + 1, Offset: char + 1}
}

// FromTsLocation converts a one-based tsserver Location into a zero-based
// LSP position. tsserver emits (0,0) for not-yet-saved buffers; this
// clamps to (0,0) rather than going negative.
func FromTsLocation(loc TsLocation) LspPosition {
	line := loc.Line - 1
	if line < 0 {
		line = 0
	}
	char := loc.Offset - 1
	if char < 0 {
		char = 0
	}
	return LspPosition{Line: line, Character: char}
}

// LspRange and TsRange mirror the position types for a start/end pair.
type LspRange struct {
	Start, End LspPosition
}

type TsRange struct {
	Start, End TsLocation
}

func (idx *LineIndex) ToTsRange(r LspRange) TsRange {
	return TsRange{Start: idx.ToTsLocation(r.Start), End: idx.ToTsLocation(r.End)}
}

func FromTsRange(r TsRange) LspRange {
	return LspRange{Start: FromTsLocation(r.Start), End: FromTsLocation(r.End)}
}

// IntersectRanges returns the intersection of a and b: empty
// ("ok" false) when either endpoint of one is strictly after both endpoints
// of the other.
func IntersectRanges(a, b LspRange) (LspRange, bool) {
	start := maxPos(a.Start, b.Start)
	end := minPos(a.End, b.End)
	if comparePos(start, end) > 0 {
		return LspRange{}, false
	}
	return LspRange{Start: start, End: end}, true
}

func comparePos(a, b LspPosition) int {
	if a.Line != b.Line {
		return a.Line - b.Line
	}
	return a.Character - b.Character
}

func maxPos(a, b LspPosition) LspPosition {
	if comparePos(a, b) >= 0 {
		return a
	}
	return b
}

func minPos(a, b LspPosition) LspPosition {
	if comparePos(a, b) <= 0 {
		return a
	}
	return b
}

// FullDocumentRange spans line 1.end, used for full-document replacement
// changes
func (idx *LineIndex) FullDocumentRange() TsRange {
	lastLine := len(idx.lineStartsUTF16) - 1
	lastLineStart := idx.lineStartsUTF16[lastLine]
	totalUnits := len(utf16.Encode([]rune(idx.text)))
	return TsRange{
		Start: TsLocation{Line: 1, Offset: 1},
		End: TsLocation{Line: lastLine + 1, Offset: totalUnits - lastLineStart + 1},
	}
}

// LineAt returns the text of a single zero-based line without its trailing
// newline.
func LineAt(text string, line int) string {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[line], "\r")
}
