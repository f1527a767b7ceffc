package translate

import "unicode/utf16"

// ApplyEdit splices newText into text at the UTF-16 code-unit span described
// by r (as measured by idx, which must have been built from text), and
// returns the resulting text. This is how DocumentMirror applies each
// incremental didChange edit locally, in step with the 1-based request sent
// to tsserver.
func ApplyEdit(text string, idx *LineIndex, r LspRange, newText string) string {
	units := utf16.Encode([]rune(text))
	startOffset := idx.absoluteUTF16Offset(r.Start)
	endOffset := idx.absoluteUTF16Offset(r.End)
	if startOffset > len(units) {
		startOffset = len(units)
	}
	if endOffset > len(units) {
		endOffset = len(units)
	}
	if endOffset < startOffset {
		endOffset = startOffset
	}
	out := make([]uint16, 0, len(units)-(endOffset-startOffset)+len(newText))
	out = append(out, units[:startOffset]...)
	out = append(out, utf16.Encode([]rune(newText))...)
	out = append(out, units[endOffset:]...)
	return string(utf16.Decode(out))
}

// absoluteUTF16Offset returns the absolute UTF-16 code-unit offset of p
// within the document idx was built from.
func (idx *LineIndex) absoluteUTF16Offset(p LspPosition) int {
	ts := idx.ToTsLocation(p)
	return idx.lineStartsUTF16[ts.Line-1] + (ts.Offset - 1)
}
