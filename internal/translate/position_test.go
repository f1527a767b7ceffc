package translate

import "testing"

func TestPositionRoundTrip(t *testing.T) {
	text := "const x: number = 1;\nconst y = 2;\n"
	idx := NewLineIndex(text)

	positions := []LspPosition{
		{Line: 0, Character: 0},
		{Line: 0, Character: 6},
		{Line: 1, Character: 5},
	}
	for _, p := range positions {
		ts := idx.ToTsLocation(p)
		got := FromTsLocation(ts)
		if got != p {
			t.Errorf("round trip of %+v via %+v produced %+v", p, ts, got)
		}
	}
}

func TestFromTsLocationClampsAtZero(t *testing.T) {
	got := FromTsLocation(TsLocation{Line: 0, Offset: 0})
	if got != (LspPosition{Line: 0, Character: 0}) {
		t.Errorf("got %+v, want (0,0)", got)
	}
}

func TestToTsLocationIsOneBased(t *testing.T) {
	idx := NewLineIndex("abc\n")
	got := idx.ToTsLocation(LspPosition{Line: 0, Character: 0})
	if got != (TsLocation{Line: 1, Offset: 1}) {
		t.Errorf("got %+v, want (1,1)", got)
	}
}

func TestIntersectRangesDisjoint(t *testing.T) {
	a := LspRange{Start: LspPosition{0, 0}, End: LspPosition{0, 5}}
	b := LspRange{Start: LspPosition{0, 6}, End: LspPosition{0, 10}}
	if _, ok := IntersectRanges(a, b); ok {
		t.Error("disjoint ranges should not intersect")
	}
}

func TestIntersectRangesOverlap(t *testing.T) {
	a := LspRange{Start: LspPosition{0, 0}, End: LspPosition{0, 10}}
	b := LspRange{Start: LspPosition{0, 5}, End: LspPosition{0, 15}}
	got, ok := IntersectRanges(a, b)
	if !ok {
		t.Fatal("overlapping ranges should intersect")
	}
	want := LspRange{Start: LspPosition{0, 5}, End: LspPosition{0, 10}}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestUTF16SurrogatePairCounts2Units(t *testing.T) {
	// U+1F600 (grinning face) requires a surrogate pair in UTF-16.
	text := "\U0001F600x\n"
	idx := NewLineIndex(text)
	got := idx.ToTsLocation(LspPosition{Line: 0, Character: 2})
	if got.Offset != 3 {
		t.Errorf("offset after the astral character = %d, want 3", got.Offset)
	}
}
