package translate

import "testing"

func TestSymbolKindFromScriptElementKind(t *testing.T) {
	cases := map[string]LspSymbolKind{
		"class": SymbolKindClass,
		"interface": SymbolKindInterface,
		"method": SymbolKindMethod,
		"const": SymbolKindConstant,
	}
	for kind, want := range cases {
		if got := SymbolKindFromScriptElementKind(kind); got != want {
			t.Errorf("SymbolKindFromScriptElementKind(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestSymbolKindFromScriptElementKindDefaultsToVariable(t *testing.T) {
	if got := SymbolKindFromScriptElementKind("some-unknown-future-kind"); got != SymbolKindVariable {
		t.Errorf("default = %d, want SymbolKindVariable", got)
	}
}
