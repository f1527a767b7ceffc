package tsrouter

import "testing"

func TestClassificationTables(t *testing.T) {
	r := New(true)

	cases := []struct {
		command string
		loading bool
		want Target
	}{
		{"navTree", false, TargetSyntax},
		{"format", true, TargetSyntax},
		{"geterr", false, TargetSemantic},
		{"projectInfo", true, TargetSemantic},
		{"definition", true, TargetSyntax},
		{"definition", false, TargetSemantic},
		{"quickinfo", true, TargetSyntax},
		{"quickinfo", false, TargetSemantic},
		{"open", false, TargetBoth},
		{"configure", true, TargetBoth},
		{"unknownCommand", false, TargetSemantic},
	}
	for _, tc := range cases {
		r.SetProjectLoading(tc.loading)
		got := r.Route(tc.command, 0, false)
		if got != tc.want {
			t.Errorf("Route(%q, loading=%v) = %v, want %v", tc.command, tc.loading, got, tc.want)
		}
	}
}

func TestNoSyntaxServerAlwaysSemantic(t *testing.T) {
	r := New(false)
	r.SetProjectLoading(true)
	if got := r.Route("navTree", 0, false); got != TargetSemantic {
		t.Errorf("without a syntax server, Route = %v, want TargetSemantic", got)
	}
}

func TestPinnedExecutionTargetOverrides(t *testing.T) {
	r := New(true)
	if got := r.Route("geterr", TargetSyntax, true); got != TargetSyntax {
		t.Errorf("pinned target should override classification, got %v", got)
	}
}

func TestProjectLoadingTogglesDynamicRouting(t *testing.T) {
	r := New(true)
	r.SetProjectLoading(true)
	if got := r.Route("references", 0, false); got != TargetSyntax {
		t.Errorf("while loading, references should route to syntax, got %v", got)
	}
	r.SetProjectLoading(false)
	if got := r.Route("references", 0, false); got != TargetSemantic {
		t.Errorf("once loaded, references should route to semantic, got %v", got)
	}
}
