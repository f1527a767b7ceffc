package tsconfig

import (
	"context"
	"testing"
)

type fakeNotifier struct {
	commands []string
	args []any
}

func (f *fakeNotifier) Notify(ctx context.Context, command string, args any) error {
	f.commands = append(f.commands, command)
	f.args = append(f.args, args)
	return nil
}

func TestInitialConfigureEmitsConfigureAndCompilerOptions(t *testing.T) {
	n := &fakeNotifier{}
	m, err := New(n, "/workspace")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.InitialConfigure(context.Background()); err != nil {
		t.Fatalf("InitialConfigure: %v", err)
	}
	if len(n.commands) != 2 || n.commands[0] != "configure" || n.commands[1] != "compilerOptionsForInferredProjects" {
		t.Fatalf("commands = %v, want [configure compilerOptionsForInferredProjects]", n.commands)
	}
	opts := n.args[1].(compilerOptionsArgs).Options
	if opts.Module != "ESNext" || opts.Target != "ES2020" {
		t.Errorf("unexpected default compiler options: %+v", opts)
	}
}

func TestApplyRejectsInvalidPayload(t *testing.T) {
	n := &fakeNotifier{}
	m, err := New(n, "/workspace")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = m.Apply(context.Background(), map[string]any{"hostInfo": 5})
	if err == nil {
		t.Fatal("expected a ConfigError for a non-string hostInfo")
	}
}

func TestApplyMergesPreferencesAndLaterWritesWin(t *testing.T) {
	n := &fakeNotifier{}
	m, err := New(n, "/workspace")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Apply(context.Background(), map[string]any{
		"preferences": map[string]any{"importModuleSpecifierPreference": "relative"},
	}); err != nil {
		t.Fatalf("Apply (first): %v", err)
	}
	if err := m.Apply(context.Background(), map[string]any{
		"preferences": map[string]any{"importModuleSpecifierPreference": "non-relative"},
	}); err != nil {
		t.Fatalf("Apply (second): %v", err)
	}
	last := n.args[len(n.args)-2].(configureArgs)
	if last.Preferences.ImportModuleSpecifierPreference != "non-relative" {
		t.Errorf("importModuleSpecifierPreference = %q, want %q (later write should win)", last.Preferences.ImportModuleSpecifierPreference, "non-relative")
	}
}

func TestNormalizeExcludePatterns(t *testing.T) {
	cases := []struct {
		pattern string
		want string
	}{
		{"/abs/path", "/abs/path"},
		{"*.generated.ts", "/*.generated.ts"},
		{"./relative/path", "/workspace/relative/path"},
		{"node_modules", "/**/node_modules"},
	}
	for _, c := range cases {
		got := NormalizeExcludePatterns("/workspace", []string{c.pattern})[0]
		if got != c.want {
			t.Errorf("normalize(%q) = %q, want %q", c.pattern, got, c.want)
		}
	}
}

func TestMatchesExcludePattern(t *testing.T) {
	patterns := NormalizeExcludePatterns("/workspace", []string{"node_modules"})
	if !MatchesExcludePattern("/workspace/node_modules/foo/index.ts", patterns) {
		t.Error("expected node_modules to match the **/node_modules pattern")
	}
	if MatchesExcludePattern("/workspace/src/index.ts", patterns) {
		t.Error("did not expect src/index.ts to match")
	}
}
