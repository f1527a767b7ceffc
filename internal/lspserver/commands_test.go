package lspserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/typescript-language-server/tsla/internal/docsync"
	"github.com/typescript-language-server/tsla/internal/tsclient"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/translate"
	"github.com/typescript-language-server/tsla/internal/tsproto"
	"github.com/typescript-language-server/tsla/internal/tsversion"
)

type fakeSender struct{}

func (fakeSender) NotifyFence(ctx context.Context, command string, args any) error { return nil }
func (fakeSender) CancelForResource(uri string) {}

func newTestMirror(t *testing.T, uri, text string) *docsync.Mirror {
	t.Helper()
	m := docsync.NewMirror(fakeSender{}, nil, nil)
	if err := m.DidOpen(context.Background(), uri, "typescript", 1, text, ""); err != nil {
		t.Fatalf("DidOpen: %v", err)
	}
	return m
}

type fakeRequester struct {
	command string
	args any
	outcome tserr.Outcome
	version tsversion.ApiVersion
}

func (f *fakeRequester) Execute(ctx context.Context, command string, args any, cfg tsclient.Config) tserr.Outcome {
	f.command = command
	f.args = args
	return f.outcome
}

func (f *fakeRequester) ExecuteAsync(ctx context.Context, command string, args any, cfg tsclient.Config) (tsproto.Seq, <-chan tserr.Outcome, error) {
	ch := make(chan tserr.Outcome, 1)
	ch <- f.outcome
	return 1, ch, nil
}

func (f *fakeRequester) Notify(ctx context.Context, command string, args any) error { return nil }

func (f *fakeRequester) Version() tsversion.ApiVersion { return f.version }

func jsonOutcome(t *testing.T, v any) tserr.Outcome {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return tserr.Outcome{Body: body}
}

func TestHoverRendersDisplayStringAndDocs(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	req := &fakeRequester{outcome: jsonOutcome(t, quickInfoResponse{
		DisplayString: "const x: number",
		Start: translate.TsLocation{Line: 1, Offset: 7},
		End: translate.TsLocation{Line: 1, Offset: 8},
		Documentation: []translate.DisplayPart{{Kind: "text", Text: "a constant"}},
	})}

	res, err := Hover(context.Background(), req, mirror, "file:///a.ts", translate.LspPosition{Line: 0, Character: 6})
	if err != nil {
		t.Fatalf("Hover: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if req.command != "quickinfo" {
		t.Errorf("command = %q, want quickinfo", req.command)
	}
	want := "```ts\nconst x: number\n```\n\na constant"
	if res.Markdown != want {
		t.Errorf("Markdown = %q, want %q", res.Markdown, want)
	}
}

func TestHoverReturnsNilOnServerError(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	req := &fakeRequester{outcome: tserr.Outcome{Err: tserr.Server("no quickinfo here", 0)}}

	res, err := Hover(context.Background(), req, mirror, "file:///a.ts", translate.LspPosition{})
	if err != nil {
		t.Fatalf("Hover: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result on ServerError, got %+v", res)
	}
}

func TestHoverErrorsWhenDocumentNotOpen(t *testing.T) {
	mirror := docsync.NewMirror(fakeSender{}, nil, nil)
	req := &fakeRequester{}
	if _, err := Hover(context.Background(), req, mirror, "file:///missing.ts", translate.LspPosition{}); err == nil {
		t.Fatal("expected an error for an unopened document")
	}
}

func TestDefinitionTranslatesSpans(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	req := &fakeRequester{outcome: jsonOutcome(t, []fileSpan{
		{File: "/b.ts", Start: translate.TsLocation{Line: 2, Offset: 1}, End: translate.TsLocation{Line: 2, Offset: 5}},
	})}

	locs, err := Definition(context.Background(), req, mirror, "file:///a.ts", translate.LspPosition{})
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}
	if len(locs) != 1 {
		t.Fatalf("len(locs) = %d, want 1", len(locs))
	}
	if locs[0].URI != "file:///b.ts" {
		t.Errorf("URI = %q, want file:///b.ts", locs[0].URI)
	}
	if locs[0].Range.Start.Line != 1 {
		t.Errorf("Range.Start.Line = %d, want 1", locs[0].Range.Start.Line)
	}
}

func TestInlayHintsRejectsBelowMinVersion(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	req := &fakeRequester{version: tsversion.MustParse("4.2.0")}

	_, err := InlayHints(context.Background(), req, mirror, "file:///a.ts", translate.LspRange{})
	if err != ErrMinVersion {
		t.Errorf("err = %v, want ErrMinVersion", err)
	}
}

func TestInlayHintsAcceptsAtMinVersion(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	req := &fakeRequester{
		version: tsversion.MustParse("4.4.0"),
		outcome: jsonOutcome(t, []inlayHintItem{
			{Text: ": number", Position: translate.TsLocation{Line: 1, Offset: 7}, Kind: "type"},
		}),
	}

	hints, err := InlayHints(context.Background(), req, mirror, "file:///a.ts", translate.LspRange{})
	if err != nil {
		t.Fatalf("InlayHints: %v", err)
	}
	if len(hints) != 1 || hints[0].Label != ": number" {
		t.Errorf("hints = %+v", hints)
	}
}

func TestRenameRejectsWhenTsserverRefuses(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "const x = 1;\n")
	resp := renameResponse{}
	resp.Info.CanRename = false
	resp.Info.LocalizedErrorMessage = "you cannot rename this element"
	req := &fakeRequester{outcome: jsonOutcome(t, resp)}

	if _, err := Rename(context.Background(), req, mirror, "file:///a.ts", translate.LspPosition{}, "y"); err == nil {
		t.Fatal("expected an error when canRename is false")
	}
}

func TestWorkspaceSymbolsTranslatesContainerName(t *testing.T) {
	mirror := newTestMirror(t, "file:///a.ts", "")
	_ = mirror
	req := &fakeRequester{outcome: jsonOutcome(t, []navtoItem{
		{Name: "Foo", Kind: "class", File: "/a.ts", ContainerName: "mymodule"},
	})}

	syms, err := WorkspaceSymbols(context.Background(), req, "Foo")
	if err != nil {
		t.Fatalf("WorkspaceSymbols: %v", err)
	}
	if len(syms) != 1 || syms[0].ContainerName != "mymodule" {
		t.Errorf("syms = %+v", syms)
	}
}
