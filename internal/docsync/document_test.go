package docsync

import (
	"context"
	"testing"

	"github.com/typescript-language-server/tsla/internal/translate"
)

type fakeSender struct {
	notified []string
	cancelled []string
}

func (f *fakeSender) NotifyFence(ctx context.Context, command string, args any) error {
	f.notified = append(f.notified, command)
	return nil
}

func (f *fakeSender) CancelForResource(uri string) {
	f.cancelled = append(f.cancelled, uri)
}

func TestDidOpenRejectsUnsupportedLanguage(t *testing.T) {
	sender := &fakeSender{}
	m := NewMirror(sender, nil, nil)
	if err := m.DidOpen(context.Background(), "file:///a.py", "python", 1, "x = 1", ""); err == nil {
		t.Fatal("expected an error for an unsupported language id")
	}
}

func TestDidOpenSendsOpenAndTracksDocument(t *testing.T) {
	sender := &fakeSender{}
	var opened *Document
	m := NewMirror(sender, func(d *Document) { opened = d }, nil)

	if err := m.DidOpen(context.Background(), "file:///a.ts", "typescript", 1, "const x = 1;\n", "/proj"); err != nil {
		t.Fatalf("DidOpen: %v", err)
	}
	if len(sender.notified) != 1 || sender.notified[0] != "open" {
		t.Fatalf("notified = %v, want [open]", sender.notified)
	}
	if opened == nil || opened.URI != "file:///a.ts" {
		t.Fatalf("onOpen callback not invoked with the right document: %+v", opened)
	}
	if _, ok := m.Get("file:///a.ts"); !ok {
		t.Fatal("document should be tracked by URI")
	}
}

func TestDidChangeRejectsNonIncreasingVersion(t *testing.T) {
	sender := &fakeSender{}
	m := NewMirror(sender, nil, nil)
	ctx := context.Background()
	if err := m.DidOpen(ctx, "file:///a.ts", "typescript", 2, "abc", ""); err != nil {
		t.Fatal(err)
	}
	err := m.DidChange(ctx, "file:///a.ts", 2, []ChangeEvent{{NewText: "xyz"}})
	if err == nil {
		t.Fatal("expected an error for a non-increasing version")
	}
}

func TestDidChangeCancelsResourceBeforeApplying(t *testing.T) {
	sender := &fakeSender{}
	m := NewMirror(sender, nil, nil)
	ctx := context.Background()
	if err := m.DidOpen(ctx, "file:///a.ts", "typescript", 1, "const x = 1;\n", ""); err != nil {
		t.Fatal(err)
	}
	r := translate.LspRange{Start: translate.LspPosition{Line: 0, Character: 10}, End: translate.LspPosition{Line: 0, Character: 11}}
	if err := m.DidChange(ctx, "file:///a.ts", 2, []ChangeEvent{{Range: &r, NewText: "2"}}); err != nil {
		t.Fatalf("DidChange: %v", err)
	}
	if len(sender.cancelled) != 1 || sender.cancelled[0] != "file:///a.ts" {
		t.Fatalf("cancelled = %v, want [file:///a.ts]", sender.cancelled)
	}
	doc, _ := m.Get("file:///a.ts")
	if doc.Text != "const x = 2;\n" {
		t.Errorf("text = %q, want %q", doc.Text, "const x = 2;\n")
	}
	if doc.Version != 2 {
		t.Errorf("version = %d, want 2", doc.Version)
	}
}

func TestDidCloseReportsRemainingDocuments(t *testing.T) {
	sender := &fakeSender{}
	var remaining []*Document
	m := NewMirror(sender, nil, func(uri string, docs []*Document) { remaining = docs })
	ctx := context.Background()
	if err := m.DidOpen(ctx, "file:///a.ts", "typescript", 1, "a", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.DidOpen(ctx, "file:///b.ts", "typescript", 1, "b", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.DidClose(ctx, "file:///a.ts"); err != nil {
		t.Fatalf("DidClose: %v", err)
	}
	if len(remaining) != 1 || remaining[0].URI != "file:///b.ts" {
		t.Fatalf("remaining = %v, want [file:///b.ts]", remaining)
	}
	if _, ok := m.Get("file:///a.ts"); ok {
		t.Fatal("closed document should no longer be tracked")
	}
}

func TestFilePathURIRoundTripForNonFileScheme(t *testing.T) {
	uris := []string{
		"untitled:Untitled-1",
		"git:/repo/path/file.ts?ref=HEAD",
	}
	for _, uri := range uris {
		p, err := PathFromURI(uri)
		if err != nil {
			t.Fatalf("PathFromURI(%q): %v", uri, err)
		}
		back, err := URIFromPath(p)
		if err != nil {
			t.Fatalf("URIFromPath(%q): %v", p, err)
		}
		roundTrip, err := PathFromURI(back)
		if err != nil {
			t.Fatalf("PathFromURI(%q) on round trip: %v", back, err)
		}
		if roundTrip != p {
			t.Errorf("round trip of %q via path %q produced %q, want %q", uri, p, roundTrip, p)
		}
	}
}
