package translate

import "testing"

func TestRenderDocumentationLink(t *testing.T) {
	parts := []DisplayPart{
		{Kind: "text", Text: "See "},
		{Kind: "link", Text: "{@link "},
		{Kind: "linkName", Text: "http://ex/a"},
		{Kind: "link", Text: " "},
		{Kind: "linkText", Text: "foo"},
		{Kind: "link", Text: "}"},
		{Kind: "text", Text: "."},
	}
	got := RenderDocumentation(parts)
	want := "See [foo](http://ex/a)."
	if got != want {
		t.Errorf("RenderDocumentation = %q, want %q", got, want)
	}
}

func TestRenderDocumentationLinkcodeIsMonospace(t *testing.T) {
	parts := []DisplayPart{
		{Kind: "link", Text: "{@linkcode "},
		{Kind: "linkName", Text: "http://ex/a"},
		{Kind: "link", Text: " "},
		{Kind: "linkText", Text: "foo"},
		{Kind: "link", Text: "}"},
	}
	got := RenderDocumentation(parts)
	want := "[`foo`](http://ex/a)"
	if got != want {
		t.Errorf("RenderDocumentation = %q, want %q", got, want)
	}
}

func TestRenderDocumentationLinkWithoutLabelUsesURL(t *testing.T) {
	parts := []DisplayPart{
		{Kind: "link", Text: "{@link "},
		{Kind: "linkName", Text: "http://ex/a"},
		{Kind: "link", Text: "}"},
	}
	got := RenderDocumentation(parts)
	if got != "[http://ex/a](http://ex/a)" {
		t.Errorf("RenderDocumentation = %q", got)
	}
}

func TestRenderTagParam(t *testing.T) {
	tag := JSDocTagInfo{Name: "param", Text: []DisplayPart{{Text: "name - the thing"}}}
	got := RenderTag(tag)
	want := "*@param* `name` — the thing"
	if got != want {
		t.Errorf("RenderTag = %q, want %q", got, want)
	}
}

func TestRenderTagExampleFencesPlainCode(t *testing.T) {
	tag := JSDocTagInfo{Name: "example", Text: []DisplayPart{{Text: "foo;"}}}
	got := RenderTag(tag)
	want := "```ts\nfoo;\n```"
	if got != want {
		t.Errorf("RenderTag = %q, want %q", got, want)
	}
}

func TestRenderTagExampleLeavesExistingFenceAlone(t *testing.T) {
	tag := JSDocTagInfo{Name: "example", Text: []DisplayPart{{Text: "```js\nfoo;\n```"}}}
	got := RenderTag(tag)
	if got != "```js\nfoo;\n```" {
		t.Errorf("RenderTag unexpectedly re-fenced: %q", got)
	}
}
