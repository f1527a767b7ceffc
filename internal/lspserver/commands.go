// Package lspserver binds LSP endpoints to the session's tsserver
// operations and the handful of per-feature handlers: code actions,
// inlay hints, call hierarchy, and willRenameFiles.
package lspserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/typescript-language-server/tsla/internal/docsync"
	"github.com/typescript-language-server/tsla/internal/tsclient"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/translate"
	"github.com/typescript-language-server/tsla/internal/tsproto"
	"github.com/typescript-language-server/tsla/internal/tsversion"
)

// TsRequester is the narrow surface lspserver needs from the session,
// structurally satisfied by *tssession.Session.
type TsRequester interface {
	Execute(ctx context.Context, command string, args any, cfg tsclient.Config) tserr.Outcome
	ExecuteAsync(ctx context.Context, command string, args any, cfg tsclient.Config) (tsproto.Seq, <-chan tserr.Outcome, error)
	Notify(ctx context.Context, command string, args any) error
	Version() tsversion.ApiVersion
}

// uriFromPath reports the best-effort URI for a tsserver file path; callers
// that reach this only ever hand back paths PathFromURI itself produced, so
// the error case (a malformed in-memory encoding) is not expected in
// practice and degrades to an empty URI rather than failing the request.
func uriFromPath(p string) string {
	u, err := docsync.URIFromPath(p)
	if err != nil {
		return ""
	}
	return u
}

// fileLocationArgs is the common {file, line, offset} shape almost every
// per-position tsserver command takes.
type fileLocationArgs struct {
	File string `json:"file"`
	Line int `json:"line"`
	Offset int `json:"offset"`
}

func locArgs(filePath string, loc translate.TsLocation) fileLocationArgs {
	return fileLocationArgs{File: filePath, Line: loc.Line, Offset: loc.Offset}
}

// docAt resolves a document and the tsserver-coordinate location for an LSP
// position, a step almost every positional command needs.
func docAt(mirror *docsync.Mirror, uri string, pos translate.LspPosition) (*docsync.Document, translate.TsLocation, error) {
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, translate.TsLocation{}, fmt.Errorf("lspserver: %s is not open", uri)
	}
	return doc, doc.LineIndex().ToTsLocation(pos), nil
}

// --- quickinfo (hover) ---

type quickInfoResponse struct {
	Kind string `json:"kind"`
	KindModifiers string `json:"kindModifiers"`
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
	DisplayString string `json:"displayString"`
	Documentation []translate.DisplayPart `json:"documentation"`
	Tags []translate.JSDocTagInfo `json:"tags"`
}

// HoverResult is the facade's plain result for a hover request.
type HoverResult struct {
	Markdown string
	Range translate.LspRange
}

func Hover(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) (*HoverResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	outcome := ts.Execute(ctx, "quickinfo", locArgs(doc.FilePath, loc), tsclient.Config{})
	if outcome.Err != nil {
		if outcome.Err.Kind == tserr.KindServerError {
			return nil, nil
		}
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp quickInfoResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding quickinfo response: %w", err)
	}

	md := "```ts\n" + resp.DisplayString + "\n```"
	if doc := translate.RenderDocumentation(resp.Documentation); doc != "" {
		md += "\n\n" + doc
	}
	for _, tag := range resp.Tags {
		md += "\n\n" + translate.RenderTag(tag)
	}
	return &HoverResult{
		Markdown: md,
		Range: translate.FromTsRange(translate.TsRange{Start: resp.Start, End: resp.End}),
	}, nil
}

// --- definition / typeDefinition / implementation ---

type fileSpan struct {
	File string `json:"file"`
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
}

// LocationResult is one URI+Range pair, the facade's plain result shape for
// definition/typeDefinition/implementation/references.
type LocationResult struct {
	URI string
	Range translate.LspRange
}

func spansToLocations(spans []fileSpan) []LocationResult {
	out := make([]LocationResult, 0, len(spans))
	for _, s := range spans {
		out = append(out, LocationResult{
			URI: uriFromPath(s.File),
			Range: translate.FromTsRange(translate.TsRange{Start: s.Start, End: s.End}),
		})
	}
	return out
}

func positionalSpanCommand(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition, command string) ([]LocationResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	outcome := ts.Execute(ctx, command, locArgs(doc.FilePath, loc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var spans []fileSpan
	if err := json.Unmarshal(outcome.Body, &spans); err != nil {
		return nil, fmt.Errorf("lspserver: decoding %s response: %w", command, err)
	}
	return spansToLocations(spans), nil
}

func Definition(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) ([]LocationResult, error) {
	return positionalSpanCommand(ctx, ts, mirror, uri, pos, "definition")
}

func TypeDefinition(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) ([]LocationResult, error) {
	return positionalSpanCommand(ctx, ts, mirror, uri, pos, "typeDefinition")
}

func Implementation(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) ([]LocationResult, error) {
	return positionalSpanCommand(ctx, ts, mirror, uri, pos, "implementation")
}

// --- references ---

type referenceItem struct {
	File string `json:"file"`
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
}

type referencesResponse struct {
	Refs []referenceItem `json:"refs"`
}

func References(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition, includeDeclaration bool) ([]LocationResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	outcome := ts.Execute(ctx, "references", locArgs(doc.FilePath, loc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp referencesResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding references response: %w", err)
	}
	spans := make([]fileSpan, 0, len(resp.Refs))
	for _, r := range resp.Refs {
		spans = append(spans, fileSpan{File: r.File, Start: r.Start, End: r.End})
	}
	return spansToLocations(spans), nil
}

// --- documentHighlights ---

type highlightSpan struct {
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
	Kind string `json:"kind"`
}

type documentHighlightsResponseItem struct {
	File string `json:"file"`
	HighlightSpans []highlightSpan `json:"highlightSpans"`
}

// HighlightResult is one highlighted span.
type HighlightResult struct {
	Range translate.LspRange
	Kind string
}

func DocumentHighlights(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) ([]HighlightResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	type args struct {
		fileLocationArgs
		FilesToSearch []string `json:"filesToSearch"`
	}
	outcome := ts.Execute(ctx, "documentHighlights", args{fileLocationArgs: locArgs(doc.FilePath, loc), FilesToSearch: []string{doc.FilePath}}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp []documentHighlightsResponseItem
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding documentHighlights response: %w", err)
	}
	var out []HighlightResult
	for _, item := range resp {
		for _, s := range item.HighlightSpans {
			out = append(out, HighlightResult{
				Range: translate.FromTsRange(translate.TsRange{Start: s.Start, End: s.End}),
				Kind: s.Kind,
			})
		}
	}
	return out, nil
}

// --- completion ---

type completionEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	SortText string `json:"sortText"`
	InsertText string `json:"insertText,omitempty"`
	IsSnippet bool `json:"isSnippet,omitempty"`
}

type completionInfoResponse struct {
	Entries []completionEntry `json:"entries"`
}

// CompletionItemResult is one completion entry, plain-typed.
type CompletionItemResult struct {
	Label string
	Kind string
	SortText string
	InsertText string
}

func Completion(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition, triggerCharacter string) ([]CompletionItemResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	type args struct {
		fileLocationArgs
		IncludeExternalModuleExports bool `json:"includeExternalModuleExports"`
		IncludeInsertTextCompletions bool `json:"includeInsertTextCompletions"`
		TriggerCharacter string `json:"triggerCharacter,omitempty"`
	}
	outcome := ts.Execute(ctx, "completionInfo", args{
		fileLocationArgs: locArgs(doc.FilePath, loc),
		IncludeExternalModuleExports: true,
		IncludeInsertTextCompletions: true,
		TriggerCharacter: triggerCharacter,
	}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp completionInfoResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding completionInfo response: %w", err)
	}
	out := make([]CompletionItemResult, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		insert := e.InsertText
		if insert == "" {
			insert = e.Name
		}
		out = append(out, CompletionItemResult{Label: e.Name, Kind: e.Kind, SortText: e.SortText, InsertText: insert})
	}
	return out, nil
}

type completionEntryDetailsResponse struct {
	Name string `json:"name"`
	DisplayParts []translate.DisplayPart `json:"displayParts"`
	Documentation []translate.DisplayPart `json:"documentation"`
	Tags []translate.JSDocTagInfo `json:"tags"`
}

// CompletionDetailResult is the resolved detail/documentation for one item.
type CompletionDetailResult struct {
	Detail string
	Markdown string
}

func CompletionResolve(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition, entryName string) (*CompletionDetailResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	type args struct {
		fileLocationArgs
		EntryNames []string `json:"entryNames"`
	}
	outcome := ts.Execute(ctx, "completionEntryDetails", args{fileLocationArgs: locArgs(doc.FilePath, loc), EntryNames: []string{entryName}}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp []completionEntryDetailsResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding completionEntryDetails response: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	detail := translate.RenderDisplayParts(resp[0].DisplayParts)
	md := translate.RenderDocumentation(resp[0].Documentation)
	for _, tag := range resp[0].Tags {
		if md != "" {
			md += "\n\n"
		}
		md += translate.RenderTag(tag)
	}
	return &CompletionDetailResult{Detail: detail, Markdown: md}, nil
}

// --- signatureHelp ---

type signatureParameter struct {
	Name string `json:"name"`
	DisplayParts []translate.DisplayPart `json:"displayParts"`
}

type signatureItem struct {
	Prefix []translate.DisplayPart `json:"prefixDisplayParts"`
	Separator []translate.DisplayPart `json:"separatorDisplayParts"`
	Suffix []translate.DisplayPart `json:"suffixDisplayParts"`
	Parameters []signatureParameter `json:"parameters"`
}

type signatureHelpResponse struct {
	Items []signatureItem `json:"items"`
	SelectedItemIndex int `json:"selectedItemIndex"`
	ArgumentIndex int `json:"argumentIndex"`
}

// SignatureHelpResult is the facade's plain signature-help result.
type SignatureHelpResult struct {
	Signatures []string
	ActiveSignature int
	ActiveParameter int
}

func SignatureHelp(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) (*SignatureHelpResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	outcome := ts.Execute(ctx, "signatureHelp", locArgs(doc.FilePath, loc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp signatureHelpResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding signatureHelp response: %w", err)
	}
	sigs := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		var b string
		b += translate.RenderDisplayParts(it.Prefix)
		for i, p := range it.Parameters {
			if i > 0 {
				b += translate.RenderDisplayParts(it.Separator)
			}
			b += translate.RenderDisplayParts(p.DisplayParts)
		}
		b += translate.RenderDisplayParts(it.Suffix)
		sigs = append(sigs, b)
	}
	return &SignatureHelpResult{Signatures: sigs, ActiveSignature: resp.SelectedItemIndex, ActiveParameter: resp.ArgumentIndex}, nil
}

// --- documentSymbol (navtree) ---

type navTreeResponse struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
	Spans []translate.TsRange `json:"-"`
	Start translate.TsLocation `json:"-"`
	End translate.TsLocation `json:"-"`
	ChildItems []navTreeResponse `json:"childItems"`
	RawSpans []rawTextSpan `json:"spans"`
	SelectionSpan *rawTextSpan `json:"nameSpan"`
}

type rawTextSpan struct {
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
}

// SymbolResult is a DocumentSymbol-shaped plain tree node.
type SymbolResult struct {
	Name string
	Kind string
	Range translate.LspRange
	SelectionRange translate.LspRange
	Children []SymbolResult
}

func DocumentSymbols(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string) ([]SymbolResult, error) {
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, fmt.Errorf("lspserver: %s is not open", uri)
	}
	outcome := ts.Execute(ctx, "navtree", struct {
		File string `json:"file"`
	}{File: doc.FilePath}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var root navTreeResponse
	if err := json.Unmarshal(outcome.Body, &root); err != nil {
		return nil, fmt.Errorf("lspserver: decoding navtree response: %w", err)
	}
	// the root node is the source file itself; only its children are real
	// symbols, matching how the upstream protocol structures navtree.
	out := make([]SymbolResult, 0, len(root.ChildItems))
	for _, c := range root.ChildItems {
		out = append(out, navTreeToSymbol(c))
	}
	return out, nil
}

func navTreeToSymbol(n navTreeResponse) SymbolResult {
	var rng translate.LspRange
	if len(n.RawSpans) > 0 {
		rng = translate.FromTsRange(translate.TsRange{Start: n.RawSpans[0].Start, End: n.RawSpans[0].End})
	}
	selRange := rng
	if n.SelectionSpan != nil {
		selRange = translate.FromTsRange(translate.TsRange{Start: n.SelectionSpan.Start, End: n.SelectionSpan.End})
	}
	children := make([]SymbolResult, 0, len(n.ChildItems))
	for _, c := range n.ChildItems {
		children = append(children, navTreeToSymbol(c))
	}
	return SymbolResult{Name: n.Text, Kind: n.Kind, Range: rng, SelectionRange: selRange, Children: children}
}

// --- rename ---

type renameLocation struct {
	File string `json:"file"`
	Locs []fileTextSpan `json:"locs"`
}

type fileTextSpan struct {
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
}

type renameResponse struct {
	Info struct {
		CanRename bool `json:"canRename"`
		LocalizedErrorMessage string `json:"localizedErrorMessage"`
	} `json:"info"`
	Locs []renameLocation `json:"locs"`
}

// RenameEdit is one file's worth of rename edits.
type RenameEdit struct {
	URI string
	Spans []translate.LspRange
}

func Rename(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition, newName string) ([]RenameEdit, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	type args struct {
		fileLocationArgs
		FindInStrings bool `json:"findInStrings"`
		FindInComments bool `json:"findInComments"`
	}
	outcome := ts.Execute(ctx, "rename", args{fileLocationArgs: locArgs(doc.FilePath, loc)}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var resp renameResponse
	if err := json.Unmarshal(outcome.Body, &resp); err != nil {
		return nil, fmt.Errorf("lspserver: decoding rename response: %w", err)
	}
	if !resp.Info.CanRename {
		return nil, fmt.Errorf("lspserver: cannot rename here: %s", resp.Info.LocalizedErrorMessage)
	}
	out := make([]RenameEdit, 0, len(resp.Locs))
	for _, l := range resp.Locs {
		spans := make([]translate.LspRange, 0, len(l.Locs))
		for _, s := range l.Locs {
			spans = append(spans, translate.FromTsRange(translate.TsRange{Start: s.Start, End: s.End}))
		}
		out = append(out, RenameEdit{URI: uriFromPath(l.File), Spans: spans})
	}
	return out, nil
}

// --- foldingRange (getOutliningSpans) ---

type outliningSpan struct {
	TextSpan rawTextSpan `json:"textSpan"`
	Kind string `json:"kind"`
}

func FoldingRanges(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string) ([]translate.LspRange, error) {
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, fmt.Errorf("lspserver: %s is not open", uri)
	}
	outcome := ts.Execute(ctx, "getOutliningSpans", struct {
		File string `json:"file"`
	}{File: doc.FilePath}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var spans []outliningSpan
	if err := json.Unmarshal(outcome.Body, &spans); err != nil {
		return nil, fmt.Errorf("lspserver: decoding getOutliningSpans response: %w", err)
	}
	out := make([]translate.LspRange, 0, len(spans))
	for _, s := range spans {
		out = append(out, translate.FromTsRange(translate.TsRange{Start: s.TextSpan.Start, End: s.TextSpan.End}))
	}
	return out, nil
}

// --- inlayHint (provideInlayHints, tsserver >= v4.4) ---

type inlayHintItem struct {
	Text string `json:"text"`
	Position translate.TsLocation `json:"position"`
	Kind string `json:"kind"`
	WhitespaceBefore bool `json:"whitespaceBefore,omitempty"`
	WhitespaceAfter bool `json:"whitespaceAfter,omitempty"`
}

// InlayHintResult is one rendered inlay hint.
type InlayHintResult struct {
	Label string
	Position translate.LspPosition
	Kind string
}

// ErrMinVersion is returned when a feature is gated behind an ApiVersion the
// running tsserver does not meet; no request is sent to tsserver in that
// case.
var ErrMinVersion = fmt.Errorf("lspserver: tsserver version below the required minimum")

func InlayHints(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, r translate.LspRange) ([]InlayHintResult, error) {
	if !ts.Version().AtLeast(tsversion.MinInlayHints) {
		return nil, ErrMinVersion
	}
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, fmt.Errorf("lspserver: %s is not open", uri)
	}
	tsRange := doc.LineIndex().ToTsRange(r)
	type args struct {
		File string `json:"file"`
		Start translate.TsLocation `json:"start"`
		End translate.TsLocation `json:"end"`
	}
	outcome := ts.Execute(ctx, "provideInlayHints", args{File: doc.FilePath, Start: tsRange.Start, End: tsRange.End}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var hints []inlayHintItem
	if err := json.Unmarshal(outcome.Body, &hints); err != nil {
		return nil, fmt.Errorf("lspserver: decoding provideInlayHints response: %w", err)
	}
	out := make([]InlayHintResult, 0, len(hints))
	for _, h := range hints {
		out = append(out, InlayHintResult{Label: h.Text, Position: translate.FromTsLocation(h.Position), Kind: h.Kind})
	}
	return out, nil
}

// --- call hierarchy ---

type callHierarchyItem struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Span rawTextSpan `json:"span"`
	SelectionSpan rawTextSpan `json:"selectionSpan"`
}

// CallHierarchyItemResult is the plain URI+Range shape for one item.
type CallHierarchyItemResult struct {
	Name string
	Kind string
	URI string
	Range translate.LspRange
	SelectionRange translate.LspRange
}

func toCallHierarchyItemResult(item callHierarchyItem) CallHierarchyItemResult {
	return CallHierarchyItemResult{
		Name: item.Name,
		Kind: item.Kind,
		URI: uriFromPath(item.File),
		Range: translate.FromTsRange(translate.TsRange{Start: item.Span.Start, End: item.Span.End}),
		SelectionRange: translate.FromTsRange(translate.TsRange{Start: item.SelectionSpan.Start, End: item.SelectionSpan.End}),
	}
}

func PrepareCallHierarchy(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, pos translate.LspPosition) ([]CallHierarchyItemResult, error) {
	doc, loc, err := docAt(mirror, uri, pos)
	if err != nil {
		return nil, err
	}
	outcome := ts.Execute(ctx, "prepareCallHierarchy", locArgs(doc.FilePath, loc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var items []callHierarchyItem
	raw := outcome.Body
	// tsserver returns either a single item or an array depending on
	// ambiguity at the cursor; normalize to a slice.
	if len(raw) > 0 && raw[0] == '{' {
		var one callHierarchyItem
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("lspserver: decoding prepareCallHierarchy response: %w", err)
		}
		items = []callHierarchyItem{one}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("lspserver: decoding prepareCallHierarchy response: %w", err)
	}
	out := make([]CallHierarchyItemResult, 0, len(items))
	for _, it := range items {
		out = append(out, toCallHierarchyItemResult(it))
	}
	return out, nil
}

type callHierarchyIncomingCallItem struct {
	From callHierarchyItem `json:"from"`
	FromSpans []rawTextSpan `json:"fromSpans"`
}

type callHierarchyOutgoingCallItem struct {
	To callHierarchyItem `json:"to"`
	FromSpans []rawTextSpan `json:"fromSpans"`
}

// CallHierarchyCallResult is one incoming/outgoing call edge.
type CallHierarchyCallResult struct {
	Item CallHierarchyItemResult
	FromRanges []translate.LspRange
}

func spansToRanges(spans []rawTextSpan) []translate.LspRange {
	out := make([]translate.LspRange, 0, len(spans))
	for _, s := range spans {
		out = append(out, translate.FromTsRange(translate.TsRange{Start: s.Start, End: s.End}))
	}
	return out
}

func IncomingCalls(ctx context.Context, ts TsRequester, file string, tsLoc translate.TsLocation) ([]CallHierarchyCallResult, error) {
	outcome := ts.Execute(ctx, "provideCallHierarchyIncomingCalls", locArgs(file, tsLoc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var items []callHierarchyIncomingCallItem
	if err := json.Unmarshal(outcome.Body, &items); err != nil {
		return nil, fmt.Errorf("lspserver: decoding provideCallHierarchyIncomingCalls response: %w", err)
	}
	out := make([]CallHierarchyCallResult, 0, len(items))
	for _, it := range items {
		out = append(out, CallHierarchyCallResult{Item: toCallHierarchyItemResult(it.From), FromRanges: spansToRanges(it.FromSpans)})
	}
	return out, nil
}

func OutgoingCalls(ctx context.Context, ts TsRequester, file string, tsLoc translate.TsLocation) ([]CallHierarchyCallResult, error) {
	outcome := ts.Execute(ctx, "provideCallHierarchyOutgoingCalls", locArgs(file, tsLoc), tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var items []callHierarchyOutgoingCallItem
	if err := json.Unmarshal(outcome.Body, &items); err != nil {
		return nil, fmt.Errorf("lspserver: decoding provideCallHierarchyOutgoingCalls response: %w", err)
	}
	out := make([]CallHierarchyCallResult, 0, len(items))
	for _, it := range items {
		out = append(out, CallHierarchyCallResult{Item: toCallHierarchyItemResult(it.To), FromRanges: spansToRanges(it.FromSpans)})
	}
	return out, nil
}

// --- workspace/symbol (navto) ---

type navtoItem struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
	ContainerName string `json:"containerName"`
}

// WorkspaceSymbolResult is the facade's plain workspace-symbol result.
type WorkspaceSymbolResult struct {
	Name string
	Kind string
	URI string
	Range translate.LspRange
	ContainerName string
}

func WorkspaceSymbols(ctx context.Context, ts TsRequester, query string) ([]WorkspaceSymbolResult, error) {
	outcome := ts.Execute(ctx, "navto", struct {
		SearchValue string `json:"searchValue"`
		MaxResultCount int `json:"maxResultCount"`
	}{SearchValue: query, MaxResultCount: 256}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var items []navtoItem
	if err := json.Unmarshal(outcome.Body, &items); err != nil {
		return nil, fmt.Errorf("lspserver: decoding navto response: %w", err)
	}
	out := make([]WorkspaceSymbolResult, 0, len(items))
	for _, it := range items {
		out = append(out, WorkspaceSymbolResult{
			Name: it.Name,
			Kind: it.Kind,
			URI: uriFromPath(it.File),
			Range: translate.FromTsRange(translate.TsRange{Start: it.Start, End: it.End}),
			ContainerName: it.ContainerName,
		})
	}
	return out, nil
}

// --- willRenameFiles (getEditsForFileRename) ---

// FileRenameEdit mirrors one file's contribution to a willRenameFiles
// WorkspaceEdit.
type FileRenameEdit struct {
	URI string
	Edits []translate.LspRange
	Texts []string
}

func EditsForFileRename(ctx context.Context, ts TsRequester, oldFilePath, newFilePath string) ([]FileRenameEdit, error) {
	type args struct {
		OldFilePath string `json:"oldFilePath"`
		NewFilePath string `json:"newFilePath"`
	}
	outcome := ts.Execute(ctx, "getEditsForFileRename", args{OldFilePath: oldFilePath, NewFilePath: newFilePath}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	type fileCodeEdit struct {
		FileName string `json:"fileName"`
		TextChanges []struct {
			Span rawTextSpan `json:"span"`
			NewText string `json:"newText"`
		} `json:"textChanges"`
	}
	var edits []fileCodeEdit
	if err := json.Unmarshal(outcome.Body, &edits); err != nil {
		return nil, fmt.Errorf("lspserver: decoding getEditsForFileRename response: %w", err)
	}
	out := make([]FileRenameEdit, 0, len(edits))
	for _, e := range edits {
		fre := FileRenameEdit{URI: uriFromPath(e.FileName)}
		for _, c := range e.TextChanges {
			fre.Edits = append(fre.Edits, translate.FromTsRange(translate.TsRange{Start: c.Span.Start, End: c.Span.End}))
			fre.Texts = append(fre.Texts, c.NewText)
		}
		out = append(out, fre)
	}
	return out, nil
}

// --- formatting ---

type codeEditTextChange struct {
	Span rawTextSpan `json:"span"`
	NewText string `json:"newText"`
}

// FormatEdit is one plain text edit.
type FormatEdit struct {
	Range translate.LspRange
	NewText string
}

func Format(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, r translate.LspRange) ([]FormatEdit, error) {
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, fmt.Errorf("lspserver: %s is not open", uri)
	}
	tsRange := doc.LineIndex().ToTsRange(r)
	type args struct {
		File string `json:"file"`
		Line int `json:"line"`
		Offset int `json:"offset"`
		EndLine int `json:"endLine"`
		EndOffset int `json:"endOffset"`
	}
	outcome := ts.Execute(ctx, "format", args{File: doc.FilePath, Line: tsRange.Start.Line, Offset: tsRange.Start.Offset, EndLine: tsRange.End.Line, EndOffset: tsRange.End.Offset}, tsclient.Config{})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.IsNoContent() {
		return nil, nil
	}
	var changes []codeEditTextChange
	if err := json.Unmarshal(outcome.Body, &changes); err != nil {
		return nil, fmt.Errorf("lspserver: decoding format response: %w", err)
	}
	out := make([]FormatEdit, 0, len(changes))
	for _, c := range changes {
		out = append(out, FormatEdit{Range: translate.FromTsRange(translate.TsRange{Start: c.Span.Start, End: c.Span.End}), NewText: c.NewText})
	}
	return out, nil
}

// --- codeAction ---

// CodeActionResult is a plain code action: a human description plus the set
// of per-file edits it applies.
type CodeActionResult struct {
	Title string
	Kind string
	Edits []FileRenameEdit
}

func codeFixesToResults(body json.RawMessage) ([]CodeActionResult, error) {
	type codeFixAction struct {
		FixName string `json:"fixName"`
		Description string `json:"description"`
		Changes []struct {
			FileName string `json:"fileName"`
			TextChanges []codeEditTextChange `json:"textChanges"`
		} `json:"changes"`
	}
	var fixes []codeFixAction
	if err := json.Unmarshal(body, &fixes); err != nil {
		return nil, fmt.Errorf("lspserver: decoding getCodeFixes response: %w", err)
	}
	out := make([]CodeActionResult, 0, len(fixes))
	for _, f := range fixes {
		car := CodeActionResult{Title: f.Description, Kind: "quickfix"}
		for _, ch := range f.Changes {
			fre := FileRenameEdit{URI: uriFromPath(ch.FileName)}
			for _, tc := range ch.TextChanges {
				fre.Edits = append(fre.Edits, translate.FromTsRange(translate.TsRange{Start: tc.Span.Start, End: tc.Span.End}))
				fre.Texts = append(fre.Texts, tc.NewText)
			}
			car.Edits = append(car.Edits, fre)
		}
		out = append(out, car)
	}
	return out, nil
}

// CodeActions issues getCodeFixes for the given error codes in range r, and
// getApplicableRefactors for refactor-style actions.
func CodeActions(ctx context.Context, ts TsRequester, mirror *docsync.Mirror, uri string, r translate.LspRange, errorCodes []int, includeRefactors bool) ([]CodeActionResult, error) {
	doc, ok := mirror.Get(uri)
	if !ok {
		return nil, fmt.Errorf("lspserver: %s is not open", uri)
	}
	tsRange := doc.LineIndex().ToTsRange(r)
	var out []CodeActionResult
	if len(errorCodes) > 0 {
		type args struct {
			File string `json:"file"`
			StartLine int `json:"startLine"`
			StartOffset int `json:"startOffset"`
			EndLine int `json:"endLine"`
			EndOffset int `json:"endOffset"`
			ErrorCodes []int `json:"errorCodes"`
		}
		outcome := ts.Execute(ctx, "getCodeFixes", args{
			File: doc.FilePath, StartLine: tsRange.Start.Line, StartOffset: tsRange.Start.Offset,
			EndLine: tsRange.End.Line, EndOffset: tsRange.End.Offset, ErrorCodes: errorCodes,
		}, tsclient.Config{})
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		if !outcome.IsNoContent() {
			fixes, err := codeFixesToResults(outcome.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, fixes...)
		}
	}
	if includeRefactors {
		// getApplicableRefactors is in none of tsrouter's tables, so it
		// always takes the router's default route to the semantic server.
		type args struct {
			File string `json:"file"`
			StartLine int `json:"startLine"`
			StartOffset int `json:"startOffset"`
			EndLine int `json:"endLine"`
			EndOffset int `json:"endOffset"`
		}
		outcome := ts.Execute(ctx, "getApplicableRefactors", args{
			File: doc.FilePath, StartLine: tsRange.Start.Line, StartOffset: tsRange.Start.Offset,
			EndLine: tsRange.End.Line, EndOffset: tsRange.End.Offset,
		}, tsclient.Config{})
		if outcome.Err == nil && !outcome.IsNoContent() {
			type refactorAction struct {
				Name string `json:"name"`
				Description string `json:"description"`
			}
			type applicableRefactorInfo struct {
				Name string `json:"name"`
				Actions []refactorAction `json:"actions"`
			}
			var infos []applicableRefactorInfo
			if err := json.Unmarshal(outcome.Body, &infos); err == nil {
				for _, info := range infos {
					for _, a := range info.Actions {
						out = append(out, CodeActionResult{Title: a.Description, Kind: "refactor"})
					}
				}
			}
		}
	}
	return out, nil
}
