package lspserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
	"go.bug.st/lsp"
	"go.bug.st/lsp/jsonrpc"

	"github.com/typescript-language-server/tsla/internal/diagnostics"
	"github.com/typescript-language-server/tsla/internal/docsync"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/translate"
	"github.com/typescript-language-server/tsla/internal/tsconfig"
)

// Backend is the narrow surface lspserver needs from a running Session,
// structurally satisfied by *tssession.Session. Start/Shutdown are plain
// methods rather than part of TsRequester since only the lifecycle handlers
// call them.
type Backend interface {
	TsRequester
	Start(ctx context.Context, workspaceFolders []string) error
	Shutdown(ctx context.Context) error
	WorkspaceRoot() string
	ConfigManager() *tsconfig.Manager
	OpenDocuments() *docsync.Mirror
}

// Server implements go.bug.st/lsp's Server interface, translating every
// in-scope LSP endpoint into a tsserver command against the backing
// Session.
type Server struct {
	log logrus.FieldLogger
	conn *lsp.Server
	backend Backend

	ignoredDiagnosticCodes []int
}

// New builds a Server backed by backend, ready to Run over in/out. The
// document mirror is resolved lazily through backend.OpenDocuments, since it
// isn't constructed until Initialize drives backend.Start.
func New(log logrus.FieldLogger, backend Backend, in io.Reader, out io.Writer) *Server {
	s := &Server{log: log, backend: backend}
	s.conn = lsp.NewServer(in, out, s)
	return s
}

// docs returns the backend's live document mirror, or nil if Initialize
// hasn't completed yet.
func (s *Server) docs() *docsync.Mirror {
	return s.backend.OpenDocuments()
}

// Run serves LSP requests until the connection closes.
func (s *Server) Run() {
	s.conn.Run()
}

// Notify sends an adapter-initiated notification to the editor, used as the
// onNotify callback passed to tssession.New ($/typescriptVersion,
// window/showMessage forwarding).
func (s *Server) Notify(method string, params any) {
	s.conn.SendNotification(method, params)
}

// PublishDiagnostics sends textDocument/publishDiagnostics, used as the
// onDiagnostic callback passed to tssession.New.
func (s *Server) PublishDiagnostics(uri string, diags []diagnostics.Diagnostic) {
	s.conn.SendNotification("textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI: lsp.DocumentURI(uri),
		Diagnostics: toLspDiagnostics(diags),
	})
}

func toLspDiagnostics(diags []diagnostics.Diagnostic) []lsp.Diagnostic {
	out := make([]lsp.Diagnostic, 0, len(diags))
	for _, d := range diags {
		ld := lsp.Diagnostic{
			Range: toLspRange(d.Range),
			Severity: lsp.DiagnosticSeverity(d.Severity),
			Code: &lsp.IntOrString{Value: d.Code},
			Source: d.Source,
			Message: d.Message,
		}
		for _, t := range d.Tags {
			ld.Tags = append(ld.Tags, lsp.DiagnosticTag(t))
		}
		out = append(out, ld)
	}
	return out
}

func toLspRange(r translate.LspRange) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: r.Start.Line, Character: r.Start.Character},
		End: lsp.Position{Line: r.End.Line, Character: r.End.Character},
	}
}

func fromLspRange(r lsp.Range) translate.LspRange {
	return translate.LspRange{
		Start: translate.LspPosition{Line: r.Start.Line, Character: r.Start.Character},
		End: translate.LspPosition{Line: r.End.Line, Character: r.End.Character},
	}
}

func fromLspPosition(p lsp.Position) translate.LspPosition {
	return translate.LspPosition{Line: p.Line, Character: p.Character}
}

func outcomeError(err error) *jsonrpc.ResponseError {
	if err == nil {
		return nil
	}
	if tsErr, ok := err.(*tserr.Error); ok {
		return &jsonrpc.ResponseError{Code: tsErr.Code, Message: tsErr.Error()}
	}
	return &jsonrpc.ResponseError{Code: -32603, Message: err.Error()}
}

// --- lifecycle ---

func (s *Server) Initialize(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.InitializeParams) (*lsp.InitializeResult, *jsonrpc.ResponseError) {
	folders := workspaceFoldersFrom(params)
	if err := s.backend.Start(ctx, folders); err != nil {
		return nil, &jsonrpc.ResponseError{Code: -32603, Message: err.Error()}
	}
	trueVal := true
	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptions{
				OpenClose: true,
				Change: lsp.TextDocumentSyncKindIncremental,
			},
			HoverProvider: &lsp.HoverOptions{},
			CompletionProvider: &lsp.CompletionOptions{TriggerCharacters: []string{".", "\"", "'", "/", "@", "<"}, ResolveProvider: true},
			SignatureHelpProvider: &lsp.SignatureHelpOptions{TriggerCharacters: []string{"(", ","}},
			DefinitionProvider: &lsp.DefinitionOptions{},
			TypeDefinitionProvider: &lsp.TypeDefinitionOptions{},
			ImplementationProvider: &lsp.ImplementationOptions{},
			ReferencesProvider: &lsp.ReferenceOptions{},
			DocumentHighlightProvider: &lsp.DocumentHighlightOptions{},
			DocumentSymbolProvider: &lsp.DocumentSymbolOptions{},
			CodeActionProvider: &lsp.CodeActionOptions{ResolveProvider: &trueVal},
			DocumentFormattingProvider: &lsp.DocumentFormattingOptions{},
			RenameProvider: &lsp.RenameOptions{PrepareProvider: &trueVal},
			FoldingRangeProvider: &lsp.FoldingRangeOptions{},
			WorkspaceSymbolProvider: &lsp.WorkspaceSymbolOptions{},
			CallHierarchyProvider: &lsp.CallHierarchyOptions{},
			Workspace: &lsp.ServerCapabilitiesWorkspace{
				FileOperations: &lsp.ServerCapabilitiesWorkspaceFileOperations{
					WillRename: &lsp.FileOperationRegistrationOptions{Filters: []lsp.FileOperationFilter{{Pattern: lsp.FileOperationPattern{Glob: "**/*.{ts,tsx,js,jsx}"}}}},
				},
			},
		},
	}, nil
}

func workspaceFoldersFrom(params *lsp.InitializeParams) []string {
	if len(params.WorkspaceFolders) > 0 {
		out := make([]string, 0, len(params.WorkspaceFolders))
		for _, f := range params.WorkspaceFolders {
			if p, err := docsync.PathFromURI(string(f.URI)); err == nil {
				out = append(out, p)
			}
		}
		return out
	}
	if params.RootURI != nil {
		if p, err := docsync.PathFromURI(string(*params.RootURI)); err == nil {
			return []string{p}
		}
	}
	if params.RootPath != nil {
		return []string{*params.RootPath}
	}
	return nil
}

func (s *Server) Initialized(logger jsonrpc.FunctionLogger, params *lsp.InitializedParams) {}

func (s *Server) Shutdown(ctx context.Context, logger jsonrpc.FunctionLogger) *jsonrpc.ResponseError {
	if err := s.backend.Shutdown(ctx); err != nil {
		return &jsonrpc.ResponseError{Code: -32603, Message: err.Error()}
	}
	return nil
}

func (s *Server) Exit(logger jsonrpc.FunctionLogger) {}

func (s *Server) SetTrace(logger jsonrpc.FunctionLogger, params *lsp.SetTraceParams) {}

func (s *Server) Progress(logger jsonrpc.FunctionLogger, params *lsp.ProgressParams) {}

func (s *Server) WindowWorkDoneProgressCancel(logger jsonrpc.FunctionLogger, params *lsp.WorkDoneProgressCancelParams) {
}

// --- workspace ---

func (s *Server) WorkspaceSymbol(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.WorkspaceSymbolParams) ([]lsp.SymbolInformation, *jsonrpc.ResponseError) {
	results, err := WorkspaceSymbols(ctx, s.backend, params.Query)
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.SymbolInformation, 0, len(results))
	for _, r := range results {
		out = append(out, lsp.SymbolInformation{
			Name: r.Name,
			Kind: lsp.SymbolKind(translate.SymbolKindFromScriptElementKind(r.Kind)),
			Location: lsp.Location{URI: lsp.DocumentURI(r.URI), Range: toLspRange(r.Range)},
			ContainerName: r.ContainerName,
		})
	}
	return out, nil
}

func (s *Server) WorkspaceExecuteCommand(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.ExecuteCommandParams) (json.RawMessage, *jsonrpc.ResponseError) {
	return nil, &jsonrpc.ResponseError{Code: -32601, Message: "no executable commands are registered"}
}

func (s *Server) WorkspaceDidChangeConfiguration(logger jsonrpc.FunctionLogger, params *lsp.DidChangeConfigurationParams) {
	cfg := s.backend.ConfigManager()
	if cfg == nil {
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(params.Settings, &raw); err != nil {
		s.log.WithError(err).Warn("lspserver: decoding didChangeConfiguration settings")
		return
	}
	if err := cfg.Apply(context.Background(), raw); err != nil {
		s.log.WithError(err).Warn("lspserver: applying changed configuration")
	}
}

func (s *Server) WorkspaceDidChangeWorkspaceFolders(logger jsonrpc.FunctionLogger, params *lsp.DidChangeWorkspaceFoldersParams) {
}

func (s *Server) WorkspaceDidChangeWatchedFiles(logger jsonrpc.FunctionLogger, params *lsp.DidChangeWatchedFilesParams) {
}

func (s *Server) WorkspaceWillCreateFiles(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CreateFilesParams) (*lsp.WorkspaceEdit, *jsonrpc.ResponseError) {
	return nil, nil
}

func (s *Server) WorkspaceDidCreateFiles(logger jsonrpc.FunctionLogger, params *lsp.CreateFilesParams) {
}

func (s *Server) WorkspaceWillRenameFiles(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.RenameFilesParams) (*lsp.WorkspaceEdit, *jsonrpc.ResponseError) {
	changes := map[lsp.DocumentURI][]lsp.TextEdit{}
	for _, f := range params.Files {
		oldPath, err1 := docsync.PathFromURI(string(f.OldURI))
		newPath, err2 := docsync.PathFromURI(string(f.NewURI))
		if err1 != nil || err2 != nil {
			continue
		}
		edits, err := EditsForFileRename(ctx, s.backend, oldPath, newPath)
		if err != nil {
			return nil, outcomeError(err)
		}
		for _, e := range edits {
			uri := lsp.DocumentURI(e.URI)
			for i, r := range e.Edits {
				changes[uri] = append(changes[uri], lsp.TextEdit{Range: toLspRange(r), NewText: e.Texts[i]})
			}
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return &lsp.WorkspaceEdit{Changes: changes}, nil
}

func (s *Server) WorkspaceDidRenameFiles(logger jsonrpc.FunctionLogger, params *lsp.RenameFilesParams) {
}

func (s *Server) WorkspaceWillDeleteFiles(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DeleteFilesParams) (*lsp.WorkspaceEdit, *jsonrpc.ResponseError) {
	return nil, nil
}

func (s *Server) WorkspaceDidDeleteFiles(logger jsonrpc.FunctionLogger, params *lsp.DeleteFilesParams) {
}

func (s *Server) WorkspaceSemanticTokensRefresh(ctx context.Context, logger jsonrpc.FunctionLogger) *jsonrpc.ResponseError {
	panic("unimplemented")
}

// --- text document: sync ---

func (s *Server) TextDocumentDidOpen(logger jsonrpc.FunctionLogger, params *lsp.DidOpenTextDocumentParams) {
	doc := params.TextDocument
	if !docsync.IsSupported(string(doc.LanguageID)) {
		return
	}
	mirror := s.docs()
	if mirror == nil {
		return
	}
	root := s.backend.WorkspaceRoot()
	if err := mirror.DidOpen(context.Background(), string(doc.URI), string(doc.LanguageID), int32(doc.Version), doc.Text, root); err != nil {
		s.log.WithError(err).Warn("lspserver: didOpen")
	}
}

func (s *Server) TextDocumentDidChange(logger jsonrpc.FunctionLogger, params *lsp.DidChangeTextDocumentParams) {
	changes := make([]docsync.ChangeEvent, 0, len(params.ContentChanges))
	for _, c := range params.ContentChanges {
		if c.Range == nil {
			changes = append(changes, docsync.ChangeEvent{NewText: c.Text})
			continue
		}
		r := fromLspRange(*c.Range)
		changes = append(changes, docsync.ChangeEvent{Range: &r, NewText: c.Text})
	}
	mirror := s.docs()
	if mirror == nil {
		return
	}
	if err := mirror.DidChange(context.Background(), string(params.TextDocument.URI), int32(params.TextDocument.Version), changes); err != nil {
		s.log.WithError(err).Warn("lspserver: didChange")
	}
}

func (s *Server) TextDocumentWillSave(logger jsonrpc.FunctionLogger, params *lsp.WillSaveTextDocumentParams) {}

func (s *Server) TextDocumentWillSaveWaitUntil(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.WillSaveTextDocumentParams) ([]lsp.TextEdit, *jsonrpc.ResponseError) {
	return nil, nil
}

func (s *Server) TextDocumentDidSave(logger jsonrpc.FunctionLogger, params *lsp.DidSaveTextDocumentParams) {}

func (s *Server) TextDocumentDidClose(logger jsonrpc.FunctionLogger, params *lsp.DidCloseTextDocumentParams) {
	mirror := s.docs()
	if mirror == nil {
		return
	}
	if err := mirror.DidClose(context.Background(), string(params.TextDocument.URI)); err != nil {
		s.log.WithError(err).Warn("lspserver: didClose")
	}
}

// --- text document: language features ---

func (s *Server) TextDocumentCompletion(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CompletionParams) (*lsp.CompletionList, *jsonrpc.ResponseError) {
	trigger := ""
	if params.Context != nil {
		trigger = params.Context.TriggerCharacter
	}
	items, err := Completion(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position), trigger)
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.CompletionItem, 0, len(items))
	for _, it := range items {
		out = append(out, lsp.CompletionItem{
			Label: it.Label,
			Kind: lsp.CompletionItemKind(translate.SymbolKindFromScriptElementKind(it.Kind)),
			SortText: it.SortText,
			InsertText: it.InsertText,
		})
	}
	return &lsp.CompletionList{IsIncomplete: false, Items: out}, nil
}

func (s *Server) CompletionItemResolve(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CompletionItem) (*lsp.CompletionItem, *jsonrpc.ResponseError) {
	data, ok := params.Data.(map[string]any)
	if !ok {
		return params, nil
	}
	uri, _ := data["uri"].(string)
	line, _ := data["line"].(float64)
	character, _ := data["character"].(float64)
	pos := translate.LspPosition{Line: int(line), Character: int(character)}
	detail, err := CompletionResolve(ctx, s.backend, s.docs(), uri, pos, params.Label)
	if err != nil {
		return nil, outcomeError(err)
	}
	if detail == nil {
		return params, nil
	}
	result := *params
	result.Detail = detail.Detail
	if detail.Markdown != "" {
		result.Documentation = lsp.MarkupContent{Kind: lsp.MarkupKindMarkdown, Value: detail.Markdown}
	}
	return &result, nil
}

func (s *Server) TextDocumentHover(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.HoverParams) (*lsp.Hover, *jsonrpc.ResponseError) {
	res, err := Hover(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, outcomeError(err)
	}
	if res == nil {
		return nil, nil
	}
	r := toLspRange(res.Range)
	return &lsp.Hover{
		Contents: lsp.MarkupContent{Kind: lsp.MarkupKindMarkdown, Value: res.Markdown},
		Range: &r,
	}, nil
}

func (s *Server) TextDocumentSignatureHelp(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.SignatureHelpParams) (*lsp.SignatureHelp, *jsonrpc.ResponseError) {
	res, err := SignatureHelp(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, outcomeError(err)
	}
	if res == nil {
		return nil, nil
	}
	sigs := make([]lsp.SignatureInformation, 0, len(res.Signatures))
	for _, label := range res.Signatures {
		sigs = append(sigs, lsp.SignatureInformation{Label: label})
	}
	active := uint(res.ActiveSignature)
	activeParam := uint(res.ActiveParameter)
	return &lsp.SignatureHelp{Signatures: sigs, ActiveSignature: &active, ActiveParameter: &activeParam}, nil
}

func (s *Server) TextDocumentDeclaration(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DeclarationParams) ([]lsp.Location, []lsp.LocationLink, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentDefinition(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DefinitionParams) ([]lsp.Location, []lsp.LocationLink, *jsonrpc.ResponseError) {
	locs, err := Definition(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, nil, outcomeError(err)
	}
	return toLocations(locs), nil, nil
}

func (s *Server) TextDocumentTypeDefinition(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.TypeDefinitionParams) ([]lsp.Location, []lsp.LocationLink, *jsonrpc.ResponseError) {
	locs, err := TypeDefinition(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, nil, outcomeError(err)
	}
	return toLocations(locs), nil, nil
}

func (s *Server) TextDocumentImplementation(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.ImplementationParams) ([]lsp.Location, []lsp.LocationLink, *jsonrpc.ResponseError) {
	locs, err := Implementation(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, nil, outcomeError(err)
	}
	return toLocations(locs), nil, nil
}

func toLocations(locs []LocationResult) []lsp.Location {
	out := make([]lsp.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, lsp.Location{URI: lsp.DocumentURI(l.URI), Range: toLspRange(l.Range)})
	}
	return out
}

func (s *Server) TextDocumentReferences(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.ReferenceParams) ([]lsp.Location, *jsonrpc.ResponseError) {
	includeDecl := params.Context.IncludeDeclaration
	locs, err := References(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position), includeDecl)
	if err != nil {
		return nil, outcomeError(err)
	}
	return toLocations(locs), nil
}

func (s *Server) TextDocumentDocumentHighlight(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentHighlightParams) ([]lsp.DocumentHighlight, *jsonrpc.ResponseError) {
	highlights, err := DocumentHighlights(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.DocumentHighlight, 0, len(highlights))
	for _, h := range highlights {
		kind := lsp.DocumentHighlightKindText
		if h.Kind == "writtenReference" {
			kind = lsp.DocumentHighlightKindWrite
		} else if h.Kind == "reference" {
			kind = lsp.DocumentHighlightKindRead
		}
		out = append(out, lsp.DocumentHighlight{Range: toLspRange(h.Range), Kind: &kind})
	}
	return out, nil
}

func (s *Server) TextDocumentDocumentSymbol(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentSymbolParams) ([]lsp.DocumentSymbol, []lsp.SymbolInformation, *jsonrpc.ResponseError) {
	syms, err := DocumentSymbols(ctx, s.backend, s.docs(), string(params.TextDocument.URI))
	if err != nil {
		return nil, nil, outcomeError(err)
	}
	out := make([]lsp.DocumentSymbol, 0, len(syms))
	for _, sym := range syms {
		out = append(out, toDocumentSymbol(sym))
	}
	return out, nil, nil
}

func toDocumentSymbol(sym SymbolResult) lsp.DocumentSymbol {
	children := make([]lsp.DocumentSymbol, 0, len(sym.Children))
	for _, c := range sym.Children {
		children = append(children, toDocumentSymbol(c))
	}
	return lsp.DocumentSymbol{
		Name: sym.Name,
		Kind: lsp.SymbolKind(translate.SymbolKindFromScriptElementKind(sym.Kind)),
		Range: toLspRange(sym.Range),
		SelectionRange: toLspRange(sym.SelectionRange),
		Children: children,
	}
}

func (s *Server) TextDocumentCodeAction(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CodeActionParams) ([]lsp.CommandOrCodeAction, *jsonrpc.ResponseError) {
	codes := make([]int, 0, len(params.Context.Diagnostics))
	for _, d := range params.Context.Diagnostics {
		if d.Code != nil {
			codes = append(codes, d.Code.Value)
		}
	}
	includeRefactors := true
	if params.Context.Only != nil {
		includeRefactors = false
		for _, k := range *params.Context.Only {
			if k == lsp.CodeActionKindRefactor {
				includeRefactors = true
			}
		}
	}
	actions, err := CodeActions(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspRange(params.Range), codes, includeRefactors)
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.CommandOrCodeAction, 0, len(actions))
	for _, a := range actions {
		changes := map[lsp.DocumentURI][]lsp.TextEdit{}
		for _, e := range a.Edits {
			uri := lsp.DocumentURI(e.URI)
			for i, r := range e.Edits {
				changes[uri] = append(changes[uri], lsp.TextEdit{Range: toLspRange(r), NewText: e.Texts[i]})
			}
		}
		kind := lsp.CodeActionKindQuickFix
		if a.Kind == "refactor" {
			kind = lsp.CodeActionKindRefactor
		}
		out = append(out, lsp.CommandOrCodeAction{
			CodeAction: &lsp.CodeAction{
				Title: a.Title,
				Kind: &kind,
				Edit: &lsp.WorkspaceEdit{Changes: changes},
			},
		})
	}
	return out, nil
}

func (s *Server) CodeActionResolve(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CodeAction) (*lsp.CodeAction, *jsonrpc.ResponseError) {
	return params, nil
}

func (s *Server) TextDocumentCodeLens(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CodeLensParams) ([]lsp.CodeLens, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) CodeLensResolve(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CodeLens) (*lsp.CodeLens, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentDocumentLink(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentLinkParams) ([]lsp.DocumentLink, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) DocumentLinkResolve(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentLink) (*lsp.DocumentLink, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentDocumentColor(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentColorParams) ([]lsp.ColorInformation, *jsonrpc.ResponseError) {
	return nil, nil
}

func (s *Server) TextDocumentColorPresentation(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.ColorPresentationParams) ([]lsp.ColorPresentation, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentFormatting(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentFormattingParams) ([]lsp.TextEdit, *jsonrpc.ResponseError) {
	edits, err := formatWholeDocument(ctx, s, string(params.TextDocument.URI))
	if err != nil {
		return nil, outcomeError(err)
	}
	return edits, nil
}

func formatWholeDocument(ctx context.Context, s *Server, uri string) ([]lsp.TextEdit, error) {
	doc, ok := s.docs().Get(uri)
	if !ok {
		return nil, nil
	}
	r := translate.FromTsRange(doc.LineIndex().FullDocumentRange())
	edits, err := Format(ctx, s.backend, s.docs(), uri, r)
	if err != nil {
		return nil, err
	}
	return toTextEdits(edits), nil
}

func toTextEdits(edits []FormatEdit) []lsp.TextEdit {
	out := make([]lsp.TextEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, lsp.TextEdit{Range: toLspRange(e.Range), NewText: e.NewText})
	}
	return out
}

func (s *Server) TextDocumentRangeFormatting(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentRangeFormattingParams) ([]lsp.TextEdit, *jsonrpc.ResponseError) {
	edits, err := Format(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspRange(params.Range))
	if err != nil {
		return nil, outcomeError(err)
	}
	return toTextEdits(edits), nil
}

func (s *Server) TextDocumentOnTypeFormatting(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.DocumentOnTypeFormattingParams) ([]lsp.TextEdit, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentRename(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.RenameParams) (*lsp.WorkspaceEdit, *jsonrpc.ResponseError) {
	edits, err := Rename(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position), params.NewName)
	if err != nil {
		return nil, outcomeError(err)
	}
	changes := map[lsp.DocumentURI][]lsp.TextEdit{}
	for _, e := range edits {
		uri := lsp.DocumentURI(e.URI)
		for _, r := range e.Spans {
			changes[uri] = append(changes[uri], lsp.TextEdit{Range: toLspRange(r), NewText: params.NewName})
		}
	}
	return &lsp.WorkspaceEdit{Changes: changes}, nil
}

func (s *Server) TextDocumentFoldingRange(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.FoldingRangeParams) ([]lsp.FoldingRange, *jsonrpc.ResponseError) {
	ranges, err := FoldingRanges(ctx, s.backend, s.docs(), string(params.TextDocument.URI))
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.FoldingRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, lsp.FoldingRange{
			StartLine: uint(r.Start.Line),
			StartCharacter: uintPtr(r.Start.Character),
			EndLine: uint(r.End.Line),
			EndCharacter: uintPtr(r.End.Character),
		})
	}
	return out, nil
}

func uintPtr(v int) *uint {
	u := uint(v)
	return &u
}

func (s *Server) TextDocumentSelectionRange(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.SelectionRangeParams) ([]lsp.SelectionRange, *jsonrpc.ResponseError) {
	doc, ok := s.docs().Get(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	out := make([]lsp.SelectionRange, 0, len(params.Positions))
	for _, p := range params.Positions {
		r := translate.LspRange{Start: fromLspPosition(p), End: fromLspPosition(p)}
		_ = doc
		out = append(out, lsp.SelectionRange{Range: toLspRange(r)})
	}
	return out, nil
}

func (s *Server) TextDocumentPrepareCallHierarchy(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CallHierarchyPrepareParams) ([]lsp.CallHierarchyItem, *jsonrpc.ResponseError) {
	items, err := PrepareCallHierarchy(ctx, s.backend, s.docs(), string(params.TextDocument.URI), fromLspPosition(params.Position))
	if err != nil {
		return nil, outcomeError(err)
	}
	out := make([]lsp.CallHierarchyItem, 0, len(items))
	for _, it := range items {
		out = append(out, toCallHierarchyItem(it))
	}
	return out, nil
}

func toCallHierarchyItem(it CallHierarchyItemResult) lsp.CallHierarchyItem {
	return lsp.CallHierarchyItem{
		Name: it.Name,
		Kind: lsp.SymbolKind(translate.SymbolKindFromScriptElementKind(it.Kind)),
		URI: lsp.DocumentURI(it.URI),
		Range: toLspRange(it.Range),
		SelectionRange: toLspRange(it.SelectionRange),
	}
}

func (s *Server) CallHierarchyIncomingCalls(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CallHierarchyIncomingCallsParams) ([]lsp.CallHierarchyIncomingCall, *jsonrpc.ResponseError) {
	filePath, err := docsync.PathFromURI(string(params.Item.URI))
	if err != nil {
		return nil, outcomeError(err)
	}
	doc, ok := s.docs().GetByPath(filePath)
	if !ok {
		return nil, nil
	}
	loc := doc.LineIndex().ToTsLocation(fromLspPosition(params.Item.SelectionRange.Start))
	calls, callErr := IncomingCalls(ctx, s.backend, filePath, loc)
	if callErr != nil {
		return nil, outcomeError(callErr)
	}
	out := make([]lsp.CallHierarchyIncomingCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, lsp.CallHierarchyIncomingCall{From: toCallHierarchyItem(c.Item), FromRanges: toRanges(c.FromRanges)})
	}
	return out, nil
}

func (s *Server) CallHierarchyOutgoingCalls(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.CallHierarchyOutgoingCallsParams) ([]lsp.CallHierarchyOutgoingCall, *jsonrpc.ResponseError) {
	filePath, err := docsync.PathFromURI(string(params.Item.URI))
	if err != nil {
		return nil, outcomeError(err)
	}
	doc, ok := s.docs().GetByPath(filePath)
	if !ok {
		return nil, nil
	}
	loc := doc.LineIndex().ToTsLocation(fromLspPosition(params.Item.SelectionRange.Start))
	calls, callErr := OutgoingCalls(ctx, s.backend, filePath, loc)
	if callErr != nil {
		return nil, outcomeError(callErr)
	}
	out := make([]lsp.CallHierarchyOutgoingCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, lsp.CallHierarchyOutgoingCall{To: toCallHierarchyItem(c.Item), FromRanges: toRanges(c.FromRanges)})
	}
	return out, nil
}

func toRanges(ranges []translate.LspRange) []lsp.Range {
	out := make([]lsp.Range, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, toLspRange(r))
	}
	return out
}

func (s *Server) TextDocumentSemanticTokensFull(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.SemanticTokensParams) (*lsp.SemanticTokens, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentSemanticTokensFullDelta(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.SemanticTokensDeltaParams) (*lsp.SemanticTokens, *lsp.SemanticTokensDelta, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentSemanticTokensRange(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.SemanticTokensRangeParams) (*lsp.SemanticTokens, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentLinkedEditingRange(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.LinkedEditingRangeParams) (*lsp.LinkedEditingRanges, *jsonrpc.ResponseError) {
	panic("unimplemented")
}

func (s *Server) TextDocumentMoniker(ctx context.Context, logger jsonrpc.FunctionLogger, params *lsp.MonikerParams) ([]lsp.Moniker, *jsonrpc.ResponseError) {
	panic("unimplemented")
}
