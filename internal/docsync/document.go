// Package docsync tracks every open document, keeps it in lockstep with
// tsserver's own buffer, and applies incremental edits.
package docsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/typescript-language-server/tsla/internal/translate"
)

// LanguageID is the closed set of script kinds this adapter understands.
type LanguageID string

const (
	LangTypeScript LanguageID = "typescript"
	LangTypeScriptReact LanguageID = "typescriptreact"
	LangJavaScript LanguageID = "javascript"
	LangJavaScriptReact LanguageID = "javascriptreact"
)

// scriptKindNames maps a LanguageID to tsserver's scriptKindName argument.
var scriptKindNames = map[LanguageID]string{
	LangTypeScript: "TS",
	LangTypeScriptReact: "TSX",
	LangJavaScript: "JS",
	LangJavaScriptReact: "JSX",
}

// IsSupported reports whether id is one of the four language-ids the mirror
// will open a document for.
func IsSupported(id string) bool {
	_, ok := scriptKindNames[LanguageID(id)]
	return ok
}

// Document is a single open buffer.
type Document struct {
	URI string
	FilePath string
	LanguageID LanguageID
	Version int32
	Text string

	idx *translate.LineIndex
}

func newDocument(uri, filePath string, lang LanguageID, version int32, text string) *Document {
	return &Document{
		URI: uri,
		FilePath: filePath,
		LanguageID: lang,
		Version: version,
		Text: text,
		idx: translate.NewLineIndex(text),
	}
}

// LineIndex exposes the document's cached line-offset index.
func (d *Document) LineIndex() *translate.LineIndex { return d.idx }

// ChangeEvent is one LSP incremental (or full) content change.
type ChangeEvent struct {
	Range *translate.LspRange // nil for a full-document replacement
	NewText string
}

// Sender is the narrow interface the mirror needs from the transport client:
// fence-notification sending and resource-scoped cancellation, never the
// whole client.
type Sender interface {
	NotifyFence(ctx context.Context, command string, args any) error
	CancelForResource(uri string)
}

// Mirror is the open-document store, keyed by tsserver path and by URI.
type Mirror struct {
	mu sync.Mutex
	byPath map[string]*Document
	byURI map[string]*Document
	sender Sender
	onOpen func(d *Document)
	onClose func(uri string, remaining []*Document)
}

// NewMirror builds a Mirror. onOpen is invoked after a successful didOpen
// (used by the session to trigger initial diagnostics); onClose is invoked
// after didClose with the remaining open documents (used to re-diagnose).
func NewMirror(sender Sender, onOpen func(*Document), onClose func(string, []*Document)) *Mirror {
	return &Mirror{
		byPath: make(map[string]*Document),
		byURI: make(map[string]*Document),
		sender: sender,
		onOpen: onOpen,
		onClose: onClose,
	}
}

// openArgs mirrors tsserver's "open" command arguments.
type openArgs struct {
	File string `json:"file"`
	FileContent string `json:"fileContent,omitempty"`
	ScriptKindName string `json:"scriptKindName,omitempty"`
	ProjectRootPath string `json:"projectRootPath,omitempty"`
}

// DidOpen handles textDocument/didOpen. Unsupported language-ids are
// rejected; the caller should simply not create a Document and LSP-ignore
// the notification.
func (m *Mirror) DidOpen(ctx context.Context, uri string, languageID string, version int32, text string, projectRoot string) error {
	if !IsSupported(languageID) {
		return fmt.Errorf("docsync: unsupported language id %q", languageID)
	}
	filePath, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	lang := LanguageID(languageID)
	doc := newDocument(uri, filePath, lang, version, text)

	m.mu.Lock()
	m.byPath[filePath] = doc
	m.byURI[uri] = doc
	m.mu.Unlock()

	if err := m.sender.NotifyFence(ctx, "open", openArgs{
		File: filePath,
		FileContent: text,
		ScriptKindName: scriptKindNames[lang],
		ProjectRootPath: projectRoot,
	}); err != nil {
		return err
	}
	if m.onOpen != nil {
		m.onOpen(doc)
	}
	return nil
}

type changeRange struct {
	Line int `json:"line"`
	Offset int `json:"offset"`
}

type changeArgs struct {
	File string `json:"file"`
	Line int `json:"line"`
	Offset int `json:"offset"`
	EndLine int `json:"endLine"`
	EndOffset int `json:"endOffset"`
	InsertString string `json:"insertString"`
}

// DidChange applies each incremental change in order, sending tsserver a
// "change" request per edit whose coordinates are computed *before* the
// local edit is applied. version must be strictly greater than the
// document's current version; a missing or non-increasing version is
// rejected.
func (m *Mirror) DidChange(ctx context.Context, uri string, version int32, changes []ChangeEvent) error {
	m.mu.Lock()
	doc, ok := m.byURI[uri]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("docsync: didChange for unopened document %s", uri)
	}
	if version <= doc.Version {
		return fmt.Errorf("docsync: non-increasing version %d (current %d) for %s", version, doc.Version, uri)
	}

	// All inflight requests scoped to this document are cancelled before
	// edits are applied
	m.sender.CancelForResource(uri)

	for _, ch := range changes {
		if ch.Range == nil {
			full := doc.idx.FullDocumentRange()
			if err := m.sender.NotifyFence(ctx, "change", changeArgs{
				File: doc.FilePath,
				Line: full.Start.Line,
				Offset: full.Start.Offset,
				EndLine: full.End.Line,
				EndOffset: full.End.Offset,
				InsertString: ch.NewText,
			}); err != nil {
				return err
			}
			doc.Text = ch.NewText
			doc.idx = translate.NewLineIndex(doc.Text)
			continue
		}

		tsRange := doc.idx.ToTsRange(*ch.Range)
		if err := m.sender.NotifyFence(ctx, "change", changeArgs{
			File: doc.FilePath,
			Line: tsRange.Start.Line,
			Offset: tsRange.Start.Offset,
			EndLine: tsRange.End.Line,
			EndOffset: tsRange.End.Offset,
			InsertString: ch.NewText,
		}); err != nil {
			return err
		}
		doc.Text = translate.ApplyEdit(doc.Text, doc.idx, *ch.Range, ch.NewText)
		doc.idx = translate.NewLineIndex(doc.Text)
	}

	m.mu.Lock()
	doc.Version = version
	m.mu.Unlock()
	return nil
}

// Reopen re-sends an "open" for an already-tracked document, used after a
// tsserver restart where every in-memory buffer on the new process starts
// out unknown to it.
func (m *Mirror) Reopen(ctx context.Context, doc *Document) error {
	return m.sender.NotifyFence(ctx, "open", openArgs{
		File: doc.FilePath,
		FileContent: doc.Text,
		ScriptKindName: scriptKindNames[doc.LanguageID],
	})
}

type closeArgs struct {
	File string `json:"file"`
}

// DidClose removes the document, notifies tsserver, cancels resource-scoped
// inflight requests, and reports the remaining open documents so the caller
// can re-schedule diagnostics for them.
func (m *Mirror) DidClose(ctx context.Context, uri string) error {
	m.mu.Lock()
	doc, ok := m.byURI[uri]
	if ok {
		delete(m.byURI, uri)
		delete(m.byPath, doc.FilePath)
	}
	remaining := m.openDocumentsLocked()
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("docsync: didClose for unopened document %s", uri)
	}

	if err := m.sender.NotifyFence(ctx, "close", closeArgs{File: doc.FilePath}); err != nil {
		return err
	}
	m.sender.CancelForResource(uri)

	if m.onClose != nil {
		m.onClose(uri, remaining)
	}
	return nil
}

// Get returns the document for uri, if open.
func (m *Mirror) Get(uri string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byURI[uri]
	return d, ok
}

// GetByPath returns the document for a tsserver file path, if open.
func (m *Mirror) GetByPath(filePath string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byPath[filePath]
	return d, ok
}

// OpenDocuments returns every currently open document.
func (m *Mirror) OpenDocuments() []*Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openDocumentsLocked()
}

// URIForPath implements diagnostics.PathResolver.
func (m *Mirror) URIForPath(filePath string) (string, bool) {
	d, ok := m.GetByPath(filePath)
	if !ok {
		return "", false
	}
	return d.URI, true
}

// OpenFilePaths implements diagnostics.PathResolver.
func (m *Mirror) OpenFilePaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		paths = append(paths, p)
	}
	return paths
}

// LineCountForPath implements diagnostics.PathResolver.
func (m *Mirror) LineCountForPath(filePath string) (int, bool) {
	d, ok := m.GetByPath(filePath)
	if !ok {
		return 0, false
	}
	return d.idx.LineCount(), true
}

func (m *Mirror) openDocumentsLocked() []*Document {
	docs := make([]*Document, 0, len(m.byURI))
	for _, d := range m.byURI {
		docs = append(docs, d)
	}
	return docs
}
