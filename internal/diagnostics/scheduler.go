// Package diagnostics implements the debounced geterr driver: it coalesces
// edited/opened files, maintains the at-most-one-inflight-geterr invariant,
// and translates tsserver's syntaxDiag/semanticDiag/suggestionDiag event
// stream into LSP diagnostics.
package diagnostics

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typescript-language-server/tsla/internal/tsclient"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsmsg"
	"github.com/typescript-language-server/tsla/internal/tsproto"
	"github.com/typescript-language-server/tsla/internal/translate"
)

// DefaultDebounce is default debounce interval.
const DefaultDebounce = 300 * time.Millisecond

// Category is which tsserver diag event kind a Diagnostic came from; Source
// is always "ts" once rendered to LSP, but the category still drives the
// per-file bookkeeping so a later semanticDiag doesn't erase an earlier
// syntaxDiag for the same file.
type Category int

const (
	CategorySyntax Category = iota
	CategorySemantic
	CategorySuggestion
)

// Severity mirrors LSP's DiagnosticSeverity ordinals (1=Error, 4=Hint).
type Severity int

const (
	SeverityError Severity = 1
	SeverityWarning Severity = 2
	SeverityInformation Severity = 3
	SeverityHint Severity = 4
)

// Tag mirrors LSP's DiagnosticTag ordinals.
type Tag int

const (
	TagUnnecessary Tag = 1
	TagDeprecated Tag = 2
)

// Diagnostic is the rendered LSP diagnostic, source-agnostic of its wire shape.
type Diagnostic struct {
	Range translate.LspRange
	Severity Severity
	Code int
	Source string
	Message string
	Tags []Tag
}

// tsDiagnostic is the subset of tsserver's per-diagnostic wire shape this
// package reads; reused across syntaxDiag/semanticDiag/suggestionDiag.
type tsDiagnostic struct {
	Start translate.TsLocation `json:"start"`
	End translate.TsLocation `json:"end"`
	Text string `json:"text"`
	Code int `json:"code"`
	Category string `json:"category"`
	ReportsUnnecessary bool `json:"reportsUnnecessary"`
	ReportsDeprecated bool `json:"reportsDeprecated"`
}

type diagEventBody struct {
	File string `json:"file"`
	Diagnostics []tsDiagnostic `json:"diagnostics"`
}

func severityFor(category string) Severity {
	switch category {
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	case "suggestion":
		return SeverityHint
	default:
		return SeverityInformation
	}
}

func translateDiagnostic(d tsDiagnostic, suggestion bool) Diagnostic {
	out := Diagnostic{
		Range: translate.FromTsRange(translate.TsRange{Start: d.Start, End: d.End}),
		Severity: severityFor(d.Category),
		Code: d.Code,
		Source: "ts",
		Message: d.Text,
	}
	if suggestion {
		out.Severity = SeverityHint
	}
	if d.ReportsUnnecessary {
		out.Tags = append(out.Tags, TagUnnecessary)
	}
	if d.ReportsDeprecated {
		out.Tags = append(out.Tags, TagDeprecated)
	}
	return out
}

// Requester is the narrow TsServerClient surface the scheduler needs:
// issuing the async geterr and cancelling it. Defined locally (rather than
// importing tsclient.Client's full surface) so the scheduler stays testable
// against a fake.
type Requester interface {
	ExecuteAsync(ctx context.Context, command string, args any, cfg tsclient.Config) (tsproto.Seq, <-chan tserr.Outcome, error)
	CancelRequest(seq tsproto.Seq)
}

// PathResolver resolves between the mirror's tsserver file paths and LSP
// document URIs, and lists currently open documents, without the scheduler
// depending on docsync directly.
type PathResolver interface {
	URIForPath(filePath string) (string, bool)
	OpenFilePaths() []string
	LineCountForPath(filePath string) (int, bool)
}

type fileDiagnostics struct {
	syntax []Diagnostic
	semantic []Diagnostic
	suggestion []Diagnostic
}

func (f *fileDiagnostics) merged() []Diagnostic {
	out := make([]Diagnostic, 0, len(f.syntax)+len(f.semantic)+len(f.suggestion))
	out = append(out, f.syntax...)
	out = append(out, f.semantic...)
	out = append(out, f.suggestion...)
	return out
}

// Scheduler drives the debounced geterr request/response cycle for one
// session's open documents.
type Scheduler struct {
	log logrus.FieldLogger
	client Requester
	paths PathResolver
	publish func(uri string, diags []Diagnostic)
	ignored map[int]bool

	mu sync.Mutex
	pending map[string]time.Time // filePath -> last enqueue time
	timer *time.Timer
	debounce time.Duration

	activeSeq tsproto.Seq
	activeCancel context.CancelFunc
	byFile map[string]*fileDiagnostics
}

// New builds a Scheduler. publish is called once per file with its full
// merged diagnostic set whenever any category updates for that file.
func New(log logrus.FieldLogger, client Requester, paths PathResolver, ignoredCodes []int, publish func(uri string, diags []Diagnostic)) *Scheduler {
	ignored := make(map[int]bool, len(ignoredCodes))
	for _, c := range ignoredCodes {
		ignored[c] = true
	}
	return &Scheduler{
		log: log,
		client: client,
		paths: paths,
		publish: publish,
		ignored: ignored,
		pending: make(map[string]time.Time),
		debounce: DefaultDebounce,
		byFile: make(map[string]*fileDiagnostics),
	}
}

// bufferDebounce implements per-buffer re-request formula:
// clamp(ceil(lineCount/20), 300, 800) ms.
func bufferDebounce(lineCount int) time.Duration {
	ms := math.Ceil(float64(lineCount) / 20)
	if ms < 300 {
		ms = 300
	}
	if ms > 800 {
		ms = 800
	}
	return time.Duration(ms) * time.Millisecond
}

// Enqueue schedules filePath for a diagnostics pass, debounced against
// rapid-fire edits. Called after didOpen/didChange.
func (s *Scheduler) Enqueue(filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[filePath] = time.Now()

	delay := s.debounce
	if n, ok := s.paths.LineCountForPath(filePath); ok {
		delay = bufferDebounce(n)
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

// fire runs when the debounce elapses: cancel any inflight geterr, merge the
// pending set with every open document, and issue a fresh geterr.
func (s *Scheduler) fire() {
	s.mu.Lock()
	s.cancelActiveLocked()

	files := make([]string, 0, len(s.pending))
	seen := make(map[string]bool)
	for f := range s.pending {
		files = append(files, f)
		seen[f] = true
	}
	for _, f := range s.paths.OpenFilePaths() {
		if !seen[f] {
			files = append(files, f)
			seen[f] = true
		}
	}
	s.pending = make(map[string]time.Time)
	s.mu.Unlock()

	if len(files) == 0 {
		return
	}
	s.issueGetErr(files)
}

// cancelActiveLocked cancels the currently inflight geterr, if any. Callers
// must hold s.mu.
func (s *Scheduler) cancelActiveLocked() {
	if s.activeCancel != nil {
		s.activeCancel()
		s.activeCancel = nil
	}
	if s.activeSeq != 0 {
		s.client.CancelRequest(s.activeSeq)
		s.activeSeq = 0
	}
}

func (s *Scheduler) issueGetErr(files []string) {
	ctx, cancel := context.WithCancel(context.Background())
	args := map[string]any{"files": files, "delay": 0}
	seq, resultCh, err := s.client.ExecuteAsync(ctx, "geterr", args, tsclient.Config{})
	if err != nil {
		cancel()
		s.log.WithError(err).Warn("diagnostics: failed to issue geterr")
		return
	}

	s.mu.Lock()
	s.activeSeq = seq
	s.activeCancel = cancel
	s.mu.Unlock()

	go func() {
		select {
		case <-resultCh:
		case <-ctx.Done():
		}
		s.mu.Lock()
		if s.activeSeq == seq {
			s.activeSeq = 0
			s.activeCancel = nil
		}
		s.mu.Unlock()
	}()
}

// InterruptGetErr cancels any running geterr, runs f synchronously, then
// re-schedules a fresh pass over every currently open document so
// diagnostics resume.
func (s *Scheduler) InterruptGetErr(f func()) {
	s.mu.Lock()
	s.cancelActiveLocked()
	s.mu.Unlock()

	f()

	s.mu.Lock()
	for _, fp := range s.paths.OpenFilePaths() {
		s.pending[fp] = time.Now()
	}
	s.mu.Unlock()
	s.fire()
}

// HandleEvent consumes a decoded tsserver event, translating
// syntax/semantic/suggestion diagnostics and publishing the merged set for
// the affected file. Events of any other kind are ignored; the caller is
// expected to also route requestCompleted to tsqueue via tsclient.
func (s *Scheduler) HandleEvent(ev *tsproto.Event) {
	kind := tsmsg.ClassifyEvent(ev.Event)
	var category Category
	switch kind {
	case tsmsg.EventSyntaxDiag:
		category = CategorySyntax
	case tsmsg.EventSemanticDiag:
		category = CategorySemantic
	case tsmsg.EventSuggestionDiag:
		category = CategorySuggestion
	case tsmsg.EventProjectLoadingStart, tsmsg.EventProjectLoadingFin:
		return
	default:
		return
	}

	var body diagEventBody
	if err := json.Unmarshal(ev.Body, &body); err != nil {
		s.log.WithError(err).Warn("diagnostics: malformed diagnostic event body")
		return
	}

	uri, ok := s.paths.URIForPath(body.File)
	if !ok {
		return
	}

	diags := make([]Diagnostic, 0, len(body.Diagnostics))
	for _, d := range body.Diagnostics {
		if s.ignored[d.Code] {
			continue
		}
		diags = append(diags, translateDiagnostic(d, category == CategorySuggestion))
	}

	s.mu.Lock()
	fd, ok := s.byFile[body.File]
	if !ok {
		fd = &fileDiagnostics{}
		s.byFile[body.File] = fd
	}
	switch category {
	case CategorySyntax:
		fd.syntax = diags
	case CategorySemantic:
		fd.semantic = diags
	case CategorySuggestion:
		fd.suggestion = diags
	}
	merged := fd.merged()
	s.mu.Unlock()

	s.publish(uri, merged)
}

// Forget drops cached diagnostics for filePath, called on didClose so a
// stale entry does not leak or get republished.
func (s *Scheduler) Forget(filePath string) {
	s.mu.Lock()
	delete(s.byFile, filePath)
	delete(s.pending, filePath)
	s.mu.Unlock()
}
