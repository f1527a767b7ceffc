// Package tsrouter implements the optional syntax/semantic server fan-out
// classification between a syntax-only and a semantic tsserver process.
package tsrouter

import "sync/atomic"

// Target is which physical tsserver process(es) a command should go to.
type Target int

const (
	// TargetSemantic is used when there is no syntax server at all (the
	// common case); every command goes to the single semantic-capable server.
	TargetSemantic Target = iota
	TargetSyntax
	TargetBoth
)

var syntaxOnly = map[string]bool{
	"navTree": true,
	"getOutliningSpans": true,
	"jsxClosingTag": true,
	"selectionRange": true,
	"format": true,
	"formatonkey": true,
	"docCommentTemplate": true,
}

var semanticOnly = map[string]bool{
	"geterr": true,
	"geterrForProject": true,
	"projectInfo": true,
	"configurePlugin": true,
}

var syntaxPreferredWhileLoading = map[string]bool{
	"completionInfo": true,
	"completionEntryDetails": true,
	"definition": true,
	"definitionAndBoundSpan": true,
	"documentHighlights": true,
	"implementation": true,
	"navto": true,
	"quickinfo": true,
	"references": true,
	"rename": true,
	"signatureHelp": true,
	// Call hierarchy shares navto-adjacent infrastructure, so it is routed
	// the same way while the project loads.
	"prepareCallHierarchy": true,
	"provideCallHierarchyIncomingCalls": true,
	"provideCallHierarchyOutgoingCalls": true,
}

// shared commands fan out to both servers when both are alive and the
// caller did not pin an executionTarget
var shared = map[string]bool{
	"open": true,
	"close": true,
	"change": true,
	"updateOpen": true,
	"configure": true,
}

// Router classifies commands and tracks the dynamic "project loading" state
// toggled by projectLoadingStart/Finish events
type Router struct {
	// hasSyntaxServer is true only when a separate syntax-only process is
	// actually running; without one every non-shared command simply targets
	// the single semantic server regardless of the static tables below.
	hasSyntaxServer bool

	projectLoading atomic.Bool
}

// New builds a Router. hasSyntaxServer should be set once, at session setup,
// based on whether the two-process topology (tsserver >= v4.0) was chosen.
func New(hasSyntaxServer bool) *Router {
	return &Router{hasSyntaxServer: hasSyntaxServer}
}

// SetProjectLoading flips the dynamic override; called on
// projectLoadingStart (true) and projectLoadingFinish or the first
// diagnostic event (false)
func (r *Router) SetProjectLoading(loading bool) {
	r.projectLoading.Store(loading)
}

// Route returns which server(s) should receive command, given an optional
// caller-pinned executionTarget: pinned is used as is when pinnedSet is true
// and ignored otherwise.
func (r *Router) Route(command string, pinned Target, pinnedSet bool) Target {
	if pinnedSet {
		return pinned
	}
	if !r.hasSyntaxServer {
		return TargetSemantic
	}
	if shared[command] {
		return TargetBoth
	}
	if syntaxOnly[command] {
		return TargetSyntax
	}
	if semanticOnly[command] {
		return TargetSemantic
	}
	if syntaxPreferredWhileLoading[command] && r.projectLoading.Load() {
		return TargetSyntax
	}
	return TargetSemantic
}
