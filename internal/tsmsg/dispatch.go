// Package tsmsg classifies tsserver's duck-typed event and response bodies
// before they are unmarshalled into a closed per-command tagged variant.
// Unknown event kinds are logged and discarded rather than causing a
// decode failure.
package tsmsg

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// EventKind is the closed set of tsserver event names this adapter acts on;
// anything else is logged and dropped
type EventKind string

const (
	EventSyntaxDiag EventKind = "syntaxDiag"
	EventSemanticDiag EventKind = "semanticDiag"
	EventSuggestionDiag EventKind = "suggestionDiag"
	EventRequestCompleted EventKind = "requestCompleted"
	EventProjectLoadingStart EventKind = "projectLoadingStart"
	EventProjectLoadingFin EventKind = "projectLoadingFinish"
	EventTelemetry EventKind = "telemetry"
	EventProjectsUpdated EventKind = "projectsUpdatedInBackground"
	EventBeginInstallTypes EventKind = "beginInstallTypes"
	EventEndInstallTypes EventKind = "endInstallTypes"
	EventConfigFileDiag EventKind = "configFileDiag"
	EventTypingsInstalled EventKind = "typingsInstalled"

	EventUnknown EventKind = ""
)

// knownEvents is the closed set consulted by Classify; anything else yields
// EventUnknown so callers can log-and-discard instead of guessing a shape.
var knownEvents = map[string]EventKind{
	string(EventSyntaxDiag): EventSyntaxDiag,
	string(EventSemanticDiag): EventSemanticDiag,
	string(EventSuggestionDiag): EventSuggestionDiag,
	string(EventRequestCompleted): EventRequestCompleted,
	string(EventProjectLoadingStart): EventProjectLoadingStart,
	string(EventProjectLoadingFin): EventProjectLoadingFin,
	string(EventTelemetry): EventTelemetry,
	string(EventProjectsUpdated): EventProjectsUpdated,
	string(EventBeginInstallTypes): EventBeginInstallTypes,
	string(EventEndInstallTypes): EventEndInstallTypes,
	string(EventConfigFileDiag): EventConfigFileDiag,
	string(EventTypingsInstalled): EventTypingsInstalled,
}

// ClassifyEvent maps a raw event name to the closed EventKind set.
func ClassifyEvent(name string) EventKind {
	if k, ok := knownEvents[name]; ok {
		return k
	}
	return EventUnknown
}

// DiagFile extracts the "file" discriminator from a {syntax,semantic,suggestion}Diag
// event body without fully unmarshalling it. Nothing in this module calls it;
// the diagnostics scheduler decodes the full event body instead.
func DiagFile(body []byte) (string, bool) {
	res := gjson.GetBytes(body, "file")
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// CompletedRequestSeq extracts request_seq from a requestCompleted event body.
func CompletedRequestSeq(body []byte) (int64, bool) {
	res := gjson.GetBytes(body, "request_seq")
	if !res.Exists() {
		return 0, false
	}
	return res.Int(), true
}

// IsErrorBody reports whether a response body looks like tsserver's inline
// error shape (some commands, e.g. completionInfo, nest a retryable error
// inside an otherwise-successful envelope rather than flipping "success").
func IsErrorBody(body []byte) (message string, isError bool) {
	res := gjson.GetBytes(body, "error")
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// WithPrefix returns args with a "prefix" field injected/overwritten after
// the base arguments object has already been marshalled from a typed struct.
// The completionInfo request does not use it; nothing in this module does.
func WithPrefix(args []byte, prefix string) ([]byte, error) {
	out, err := sjson.SetBytes(args, "prefix", prefix)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithField sets an arbitrary dotted path in an already-marshalled arguments
// object, for one-off per-command argument patches that don't warrant their
// own typed field. Nothing in this module calls it.
func WithField(args []byte, path string, value any) ([]byte, error) {
	return sjson.SetBytes(args, path, value)
}
