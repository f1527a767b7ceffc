package tsproto

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeaderFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := HeaderFramer().Writer(&buf)
	ctx := context.Background()

	req := &Request{Seq: 1, Command: "open", Arguments: json.RawMessage(`{"file":"/a.ts"}`)}
	if err := w.Write(ctx, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := HeaderFramer().Reader(&buf)
	got, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	gotReq, ok := got.(*Request)
	if !ok {
		t.Fatalf("got %T, want *Request", got)
	}
	if diff := cmp.Diff(req.Seq, gotReq.Seq); diff != "" {
		t.Errorf("seq mismatch (-want +got):\n%s", diff)
	}
	if gotReq.Command != "open" {
		t.Errorf("command = %q, want open", gotReq.Command)
	}
}

func TestHeaderFramerTruncatedBodyIsNotFatal(t *testing.T) {
	// A body shorter than Content-Length should surface as io.ErrUnexpectedEOF,
	// not as a ProtocolError: a truncated body must not be
	// treated as fatal, only a malformed header is.
	raw := "Content-Length: 100\r\n\r\n{\"seq\":1}"
	r := HeaderFramer().Reader(bytes.NewBufferString(raw))
	_, err := r.Read(context.Background())
	if err == nil {
		t.Fatal("expected an error for truncated body")
	}
	var pe *ProtocolError
	if ok := asProtocolError(err, &pe); ok {
		t.Fatalf("truncated body should not be a ProtocolError, got %v", err)
	}
}

func TestHeaderFramerMalformedHeaderIsFatal(t *testing.T) {
	raw := "Content-Length: not-a-number\r\n\r\n{}"
	r := HeaderFramer().Reader(bytes.NewBufferString(raw))
	_, err := r.Read(context.Background())
	var pe *ProtocolError
	if !asProtocolError(err, &pe) {
		t.Fatalf("expected a ProtocolError, got %v (%T)", err, err)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}

func TestDecodeDispatchesByType(t *testing.T) {
	cases := []struct {
		name string
		body string
		want MessageType
	}{
		{"response", `{"type":"response","seq":2,"request_seq":1,"success":true,"command":"open"}`, TypeResponse},
		{"event", `{"type":"event","seq":0,"event":"syntaxDiag","body":{}}`, TypeEvent},
		{"request", `{"type":"request","seq":1,"command":"geterr"}`, TypeRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.messageType() != tc.want {
				t.Errorf("got %v, want %v", msg.messageType(), tc.want)
			}
		})
	}
}

func TestDecodeUnknownTypeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	if err == nil {
		t.Fatal("expected an error for unknown type")
	}
}
