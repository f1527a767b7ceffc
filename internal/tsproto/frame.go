package tsproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProtocolError is returned for a malformed frame; this is fatal to the
// transport and must kill the owning process.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "tsproto: protocol error: " + e.msg }

func protoErrf(format string, args ...any) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// Reader reads one framed tsserver message at a time. It is resumable across
// partial reads: a truncated body blocks for more bytes rather than losing
// the frame boundary, and only the underlying io.Reader's own errors (or a
// malformed header) surface as terminal.
type Reader interface {
	Read(ctx context.Context) (Message, error)
}

// Writer atomically writes one framed tsserver message.
type Writer interface {
	Write(ctx context.Context, msg Message) error
}

// Framer wraps byte streams into tsserver message streams. Two
// implementations exist: HeaderFramer for the stdio transport (length-prefixed,
// the same framing LSP itself uses) and IPCFramer for the Node IPC channel
// available from tsserver >= v4.9, where the OS channel already delivers
// discrete messages and no length prefix is written on the wire.
type Framer interface {
	Reader(io.Reader) Reader
	Writer(io.Writer) Writer
}

// HeaderFramer returns a Framer using "Content-Length: <n>\r\n\r\n" headers
// followed by a UTF-8 JSON body, ported from the length-prefixed framing
// golang.org/x/tools/internal/jsonrpc2_v2 uses for LSP itself — tsserver's
// stdio transport uses the identical envelope, differing only in the JSON
// payload shape decoded by Decode.
func HeaderFramer() Framer { return headerFramer{} }

type headerFramer struct{}

type headerReader struct{ in *bufio.Reader }
type headerWriter struct{ out io.Writer }

func (headerFramer) Reader(r io.Reader) Reader { return &headerReader{in: bufio.NewReader(r)} }
func (headerFramer) Writer(w io.Writer) Writer { return &headerWriter{out: w} }

func (r *headerReader) Read(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	firstRead := true
	var contentLength int64
	for {
		line, err := r.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if firstRead && line == "" {
					return nil, ErrExit
				}
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("tsproto: reading header line: %w", err)
		}
		firstRead = false
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		colon := strings.IndexRune(line, ':')
		if colon < 0 {
			return nil, protoErrf("invalid header line %q", line)
		}
		name, value := line[:colon], strings.TrimSpace(line[colon+1:])
		switch name {
		case "Content-Length":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil || n <= 0 {
				return nil, protoErrf("invalid Content-Length %q", value)
			}
			contentLength = n
		default:
			// unknown headers are ignored, mirroring LSP header framing
		}
	}
	if contentLength == 0 {
		return nil, protoErrf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r.in, body); err != nil {
		// io.ReadFull keeps reading across short reads, so an error here
		// means the stream ended or failed mid-body; a truncated body is
		// returned as that io error, not as a ProtocolError.
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("tsproto: reading body: %w", err)
	}
	return Decode(body)
}

func (w *headerWriter) Write(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("tsproto: encoding message: %w", err)
	}
	if _, err := fmt.Fprintf(w.out, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = w.out.Write(data)
	return err
}

// IPCFramer returns a Framer for tsserver's Node IPC channel (>= v4.9,
// --useNodeIpc): each Read/Write already corresponds to one complete
// message, delivered newline-delimited by Node's IPC multiplexer once it
// reaches a plain pipe/socket fd, so no Content-Length prefix is written.
func IPCFramer() Framer { return ipcFramer{} }

type ipcFramer struct{}
type ipcReader struct{ in *bufio.Reader }
type ipcWriter struct{ out io.Writer }

func (ipcFramer) Reader(r io.Reader) Reader { return &ipcReader{in: bufio.NewReader(r)} }
func (ipcFramer) Writer(w io.Writer) Writer { return &ipcWriter{out: w} }

func (r *ipcReader) Read(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	line, err := r.in.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, ErrExit
		}
		if errors.Is(err, io.EOF) {
			// a final message with no trailing newline is still decodable
			return Decode(line)
		}
		return nil, fmt.Errorf("tsproto: reading ipc frame: %w", err)
	}
	return Decode(line[:len(line)-1])
}

func (w *ipcWriter) Write(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("tsproto: encoding message: %w", err)
	}
	data = append(data, '\n')
	_, err = w.out.Write(data)
	return err
}

// ErrExit is returned by a Reader when the underlying IPC channel or stdio
// pipe closes cleanly, distinguishing a tsserver exit from a malformed frame.
var ErrExit = errors.New("tsproto: transport closed")
