package tsproto

import (
	"context"
	"io"
	"sync"
)

// Codec binds a Framer to a live child process's stdio/IPC pipes. Writes are
// safe for concurrent use and serialized so a single outgoing message is
// never interleaved with another; Read has a single consumer.
type Codec struct {
	reader Reader
	writer Writer

	writeMu sync.Mutex
}

// NewCodec builds a Codec for the given framing over the given pipes.
func NewCodec(framer Framer, r io.Reader, w io.Writer) *Codec {
	return &Codec{
		reader: framer.Reader(r),
		writer: framer.Writer(w),
	}
}

// Read blocks for the next frame. Only the transport's own Reader is
// single-consumer; callers must not call Read concurrently from multiple
// goroutines (the supervisor owns a single inbound-reader task).
func (c *Codec) Read(ctx context.Context) (Message, error) {
	return c.reader.Read(ctx)
}

// Write sends one message, blocking other writers until it completes.
func (c *Codec) Write(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.Write(ctx, msg)
}
