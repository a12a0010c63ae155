package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/homelead/mcphost/internal/bsonx"
)

// StdioCodec frames one JSON-RPC object per line over a reader/writer
// pair, tolerating blank lines and malformed frames the way the
// original stdio transport did: a malformed line is logged and skipped
// rather than terminating the stream.
type StdioCodec struct {
	scanner *bufio.Scanner
	w       io.Writer
	wmu     sync.Mutex
	log     *slog.Logger
}

// NewStdio builds a StdioCodec over the given reader/writer.
func NewStdio(r io.Reader, w io.Writer, log *slog.Logger) *StdioCodec {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	if log == nil {
		log = slog.Default()
	}
	return &StdioCodec{scanner: sc, w: w, log: log}
}

func (c *StdioCodec) ReadMessage(ctx context.Context) (Message, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := bsonx.DecodeMessage(line)
		if err != nil {
			c.log.Warn("malformed EJSON frame, skipping", "error", err)
			continue
		}
		return msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, nil // clean EOF
}

func (c *StdioCodec) WriteMessage(ctx context.Context, msg Message) error {
	text, err := bsonx.EncodeMessage(msg)
	if err != nil {
		c.log.Error("failed to serialize message to EJSON", "error", err)
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(append(text, '\n')); err != nil {
		c.log.Error("error writing message to transport", "error", err)
	}
	return nil
}

func (c *StdioCodec) Close() error { return nil }
