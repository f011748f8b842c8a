// ABOUTME: Newline-delimited JSON push protocol for streamed replies
// ABOUTME: Writes chunk, complete and error records and closes the response exactly once

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/store"
)

const (
	// ContentType is the media type of the stream body.
	ContentType = "application/x-ndjson"

	// ErrorText is the only reason ever sent in an error record.
	ErrorText = "unable to generate reply"
)

// Record types.
const (
	TypeChunk    = "chunk"
	TypeComplete = "complete"
	TypeError    = "error"
)

// ErrClosed is returned for writes after Close or after an error record.
var ErrClosed = errors.New("stream closed")

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Record is one line of the stream.
type Record struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Message *store.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Emitter writes records to an HTTP response.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger

	mu        sync.Mutex
	opened    bool
	done      bool // complete or error record written
	closed    bool
	writeErr  error
	closeOnce sync.Once
}

// NewEmitter wraps w. It fails when w cannot be flushed incrementally.
func NewEmitter(w http.ResponseWriter, logger *slog.Logger) (*Emitter, error) {
	flusher, ok := getFlusher(w)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		w:       w,
		flusher: flusher,
		logger:  logger.With("component", "stream"),
	}, nil
}

// getFlusher finds a Flusher, unwrapping middleware writers as needed.
func getFlusher(w http.ResponseWriter) (http.Flusher, bool) {
	for {
		if f, ok := w.(http.Flusher); ok {
			return f, true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil, false
		}
		w = u.Unwrap()
	}
}

// Open declares the streaming headers and flushes them with an empty write.
// Open is idempotent; writing a record opens the stream implicitly.
func (e *Emitter) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openLocked()
}

func (e *Emitter) openLocked() error {
	if e.opened {
		return e.writeErr
	}
	e.opened = true

	h := e.w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)

	if _, err := e.w.Write(nil); err != nil {
		e.writeErr = err
		return err
	}
	e.flusher.Flush()
	return nil
}

// Chunk writes one chunk record. It satisfies the conversation chunk sink.
func (e *Emitter) Chunk(text string) error {
	if err := e.write(Record{Type: TypeChunk, Content: text}, false); err != nil {
		return err
	}
	metrics.StreamChunks.Inc()
	return nil
}

// Complete writes the terminal message record.
func (e *Emitter) Complete(msg *store.Message) error {
	return e.write(Record{Type: TypeComplete, Message: msg}, true)
}

// Fail writes the error record. Later records are refused.
func (e *Emitter) Fail() error {
	metrics.StreamFailures.Inc()
	return e.write(Record{Type: TypeError, Error: ErrorText}, true)
}

func (e *Emitter) write(rec Record, terminal bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.done {
		return ErrClosed
	}
	if err := e.openLocked(); err != nil {
		return err
	}
	if e.writeErr != nil {
		return e.writeErr
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", rec.Type, err)
	}
	line = append(line, '\n')

	if terminal {
		e.done = true
	}
	if _, err := e.w.Write(line); err != nil {
		// The client is gone; stop writing for good.
		e.writeErr = err
		return err
	}
	e.flusher.Flush()
	return nil
}

// Close ends the stream. Only the first call has any effect.
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		if e.opened && e.writeErr == nil {
			e.flusher.Flush()
		}
	})
	return nil
}

// Closed reports whether Close has run.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Serve opens the stream, runs produce with the emitter as its chunk sink and
// finishes with a complete record, or an error record when produce fails.
// The emitter is always closed before Serve returns.
func Serve(e *Emitter, produce func(sink *Emitter) (*store.Message, error)) error {
	defer e.Close()

	if err := e.Open(); err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}

	msg, err := produce(e)
	if err == nil && msg == nil {
		err = errors.New("no terminal message")
	}
	if err != nil {
		if failErr := e.Fail(); failErr != nil {
			e.logger.Debug("error record not delivered", "error", failErr)
		}
		return fmt.Errorf("streaming reply: %w", err)
	}

	if err := e.Complete(msg); err != nil {
		return fmt.Errorf("writing complete record: %w", err)
	}
	return nil
}
