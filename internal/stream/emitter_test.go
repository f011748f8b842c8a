package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func decodeRecords(t *testing.T, body string) []Record {
	t.Helper()
	var records []Record
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line %q", sc.Text())
		records = append(records, r)
	}
	require.NoError(t, sc.Err())
	return records
}

func newTestEmitter(t *testing.T) (*Emitter, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	em, err := NewEmitter(rec, nil)
	require.NoError(t, err)
	return em, rec
}

func TestServe_Success(t *testing.T) {
	em, rec := newTestEmitter(t)

	msg := store.NewMessage(store.RoleAssistant, "Hello world")
	err := Serve(em, func(sink *Emitter) (*store.Message, error) {
		require.NoError(t, sink.Chunk("Hello"))
		require.NoError(t, sink.Chunk(" world"))
		return &msg, nil
	})
	require.NoError(t, err)
	assert.True(t, em.Closed())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "chunked", rec.Header().Get("Transfer-Encoding"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	records := decodeRecords(t, rec.Body.String())
	require.Len(t, records, 3)
	assert.Equal(t, TypeChunk, records[0].Type)
	assert.Equal(t, TypeChunk, records[1].Type)
	assert.Equal(t, TypeComplete, records[2].Type)
	assert.Equal(t, records[0].Content+records[1].Content, records[2].Message.Content)
	assert.Equal(t, msg.ID, records[2].Message.ID)
}

func TestServe_FailureEmitsSingleErrorRecord(t *testing.T) {
	em, rec := newTestEmitter(t)
	boom := errors.New("model exploded: secret details")

	err := Serve(em, func(sink *Emitter) (*store.Message, error) {
		require.NoError(t, sink.Chunk("partial"))
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, em.Closed())

	records := decodeRecords(t, rec.Body.String())
	require.Len(t, records, 2)
	assert.Equal(t, TypeChunk, records[0].Type)
	assert.Equal(t, TypeError, records[1].Type)
	assert.Equal(t, ErrorText, records[1].Error)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestServe_NilMessageIsFailure(t *testing.T) {
	em, rec := newTestEmitter(t)
	err := Serve(em, func(sink *Emitter) (*store.Message, error) {
		return nil, nil
	})
	require.Error(t, err)

	records := decodeRecords(t, rec.Body.String())
	require.Len(t, records, 1)
	assert.Equal(t, TypeError, records[0].Type)
}

func TestEmitter_NoRecordsAfterTerminal(t *testing.T) {
	em, rec := newTestEmitter(t)

	require.NoError(t, em.Fail())
	assert.ErrorIs(t, em.Chunk("late"), ErrClosed)
	assert.ErrorIs(t, em.Complete(&store.Message{}), ErrClosed)
	assert.ErrorIs(t, em.Fail(), ErrClosed)

	assert.Len(t, decodeRecords(t, rec.Body.String()), 1)
}

func TestEmitter_CloseOnce(t *testing.T) {
	em, _ := newTestEmitter(t)
	require.NoError(t, em.Open())
	require.NoError(t, em.Close())
	require.NoError(t, em.Close())
	assert.ErrorIs(t, em.Chunk("after close"), ErrClosed)
}

// brokenWriter simulates a client that disconnected after the headers.
type brokenWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (b *brokenWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.writes++
	return 0, errors.New("broken pipe")
}

func TestEmitter_StopsWritingAfterDisconnect(t *testing.T) {
	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	em, err := NewEmitter(w, nil)
	require.NoError(t, err)

	produced := 0
	err = Serve(em, func(sink *Emitter) (*store.Message, error) {
		for i := 0; i < 10; i++ {
			if err := sink.Chunk("x"); err != nil {
				return nil, err
			}
			produced++
		}
		m := store.NewMessage(store.RoleAssistant, "xxxxxxxxxx")
		return &m, nil
	})
	require.Error(t, err)
	assert.Zero(t, produced)
	assert.Equal(t, 1, w.writes)
	assert.True(t, em.Closed())
}

type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header        { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestNewEmitter_RequiresFlusher(t *testing.T) {
	_, err := NewEmitter(&plainWriter{header: http.Header{}}, nil)
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
