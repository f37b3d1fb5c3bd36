package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriterDefersHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEWriter(rec)
	require.NotNil(t, sse)
	assert.False(t, sse.Started())

	sse.Send("delta", map[string]any{"index": 1, "content": "Hi"})
	sse.Send("end", map[string]any{})

	assert.True(t, sse.Started())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: delta\ndata: {\"content\":\"Hi\",\"index\":1}\n\nevent: end\ndata: {}\n\n", rec.Body.String())
}

type plainWriter struct{ http.ResponseWriter }

func TestSSEWriterRequiresFlusher(t *testing.T) {
	assert.Nil(t, NewSSEWriter(plainWriter{httptest.NewRecorder()}))
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusConflict, "session busy")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"session busy"}`, rec.Body.String())
}
