package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/config"
)

func newTestClient(t *testing.T, baseURL string, keys []string) *Client {
	t.Helper()
	return NewClient(config.VisionConfig{
		APIKeys:        keys,
		Model:          "gemini-2.5-flash",
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, nil)
}

func candidateBody(text string) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestExtractChunkParsesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("x-goog-api-key"))
		text := "```json\n[{\"index\":0,\"name\":\"Jon Smith\",\"class\":\"JSS 1A\",\"score\":\"15/20\",\"confidence\":\"High\"},{\"index\":1,\"name\":\"Jane Doe\",\"score\":\"12\",\"confidence\":\"medium\"}]\n```"
		w.Write([]byte(candidateBody(text)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, []string{"key-1"})
	records, err := client.ExtractChunk(context.Background(), []string{"aGVsbG8=", "d29ybGQ="}, []string{"John Smith"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Jon Smith", records[0].Name)
	assert.Equal(t, "JSS 1A", records[0].ClassHint)
	assert.Equal(t, "15/20", records[0].RawScore)
	assert.Equal(t, models.ConfidenceHigh, records[0].Confidence)
	assert.Equal(t, models.ConfidenceMedium, records[1].Confidence)
}

func TestExtractChunkRotatesKeyOnQuota(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Equal(t, "key-1", r.Header.Get("x-goog-api-key"))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		assert.Equal(t, "key-2", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(candidateBody(`[{"index":0,"name":"Amaka Obi","score":"9","confidence":"Low"}]`)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, []string{"key-1", "key-2"})
	records, err := client.ExtractChunk(context.Background(), []string{"aGVsbG8="}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Amaka Obi", records[0].Name)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestExtractChunkExhaustedRetriesIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, []string{"key-1"})
	_, err := client.ExtractChunk(context.Background(), []string{"aGVsbG8="}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction provider unavailable")
}

func TestExtractChunkRejectsEmptyInput(t *testing.T) {
	client := newTestClient(t, "http://localhost", []string{"key-1"})
	_, err := client.ExtractChunk(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestParseRecordsUnparseableYieldsZeroRecords(t *testing.T) {
	records := parseRecords("sorry, I cannot read these images", 3)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Empty(t, rec.Name)
		assert.Empty(t, rec.RawScore)
	}
}

func TestParseRecordsClampsBadIndexes(t *testing.T) {
	records := parseRecords(`[{"index":7,"name":"A","score":"1"},{"index":-2,"name":"B","score":"2"}]`, 2)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Name)
	assert.Equal(t, "B", records[1].Name)
}

func TestSplitDataURL(t *testing.T) {
	mime, data := splitDataURL("data:image/png;base64,aGVsbG8=")
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, "aGVsbG8=", data)

	mime, data = splitDataURL("aGVsbG8=")
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "aGVsbG8=", data)
}

func TestKeyRingRotation(t *testing.T) {
	ring := NewKeyRing([]string{"a", "", "b"})
	assert.Equal(t, 2, ring.Len())

	cur, err := ring.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", cur)

	next, err := ring.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "b", next)

	next, err = ring.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "a", next)
}

func TestKeyRingEmpty(t *testing.T) {
	ring := NewKeyRing(nil)
	_, err := ring.Current()
	assert.ErrorIs(t, err, ErrNoKeys)
}
