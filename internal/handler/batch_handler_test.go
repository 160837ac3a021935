package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/internal/service"
	"github.com/gradesheet/gradesheet-api/pkg/config"
)

type staticExtractor struct{}

func (staticExtractor) ExtractChunk(_ context.Context, images []string, _ []string) ([]models.RawRecord, error) {
	records := make([]models.RawRecord, len(images))
	for i := range images {
		records[i] = models.RawRecord{Name: "Jane Doe", RawScore: "12/20", Confidence: models.ConfidenceHigh}
	}
	return records, nil
}

func newBatchRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	batches := service.NewBatchService(staticExtractor{}, service.NewReconcileService(nil), nil, config.BatchConfig{}, nil)
	rosters := service.NewRosterService(nil, nil, nil, nil, nil)
	h := NewBatchHandler(batches, rosters, nil)

	router := gin.New()
	router.POST("/api/v1/batches", h.Create)
	return router
}

func TestBatchCreateStreamsRecordsAndSentinel(t *testing.T) {
	router := newBatchRouter(t)

	body := `{"images":["aaa","bbb","ccc","ddd"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "data: [DONE]", lines[len(lines)-1])

	// The first image's position must be explicit on the wire; consumers
	// cannot tell a defaulted zero from an absent field.
	assert.Contains(t, rec.Body.String(), `"index":0`)

	var indices []int
	for _, line := range lines[:len(lines)-1] {
		payload := strings.TrimPrefix(line, "data: ")
		var ev models.BatchEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		require.Equal(t, models.BatchEventRecord, ev.Type)
		require.NotNil(t, ev.Record)
		assert.Equal(t, "Jane Doe", ev.Record.Name)
		assert.Equal(t, "12", ev.Record.Score)
		indices = append(indices, ev.Index)
	}
	sort.Ints(indices)
	assert.Equal(t, []int{0, 1, 2, 3}, indices)
}

func TestBatchCreateRejectsEmptyImages(t *testing.T) {
	router := newBatchRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(`{"images":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
