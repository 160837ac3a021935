package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/config"
	apperrors "github.com/gradesheet/gradesheet-api/pkg/errors"
)

type stubExtractor struct {
	failOn func(images []string) bool
	short  bool
}

func (s *stubExtractor) ExtractChunk(_ context.Context, images []string, _ []string) ([]models.RawRecord, error) {
	if s.failOn != nil && s.failOn(images) {
		return nil, errors.New("upstream exploded")
	}
	n := len(images)
	if s.short && n > 1 {
		n--
	}
	records := make([]models.RawRecord, n)
	for i := 0; i < n; i++ {
		records[i] = models.RawRecord{
			Name:       "Student " + images[i],
			RawScore:   "10/20",
			Confidence: models.ConfidenceMedium,
		}
	}
	return records, nil
}

func makeImages(n int) []string {
	images := make([]string, n)
	for i := range images {
		images[i] = fmt.Sprintf("img%02d", i)
	}
	return images
}

func collect(t *testing.T, events <-chan models.BatchEvent) []models.BatchEvent {
	t.Helper()
	var out []models.BatchEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func newBatchService(extractor ChunkExtractor, cfg config.BatchConfig) *BatchService {
	return NewBatchService(extractor, NewReconcileService(nil), nil, cfg, nil)
}

func TestBatchProcessEmitsEveryIndexOnce(t *testing.T) {
	svc := newBatchService(&stubExtractor{}, config.BatchConfig{ChunkSize: 3, MaxConcurrency: 4})

	events, err := svc.Process(context.Background(), makeImages(8), nil)
	require.NoError(t, err)

	all := collect(t, events)
	var indices []int
	doneSeen := false
	for _, ev := range all {
		switch ev.Type {
		case models.BatchEventRecord:
			assert.False(t, doneSeen, "done must be the final event")
			indices = append(indices, ev.Index)
			require.NotNil(t, ev.Record)
			assert.Equal(t, "10", ev.Record.Score)
		case models.BatchEventDone:
			doneSeen = true
		default:
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	}
	assert.True(t, doneSeen)

	sort.Ints(indices)
	expected := make([]int, 8)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, indices, "each global index appears exactly once")
}

func TestBatchProcessChunkFailureIsIsolated(t *testing.T) {
	extractor := &stubExtractor{failOn: func(images []string) bool {
		return images[0] == "img03"
	}}
	svc := newBatchService(extractor, config.BatchConfig{ChunkSize: 3, MaxConcurrency: 1})

	events, err := svc.Process(context.Background(), makeImages(7), nil)
	require.NoError(t, err)

	var recordIndices []int
	var errorEvents []models.BatchEvent
	for _, ev := range collect(t, events) {
		switch ev.Type {
		case models.BatchEventRecord:
			recordIndices = append(recordIndices, ev.Index)
		case models.BatchEventError:
			errorEvents = append(errorEvents, ev)
		}
	}

	require.Len(t, errorEvents, 1)
	assert.Equal(t, []int{3, 4, 5}, errorEvents[0].Indices)
	assert.Contains(t, errorEvents[0].Error, "upstream exploded")

	sort.Ints(recordIndices)
	assert.Equal(t, []int{0, 1, 2, 6}, recordIndices, "sibling chunks still deliver")
}

func TestBatchProcessPadsShortExtractorOutput(t *testing.T) {
	svc := newBatchService(&stubExtractor{short: true}, config.BatchConfig{ChunkSize: 3, MaxConcurrency: 1})

	events, err := svc.Process(context.Background(), makeImages(3), nil)
	require.NoError(t, err)

	records := 0
	empty := 0
	for _, ev := range collect(t, events) {
		if ev.Type != models.BatchEventRecord {
			continue
		}
		records++
		if ev.Record.Name == "" {
			empty++
		}
	}
	assert.Equal(t, 3, records)
	assert.Equal(t, 1, empty, "missing extractor output becomes an empty record")
}

func TestBatchProcessRejectsEmptyBatch(t *testing.T) {
	svc := newBatchService(&stubExtractor{}, config.BatchConfig{})

	_, err := svc.Process(context.Background(), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyBatch)
}

func TestBatchChunkSizeClamped(t *testing.T) {
	low := newBatchService(&stubExtractor{}, config.BatchConfig{ChunkSize: 1})
	assert.Equal(t, 3, low.chunkSize)

	high := newBatchService(&stubExtractor{}, config.BatchConfig{ChunkSize: 50})
	assert.Equal(t, 5, high.chunkSize)

	def := newBatchService(&stubExtractor{}, config.BatchConfig{})
	assert.Equal(t, 3, def.chunkSize)
	assert.Equal(t, 4, def.maxConcurrency)
}

func TestSplitChunks(t *testing.T) {
	chunks := splitChunks(makeImages(7), 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].start)
	assert.Equal(t, 3, chunks[1].start)
	assert.Equal(t, 6, chunks[2].start)
	assert.Len(t, chunks[2].images, 1)
	assert.True(t, strings.HasPrefix(chunks[2].images[0], "img06"))
}
