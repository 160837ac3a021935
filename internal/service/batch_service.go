package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	"github.com/gradesheet/gradesheet-api/pkg/config"
	apperrors "github.com/gradesheet/gradesheet-api/pkg/errors"
)

const (
	minChunkSize = 3
	maxChunkSize = 5

	defaultChunkSize      = 3
	defaultMaxConcurrency = 4
)

// ChunkExtractor reads a chunk of score-sheet images. Implemented by the
// vision client; stubbed in tests.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, images []string, knownNames []string) ([]models.RawRecord, error)
}

// extractionMetrics records per-chunk outcomes. Nil is fine.
type extractionMetrics interface {
	ObserveChunk(outcome string, seconds float64)
}

// BatchService fans a batch of images out to the extractor in small chunks
// and streams reconciled records back as chunks complete. One failed chunk
// produces a single error event carrying its image indices; sibling chunks
// are unaffected.
type BatchService struct {
	extractor      ChunkExtractor
	reconciler     *ReconcileService
	metrics        extractionMetrics
	chunkSize      int
	maxConcurrency int
	logger         *zap.Logger
}

// NewBatchService wires the coordinator. Chunk size is clamped to [3,5];
// out-of-range or zero config values fall back to the defaults.
func NewBatchService(extractor ChunkExtractor, reconciler *ReconcileService, metrics extractionMetrics, cfg config.BatchConfig, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	chunk := cfg.ChunkSize
	if chunk == 0 {
		chunk = defaultChunkSize
	}
	if chunk < minChunkSize {
		chunk = minChunkSize
	}
	if chunk > maxChunkSize {
		chunk = maxChunkSize
	}
	conc := cfg.MaxConcurrency
	if conc <= 0 {
		conc = defaultMaxConcurrency
	}
	return &BatchService{
		extractor:      extractor,
		reconciler:     reconciler,
		metrics:        metrics,
		chunkSize:      chunk,
		maxConcurrency: conc,
		logger:         logger,
	}
}

type chunk struct {
	start  int
	images []string
}

// Process streams one record event per image (in completion order, not input
// order), error events for failed chunks, and a terminal done event. The
// channel closes after the done event. An empty batch is rejected before any
// work starts.
func (s *BatchService) Process(ctx context.Context, images []string, rosters []ClassRoster) (<-chan models.BatchEvent, error) {
	if len(images) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}

	knownNames := combinedPool(rosters)
	chunks := splitChunks(images, s.chunkSize)

	events := make(chan models.BatchEvent, len(images)+len(chunks)+1)
	go func() {
		defer close(events)

		sem := make(chan struct{}, s.maxConcurrency)
		var wg sync.WaitGroup
		for _, c := range chunks {
			wg.Add(1)
			go func(c chunk) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					s.emitChunkError(ctx, events, c, ctx.Err().Error())
					return
				}
				s.processChunk(ctx, events, c, knownNames, rosters)
			}(c)
		}
		wg.Wait()

		select {
		case events <- models.BatchEvent{Type: models.BatchEventDone}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

func (s *BatchService) processChunk(ctx context.Context, events chan<- models.BatchEvent, c chunk, knownNames []string, rosters []ClassRoster) {
	started := time.Now()
	records, err := s.extractor.ExtractChunk(ctx, c.images, knownNames)
	if err != nil {
		s.observe("error", started)
		s.logger.Warn("chunk extraction failed",
			zap.Int("start_index", c.start),
			zap.Int("size", len(c.images)),
			zap.Error(err))
		s.emitChunkError(ctx, events, c, err.Error())
		return
	}
	s.observe("ok", started)

	// The extractor aligns records positionally, padding with zero records
	// when it returned less than it was sent.
	for i := 0; i < len(c.images); i++ {
		var raw models.RawRecord
		if i < len(records) {
			raw = records[i]
		}
		rec := s.reconciler.Reconcile(raw, rosters)
		event := models.BatchEvent{
			Type:   models.BatchEventRecord,
			Index:  c.start + i,
			Record: &rec,
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (s *BatchService) emitChunkError(ctx context.Context, events chan<- models.BatchEvent, c chunk, msg string) {
	indices := make([]int, len(c.images))
	for i := range c.images {
		indices[i] = c.start + i
	}
	select {
	case events <- models.BatchEvent{Type: models.BatchEventError, Indices: indices, Error: msg}:
	case <-ctx.Done():
	}
}

func (s *BatchService) observe(outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveChunk(outcome, time.Since(started).Seconds())
}

func splitChunks(images []string, size int) []chunk {
	chunks := make([]chunk, 0, (len(images)+size-1)/size)
	for start := 0; start < len(images); start += size {
		end := start + size
		if end > len(images) {
			end = len(images)
		}
		chunks = append(chunks, chunk{start: start, images: images[start:end]})
	}
	return chunks
}
