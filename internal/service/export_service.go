package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/models"
	apperrors "github.com/gradesheet/gradesheet-api/pkg/errors"
	"github.com/gradesheet/gradesheet-api/pkg/export"
)

type reportBuilder interface {
	Merge(ctx context.Context, records []models.ReconciledRecord, assessment, subject string) (models.MergeSummary, []string, error)
	BuildReport(ctx context.Context, classIDs []string, subject string) ([]models.ReportTable, error)
}

type exportRenderer interface {
	RenderAll(titles []string, datasets []export.Dataset) ([]byte, error)
}

type exportStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Sign(exportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error)
}

type mergeCounter interface {
	CountMerge(merged, skipped int)
}

// ExportRequest carries a reviewed batch back for merging and rendering.
type ExportRequest struct {
	Records    []models.ReconciledRecord `json:"records" validate:"required,min=1"`
	Assessment string                    `json:"assessment"`
	Subject    string                    `json:"subject"`
	Format     models.ReportFormat       `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResult is the stored artifact plus its download token.
type ExportResult struct {
	ExportID  string              `json:"export_id"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Summary   models.MergeSummary `json:"summary"`
	Tables    []models.ReportTable `json:"tables"`
}

// ExportService merges reviewed records into the ledger, renders the report
// tables to CSV or PDF, stores the file and hands back a signed download
// token. It also owns the janitor that expires old files.
type ExportService struct {
	ledger   reportBuilder
	csv      exportRenderer
	pdf      exportRenderer
	store    exportStore
	signer   downloadSigner
	metrics  mergeCounter
	validate *validator.Validate
	fileTTL  time.Duration
	logger   *zap.Logger
}

// NewExportService wires the export pipeline. Metrics may be nil.
func NewExportService(ledger reportBuilder, csv, pdf exportRenderer, store exportStore, signer downloadSigner, metrics mergeCounter, fileTTL time.Duration, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fileTTL <= 0 {
		fileTTL = 24 * time.Hour
	}
	return &ExportService{
		ledger:   ledger,
		csv:      csv,
		pdf:      pdf,
		store:    store,
		signer:   signer,
		metrics:  metrics,
		validate: validator.New(),
		fileTTL:  fileTTL,
		logger:   logger,
	}
}

// CreateExport merges the records and renders one table per touched class.
func (s *ExportService) CreateExport(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid export request")
	}

	var renderer exportRenderer
	switch req.Format {
	case models.ReportFormatCSV:
		renderer = s.csv
	case models.ReportFormatPDF:
		renderer = s.pdf
	default:
		return nil, apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}

	summary, classIDs, err := s.ledger.Merge(ctx, req.Records, req.Assessment, req.Subject)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CountMerge(summary.Merged, summary.Skipped)
	}
	if len(classIDs) == 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "no mergeable records in batch")
	}

	tables, err := s.ledger.BuildReport(ctx, classIDs, req.Subject)
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(tables))
	datasets := make([]export.Dataset, len(tables))
	for i, table := range tables {
		titles[i] = fmt.Sprintf("%s - %s", table.ClassName, table.Subject)
		datasets[i] = tableToDataset(table)
	}

	payload, err := renderer.RenderAll(titles, datasets)
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("%s.%s", exportID, req.Format)
	relPath, err := s.store.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(exportID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign download token: %w", err)
	}

	s.logger.Info("export created",
		zap.String("export_id", exportID),
		zap.String("format", string(req.Format)),
		zap.Int("tables", len(tables)),
		zap.Int("merged", summary.Merged),
		zap.Int("skipped", summary.Skipped))

	return &ExportResult{
		ExportID:  exportID,
		Token:     token,
		ExpiresAt: expiresAt,
		Summary:   summary,
		Tables:    tables,
	}, nil
}

// OpenDownload validates the token and opens the stored file. The caller
// closes the handle.
func (s *ExportService) OpenDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrNotFound.Code, apperrors.ErrNotFound.Status, "download link invalid or expired")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrNotFound.Code, apperrors.ErrNotFound.Status, "export file no longer available")
	}
	return file, relPath, nil
}

// StartCleanup deletes expired export files on the given interval until the
// context is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.store.CleanupOlderThan(s.fileTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// tableToDataset flattens a report table into export rows. Column order is
// name, class, the assessment columns, then total and position.
func tableToDataset(table models.ReportTable) export.Dataset {
	headers := append([]string{"Name", "Class"}, table.Assessments...)
	headers = append(headers, "Total", "Position")

	rows := make([]map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		cells := map[string]string{
			"Name":     row.Name,
			"Class":    row.Class,
			"Total":    strconv.FormatFloat(row.Total, 'f', -1, 64),
			"Position": row.Position,
		}
		for _, a := range table.Assessments {
			cells[a] = row.Scores[a]
		}
		rows[i] = cells
	}

	return export.Dataset{Headers: headers, Rows: rows}
}
