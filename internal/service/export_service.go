package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/omr-grade-api/pkg/errors"
	"github.com/noah-isme/omr-grade-api/pkg/export"
)

// Export formats the score listing supports.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var exportHeaders = []string{"student_number", "full_name", "set_code", "raw_score", "percent"}

// ExportService renders an exam's score listing as a downloadable file.
type ExportService struct {
	scores  scoreStore
	lookups referenceReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService creates an export service.
func NewExportService(scores scoreStore, lookups referenceReader, logger *zap.Logger) *ExportService {
	return &ExportService{
		scores:  scores,
		lookups: lookups,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportScores renders all scores of the exam in the requested format,
// ordered by student number.
func (s *ExportService) ExportScores(ctx context.Context, examID, format string) (*ExportFile, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("format must be %s or %s", ExportFormatCSV, ExportFormatPDF))
	}

	exam, err := s.lookups.FindExam(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load exam")
	}

	rows, err := s.scores.RowsByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list scores")
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student_number": row.StudentNumber,
			"full_name":      row.FullName,
			"set_code":       row.SetCode,
			"raw_score":      strconv.Itoa(row.RawScore),
			"percent":        strconv.FormatFloat(row.Percent, 'f', 2, 64),
		})
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		data, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		data, err = s.pdf.Render(dataset, exam.Title)
		contentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render export")
	}

	s.logger.Info("scores exported",
		zap.String("exam_id", examID), zap.String("format", format), zap.Int("rows", len(rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("exam-%s-scores.%s", examID, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}
