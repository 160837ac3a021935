package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderAll concatenates several datasets into one CSV document, separating
// them with a blank line and a title row. Used for multi-class exports.
func (e *CSVExporter) RenderAll(titles []string, datasets []Dataset) ([]byte, error) {
	if len(titles) != len(datasets) {
		return nil, fmt.Errorf("titles and datasets length mismatch")
	}
	buf := &bytes.Buffer{}
	for i, data := range datasets {
		if i > 0 {
			buf.WriteString("\n")
		}
		writer := csv.NewWriter(buf)
		if err := writer.Write([]string{titles[i]}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
		writer.Flush()
		section, err := e.Render(data)
		if err != nil {
			return nil, err
		}
		buf.Write(section)
	}
	return buf.Bytes(), nil
}
