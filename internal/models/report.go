package models

// ReportFormat selects the rendered export format.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportRow is one student line in a merged score table.
type ReportRow struct {
	Name     string            `json:"name"`
	Class    string            `json:"class"`
	Scores   map[string]string `json:"scores"`
	Total    float64           `json:"total"`
	Rank     int               `json:"rank"`
	Position string            `json:"position"`
}

// ReportTable groups rows for one (class, subject) pair. Assessments lists
// the score columns in render order.
type ReportTable struct {
	ClassID     string      `json:"class_id"`
	ClassName   string      `json:"class_name"`
	Subject     string      `json:"subject"`
	Assessments []string    `json:"assessments"`
	Rows        []ReportRow `json:"rows"`
}

// MergeSummary reports what a ledger merge call did.
type MergeSummary struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}
