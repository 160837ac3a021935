package models

import "github.com/gradesheet/gradesheet-api/pkg/fuzzy"

// Confidence is the extractor's self-reported certainty for a record.
type Confidence string

const (
	ConfidenceHigh    Confidence = "High"
	ConfidenceMedium  Confidence = "Medium"
	ConfidenceLow     Confidence = "Low"
	ConfidenceUnknown Confidence = "Unknown"
)

// ParseConfidence maps the extractor's free-text confidence onto the enum.
func ParseConfidence(raw string) Confidence {
	switch raw {
	case "High", "high":
		return ConfidenceHigh
	case "Medium", "medium":
		return ConfidenceMedium
	case "Low", "low":
		return ConfidenceLow
	default:
		return ConfidenceUnknown
	}
}

// RawRecord is one extractor output, validated at the extraction boundary so
// downstream code never probes loosely-typed maps. Empty strings stand for
// fields the extractor could not read.
type RawRecord struct {
	Name       string     `json:"name"`
	ClassHint  string     `json:"class"`
	RawScore   string     `json:"score"`
	Confidence Confidence `json:"confidence"`
}

// ResolutionState says how a record's name fared against the roster pool.
type ResolutionState string

const (
	// ResolutionResolved means the name matched a roster entry (exactly or
	// by a clear fuzzy winner) and was rewritten to the roster spelling.
	ResolutionResolved ResolutionState = "resolved"
	// ResolutionAmbiguous means the fuzzy match was inconclusive; Candidates
	// carries the top scorers for human review and Name is left as extracted.
	ResolutionAmbiguous ResolutionState = "ambiguous"
	// ResolutionUnresolved means no resolution was attempted or possible
	// (missing name or empty roster pool).
	ResolutionUnresolved ResolutionState = "unresolved"
)

// ReconciledRecord is a RawRecord after score cleanup, name resolution and
// class routing. ClassID is empty when routing failed and the record needs
// manual filing.
type ReconciledRecord struct {
	Name            string          `json:"name"`
	ClassID         string          `json:"class_id,omitempty"`
	ClassName       string          `json:"class_name,omitempty"`
	Score           string          `json:"score"`
	Confidence      Confidence      `json:"confidence"`
	Resolution      ResolutionState `json:"resolution"`
	NeedsResolution bool            `json:"needs_resolution"`
	Candidates      []fuzzy.Match   `json:"candidates,omitempty"`
}

// BatchEventType discriminates entries on the batch output stream.
type BatchEventType string

const (
	BatchEventRecord BatchEventType = "record"
	BatchEventError  BatchEventType = "error"
	BatchEventDone   BatchEventType = "done"
)

// BatchEvent is one streamed result. Record events carry the image's global
// index; error events carry every global index of the failed chunk.
type BatchEvent struct {
	Type    BatchEventType    `json:"type"`
	Index   int               `json:"index"`
	Indices []int             `json:"indices,omitempty"`
	Record  *ReconciledRecord `json:"record,omitempty"`
	Error   string            `json:"error,omitempty"`
}
