package models

import "time"

// SubjectGeneral is the sentinel subject used when a batch or report does not
// name one.
const SubjectGeneral = "General"

// Score is one (student, assessment type, subject) value. Value stays free
// text so non-numeric OCR artifacts survive round trips; numeric parsing
// happens only at report time. At most one row exists per triple, enforced by
// find-then-update-or-insert rather than a unique constraint.
type Score struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Assessment string    `db:"assessment" json:"assessment"`
	Subject    string    `db:"subject" json:"subject"`
	Value      string    `db:"value" json:"value"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
