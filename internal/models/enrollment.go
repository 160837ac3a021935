package models

import "time"

// SubjectEnrollment marks a student as selectively enrolled in a subject's
// assessment tracking. For a given (class, subject), the absence of any rows
// means open enrollment; the presence of rows switches that subject to an
// allowlist.
type SubjectEnrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
