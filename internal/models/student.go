package models

import "time"

// Student represents one enrolled student within exactly one class. Name is
// stored title-cased and is unique (case-sensitive) within its class.
type Student struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail pairs a student with its owning class name for responses.
type StudentDetail struct {
	Student
	ClassName string `db:"class_name" json:"class_name"`
}
