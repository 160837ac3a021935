package models

import "time"

// Class represents one roster group, e.g. "SS 1Q". Name holds the normalized
// display form (uppercase letter prefix, space, alphanumeric rest) and is
// unique case-insensitively.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with its roster.
type ClassDetail struct {
	Class
	Students []Student `json:"students"`
}
