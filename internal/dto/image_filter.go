package dto

import "time"

// ImageFilters narrow the archived capture list.
type ImageFilters struct {
	Kind   string
	Status string
	After  time.Time
	Before time.Time
	Limit  int
	Offset int
}
