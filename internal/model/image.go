package model

import "time"

// Image represents an archived capture on disk.
type Image struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
}
