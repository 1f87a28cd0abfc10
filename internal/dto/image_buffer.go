package dto

import (
	"time"

	"plantwatch/internal/model"
)

// BufferedImage holds an encoded capture before it is flushed to disk.
type BufferedImage struct {
	Timestamp time.Time
	Kind      string
	Status    model.Status
	Data      []byte
}
