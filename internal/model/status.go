package model

import (
	"encoding/json"
	"fmt"
)

// Status is the plant health classification of a frame.
type Status int

const (
	StatusNoObjects Status = iota
	StatusHealthy
	StatusDiseased
	StatusMixed
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusNoObjects:
		return "noObjects"
	case StatusHealthy:
		return "healthy"
	case StatusDiseased:
		return "diseased"
	case StatusMixed:
		return "mixed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus converts a wire name back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "noObjects":
		return StatusNoObjects, nil
	case "healthy":
		return StatusHealthy, nil
	case "diseased":
		return StatusDiseased, nil
	case "mixed":
		return StatusMixed, nil
	}
	return StatusNoObjects, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText lets Status be stored as text in sqlite and used as a map key.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
