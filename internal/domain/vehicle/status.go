package vehicle

import "fmt"

// Status is an informational operating status shown to viewers.
type Status string

const (
	StatusEnRoute Status = "en-route"
	StatusStopped Status = "stopped"
	StatusDelayed Status = "delayed"
)

// IsValid returns true if the status is recognized.
func (s Status) IsValid() bool {
	switch s {
	case StatusEnRoute, StatusStopped, StatusDelayed:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid vehicle status: %s", s)
	}
	return status, nil
}
