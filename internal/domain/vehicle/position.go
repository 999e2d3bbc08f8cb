package vehicle

import "time"

// Position is a coordinate observed at a point in time.
type Position struct {
	Coordinate
	Timestamp time.Time `json:"timestamp"`
}

// NewerThan reports whether p was observed strictly after other.
func (p Position) NewerThan(other Position) bool {
	return p.Timestamp.After(other.Timestamp)
}
