package vehicle

import (
	"math"

	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return domain.NewFieldValidationError("latitude", "must be a finite number")
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return domain.NewFieldValidationError("longitude", "must be a finite number")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return domain.NewFieldValidationError("latitude", "must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return domain.NewFieldValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

// DistanceKm returns the great-circle distance to other.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	const earthRadiusKm = 6371.0

	dLat := degreesToRadians(other.Latitude - c.Latitude)
	dLng := degreesToRadians(other.Longitude - c.Longitude)

	lat1Rad := degreesToRadians(c.Latitude)
	lat2Rad := degreesToRadians(other.Latitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
