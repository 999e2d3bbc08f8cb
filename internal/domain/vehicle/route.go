package vehicle

import (
	"fmt"

	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// RoutePointCount is the number of points a route is made of: start and end.
const RoutePointCount = 2

// Route is an ordered start/end pair authored by an admin.
type Route struct {
	Points []Coordinate `json:"points"`
}

// NewRoute validates points and builds a Route. A route whose start equals
// its end is accepted.
func NewRoute(points []Coordinate) (Route, error) {
	if len(points) != RoutePointCount {
		return Route{}, domain.NewFieldValidationError("points",
			fmt.Sprintf("route needs exactly %d points, got %d", RoutePointCount, len(points)))
	}
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return Route{}, err
		}
	}
	cp := make([]Coordinate, len(points))
	copy(cp, points)
	return Route{Points: cp}, nil
}

// DistanceKm is the straight-line length of the route.
func (r Route) DistanceKm() float64 {
	var total float64
	for i := 1; i < len(r.Points); i++ {
		total += r.Points[i-1].DistanceKm(r.Points[i])
	}
	return total
}
