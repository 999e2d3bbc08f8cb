package vehicle

import "context"

// Repository is the document-store contract for vehicles. Every write
// touches a single vehicle; no cross-vehicle transactions are assumed.
type Repository interface {
	// FindByID retrieves a vehicle by its identifier.
	FindByID(ctx context.Context, id string) (*Vehicle, error)

	// List retrieves registered vehicles with pagination.
	List(ctx context.Context, page, limit int) ([]*Vehicle, int64, error)

	// ListWithPositions retrieves every vehicle that has reported a position.
	ListWithPositions(ctx context.Context) ([]*Vehicle, error)

	// Save persists a newly registered vehicle.
	Save(ctx context.Context, v *Vehicle) error

	// Update persists registry changes (status, driver, active) with optimistic locking.
	Update(ctx context.Context, v *Vehicle) error

	// UpdatePosition writes pos only if it is newer than the stored position
	// and reports whether the write happened.
	UpdatePosition(ctx context.Context, id string, pos Position, status *Status) (bool, error)

	// UpdateRoute overwrites the vehicle's route. Last writer wins.
	UpdateRoute(ctx context.Context, id string, route Route) error
}
