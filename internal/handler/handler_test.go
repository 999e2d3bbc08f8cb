package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// stubRepo is a minimal in-memory vehicle.Repository.
type stubRepo struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle.Vehicle
}

func (r *stubRepo) FindByID(_ context.Context, id string) (*vehicle.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, domain.NewNotFoundError("Vehicle", id)
	}
	return copyVehicle(v), nil
}

func (r *stubRepo) List(_ context.Context, _, _ int) ([]*vehicle.Vehicle, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*vehicle.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, copyVehicle(v))
	}
	return out, int64(len(out)), nil
}

func (r *stubRepo) ListWithPositions(ctx context.Context) ([]*vehicle.Vehicle, error) {
	all, _, err := r.List(ctx, 1, 0)
	return all, err
}

func (r *stubRepo) Save(_ context.Context, v *vehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[v.ID()]; ok {
		return domain.NewConflictError("already registered")
	}
	r.vehicles[v.ID()] = copyVehicle(v)
	return nil
}

func (r *stubRepo) Update(_ context.Context, v *vehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vehicles[v.ID()] = copyVehicle(v)
	return nil
}

func (r *stubRepo) UpdatePosition(_ context.Context, id string, pos vehicle.Position, _ *vehicle.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return false, nil
	}
	return v.RecordPosition(pos), nil
}

func (r *stubRepo) UpdateRoute(_ context.Context, id string, rt vehicle.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return domain.NewNotFoundError("Vehicle", id)
	}
	v.SetRoute(rt)
	return nil
}

func copyVehicle(v *vehicle.Vehicle) *vehicle.Vehicle {
	return vehicle.ReconstructVehicle(v.ID(), v.Label(), v.DriverID(), v.Active(), v.Status(),
		v.LastPosition(), v.Route(), v.Version(), v.CreatedAt(), v.UpdatedAt())
}

type testServer struct {
	router *gin.Engine
	jwt    *auth.JWTManager
	repo   *stubRepo
	state  *fleet.State
	hub    *fleet.Hub
}

func newTestServer(t *testing.T, ids ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &stubRepo{vehicles: make(map[string]*vehicle.Vehicle)}
	for _, id := range ids {
		v, err := vehicle.NewVehicle(id, "", "")
		require.NoError(t, err)
		repo.vehicles[id] = v
	}

	log := zap.NewNop()
	hub := fleet.NewHub(fleet.HubOptions{Buffer: 8}, log)
	t.Cleanup(hub.Close)
	state := fleet.NewState(hub, log)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	ingest := application.NewIngestService(repo, state, time.Minute, log)
	tracking := application.NewTrackingService(repo, state, hub, application.TrackingOptions{}, log)
	authoring := application.NewAuthoringService(repo, nil, "tracking.events", log)
	vehicles := application.NewVehicleService(repo, state, log)

	router := gin.New()
	NewLocationHandler(ingest).RegisterRoutes(&router.RouterGroup, jwtManager)
	NewFleetHandler(tracking, log).RegisterRoutes(&router.RouterGroup, jwtManager)
	NewRouteHandler(authoring, tracking).RegisterRoutes(&router.RouterGroup, jwtManager)
	NewAdminVehicleHandler(vehicles).RegisterRoutes(&router.RouterGroup, jwtManager)

	return &testServer{router: router, jwt: jwtManager, repo: repo, state: state, hub: hub}
}

func (s *testServer) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
