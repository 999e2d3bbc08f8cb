package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
)

func locationBody(vehicleID string, lat, lon float64, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"vehicle_id": vehicleID,
		"latitude":   lat,
		"longitude":  lon,
		"timestamp":  ts.Format(time.RFC3339),
	}
}

func TestReportLocation(t *testing.T) {
	s := newTestServer(t, "bus-1")
	driver := s.token(t, "driver-1", auth.RoleDriver)
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)

	w := s.do(t, http.MethodPost, "/api/v1/locations", driver, locationBody("bus-1", 36.70, 5.05, ts))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var res application.IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.True(t, res.Applied)

	// Older report: acknowledged, not applied.
	w = s.do(t, http.MethodPost, "/api/v1/locations", driver, locationBody("bus-1", 36.71, 5.06, ts.Add(-time.Minute)))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.False(t, res.Applied)

	snap, ok := s.state.Get("bus-1")
	require.True(t, ok)
	assert.Equal(t, 36.70, snap.Latitude)
}

func TestReportLocation_ValidationError(t *testing.T) {
	s := newTestServer(t, "bus-1")
	driver := s.token(t, "driver-1", auth.RoleDriver)

	w := s.do(t, http.MethodPost, "/api/v1/locations", driver, locationBody("bus-1", 200, 0, time.Now()))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "latitude", env.Error.Field)

	_, ok := s.state.Get("bus-1")
	assert.False(t, ok)

	w = s.do(t, http.MethodPost, "/api/v1/locations", driver, "not an object")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReportLocation_Auth(t *testing.T) {
	s := newTestServer(t, "bus-1")
	body := locationBody("bus-1", 1, 1, time.Now())

	w := s.do(t, http.MethodPost, "/api/v1/locations", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/locations", "garbage", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/locations", s.token(t, "p-1", auth.RoleParent), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
