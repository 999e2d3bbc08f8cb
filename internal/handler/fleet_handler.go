package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/feed"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/middleware"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessageUpdate   = "update"
)

// StreamMessage is one frame sent to a websocket viewer.
type StreamMessage struct {
	Type     string           `json:"type"`
	Vehicles []fleet.Snapshot `json:"vehicles,omitempty"`
	Vehicle  *fleet.Snapshot  `json:"vehicle,omitempty"`
}

// FleetHandler serves live vehicle positions to viewers.
type FleetHandler struct {
	service  *application.TrackingService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(service *application.TrackingService, logger *zap.Logger) *FleetHandler {
	return &FleetHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRoutes registers the viewer routes. Any authenticated role may view.
func (h *FleetHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	fleetGroup := r.Group("/api/v1/fleet")
	fleetGroup.Use(middleware.AuthMiddleware(jwtManager))
	{
		fleetGroup.GET("", h.ListPositions)
		fleetGroup.GET("/stream", h.Stream)
		fleetGroup.GET("/gtfs-rt", h.GTFSRealtime)
		fleetGroup.GET("/:vehicleId", h.GetPosition)
	}
}

// ListPositions handles GET /api/v1/fleet.
func (h *FleetHandler) ListPositions(c *gin.Context) {
	response.Success(c, h.service.List(parseFilter(c)))
}

// GetPosition handles GET /api/v1/fleet/:vehicleId.
func (h *FleetHandler) GetPosition(c *gin.Context) {
	snap, err := h.service.Get(c.Param("vehicleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// GTFSRealtime handles GET /api/v1/fleet/gtfs-rt.
func (h *FleetHandler) GTFSRealtime(c *gin.Context) {
	body, err := feed.Encode(h.service.List(parseFilter(c)), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, feed.ContentType, body)
}

// Stream handles GET /api/v1/fleet/stream. The viewer receives the filtered
// snapshot, then every change in per-vehicle order until it disconnects.
func (h *FleetHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	stream, initial := h.service.Subscribe(ctx, parseFilter(c))
	defer stream.Close()

	disconnected := make(chan struct{})
	go readPump(conn, disconnected)

	if err := writeMessage(conn, StreamMessage{Type: MessageSnapshot, Vehicles: initial}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-disconnected:
			h.logger.Debug("viewer disconnected")
			return
		case <-ctx.Done():
			return
		case snap, ok := <-stream.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeMessage(conn, StreamMessage{Type: MessageUpdate, Vehicle: &snap}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// signals when the peer goes away.
func readPump(conn *websocket.Conn, disconnected chan<- struct{}) {
	defer close(disconnected)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// parseFilter reads repeated vehicle_id query parameters.
func parseFilter(c *gin.Context) fleet.Filter {
	ids := c.QueryArray("vehicle_id")
	if len(ids) == 0 {
		return fleet.All
	}
	return fleet.ForVehicles(ids...)
}
