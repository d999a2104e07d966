package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/domain"
)

type handlers struct {
	orch       *orch.Orchestrator
	iceServers []webrtc.ICEServer
	maxRoomLen int
}

type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

type RoomMembersResponse struct {
	Room    domain.RoomID   `json:"room"`
	Members []domain.Member `json:"members"`
}

type EvictResponse struct {
	Room    domain.RoomID `json:"room"`
	Evicted int           `json:"evicted"`
}

func (h *handlers) index(c *gin.Context) {
	c.String(http.StatusOK, "Server is running fine")
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Rooms:       len(h.orch.Rooms.List()),
		Connections: h.orch.Registry.Len(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) roomID(c *gin.Context) (domain.RoomID, bool) {
	room, err := domain.NewRoomID(c.Param("id"), h.maxRoomLen)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return room, true
}

func (h *handlers) roomMembers(c *gin.Context) {
	room, ok := h.roomID(c)
	if !ok {
		return
	}
	members := h.orch.Users(room)
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, RoomMembersResponse{Room: room, Members: members})
}

func (h *handlers) evictRoom(c *gin.Context) {
	room, ok := h.roomID(c)
	if !ok {
		return
	}
	n := h.orch.EvictRoom(room)
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room)).Int("evicted", n).Msg("room evicted via api")
	c.JSON(http.StatusOK, EvictResponse{Room: room, Evicted: n})
}

func (h *handlers) ice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.iceServers})
}
