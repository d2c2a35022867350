// README: Agent-side handlers: location reports, availability, offer decisions.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/agent"
	"dispatch/internal/modules/dispatch"
	"dispatch/internal/modules/ingest"
	"dispatch/internal/types"
)

type AgentHandler struct {
	ingest *ingest.Service
	coord  *dispatch.Coordinator
}

func NewAgentHandler(svc *ingest.Service, coord *dispatch.Coordinator) *AgentHandler {
	return &AgentHandler{ingest: svc, coord: coord}
}

type locationReq struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Timestamp  time.Time `json:"timestamp"`
	SpeedMPS   float64   `json:"speed_mps"`
	HeadingDeg float64   `json:"heading_deg"`
	AccuracyM  float64   `json:"accuracy_m"`
}

func (h *AgentHandler) UpdateLocation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing agent id")
		return
	}
	var body locationReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Timestamp.IsZero() {
		body.Timestamp = time.Now()
	}
	err := h.ingest.Enqueue(ingest.Update{
		AgentID:    types.ID(id),
		Position:   types.Point{Lat: body.Lat, Lng: body.Lng},
		Timestamp:  body.Timestamp,
		SpeedMPS:   body.SpeedMPS,
		HeadingDeg: body.HeadingDeg,
		AccuracyM:  body.AccuracyM,
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	// Accepted for processing; plausibility checks happen on the worker.
	writeJSON(c, http.StatusAccepted, map[string]any{"status": "ok"})
}

type availabilityReq struct {
	Available bool `json:"available"`
}

func (h *AgentHandler) SetAvailability(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing agent id")
		return
	}
	var body availabilityReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.ingest.SetAvailability(types.ID(id), body.Available); err != nil {
		switch {
		case errors.Is(err, agent.ErrNotFound):
			writeError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, agent.ErrNotAvailable):
			writeError(c, http.StatusConflict, err.Error())
		default:
			writeError(c, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"available": body.Available})
}

type decisionReq struct {
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Accept    bool   `json:"accept"`
}

// Decide records an agent's answer to a pending offer. A decision on an
// offer that already expired or was withdrawn gets 410.
func (h *AgentHandler) Decide(c *gin.Context) {
	var body decisionReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.RequestID == "" || body.AgentID == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if err := h.coord.Resolve(types.ID(body.RequestID), types.ID(body.AgentID), body.Accept); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "recorded"})
}
