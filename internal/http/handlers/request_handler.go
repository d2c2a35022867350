// README: Request lifecycle handlers: submit, status, cancel.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/dispatch"
	"dispatch/internal/types"
)

type RequestHandler struct {
	coord *dispatch.Coordinator
}

func NewRequestHandler(coord *dispatch.Coordinator) *RequestHandler {
	return &RequestHandler{coord: coord}
}

type submitRequestReq struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Class string  `json:"class"`
}

type requestView struct {
	RequestID types.ID        `json:"request_id"`
	Status    dispatch.Status `json:"status"`
	AgentID   *types.ID       `json:"agent_id,omitempty"`
	Rounds    int             `json:"rounds"`
	CreatedAt time.Time       `json:"created_at"`
	MatchedAt *time.Time      `json:"matched_at,omitempty"`
}

func viewOf(req dispatch.Request) requestView {
	return requestView{
		RequestID: req.ID,
		Status:    req.Status,
		AgentID:   req.AgentID,
		Rounds:    req.Rounds,
		CreatedAt: req.CreatedAt,
		MatchedAt: req.MatchedAt,
	}
}

// Submit accepts a demand request and starts its dispatch worker. The
// response is 202: matching continues after the HTTP exchange ends.
func (h *RequestHandler) Submit(c *gin.Context) {
	var body submitRequestReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req, err := h.coord.Submit(types.Point{Lat: body.Lat, Lng: body.Lng}, body.Class)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	// The worker outlives this HTTP request.
	ctx := context.WithoutCancel(c.Request.Context())
	go func() { _, _ = h.coord.Dispatch(ctx, req.ID) }()

	writeJSON(c, http.StatusAccepted, viewOf(req))
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	req, err := h.coord.Get(types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(req))
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	if err := h.coord.Cancel(c.Request.Context(), types.ID(id)); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": dispatch.StatusCancelled})
}
