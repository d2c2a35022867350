// README: Admin surface: live dispatch parameter tuning.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/config"
	"dispatch/internal/modules/dispatch"
)

type AdminHandler struct {
	params *dispatch.ParamStore
}

func NewAdminHandler(params *dispatch.ParamStore) *AdminHandler {
	return &AdminHandler{params: params}
}

// paramsView flattens DispatchParams with the timeout in milliseconds so the
// admin API does not depend on Go duration encoding.
type paramsView struct {
	InitialRadiusM         float64        `json:"initial_radius_m"`
	RadiusFactor           float64        `json:"radius_factor"`
	MaxRadiusM             float64        `json:"max_radius_m"`
	MaxRounds              int            `json:"max_rounds"`
	TopK                   int            `json:"top_k"`
	OfferTimeoutMs         int64          `json:"offer_timeout_ms"`
	QualityFloor           float64        `json:"quality_floor"`
	QualityFloorRelax      float64        `json:"quality_floor_relax"`
	Weights                config.Weights `json:"weights"`
	Epsilon                float64        `json:"epsilon"`
	AssumedSpeedMPS        float64        `json:"assumed_speed_mps"`
	RetryDeclinedSameRound bool           `json:"retry_declined_same_round"`
}

func toView(p config.DispatchParams) paramsView {
	return paramsView{
		InitialRadiusM:         p.InitialRadiusM,
		RadiusFactor:           p.RadiusFactor,
		MaxRadiusM:             p.MaxRadiusM,
		MaxRounds:              p.MaxRounds,
		TopK:                   p.TopK,
		OfferTimeoutMs:         p.OfferTimeout.Milliseconds(),
		QualityFloor:           p.QualityFloor,
		QualityFloorRelax:      p.QualityFloorRelax,
		Weights:                p.Weights,
		Epsilon:                p.Epsilon,
		AssumedSpeedMPS:        p.AssumedSpeedMPS,
		RetryDeclinedSameRound: p.RetryDeclinedSameRound,
	}
}

func fromView(v paramsView) config.DispatchParams {
	return config.DispatchParams{
		InitialRadiusM:         v.InitialRadiusM,
		RadiusFactor:           v.RadiusFactor,
		MaxRadiusM:             v.MaxRadiusM,
		MaxRounds:              v.MaxRounds,
		TopK:                   v.TopK,
		OfferTimeout:           time.Duration(v.OfferTimeoutMs) * time.Millisecond,
		QualityFloor:           v.QualityFloor,
		QualityFloorRelax:      v.QualityFloorRelax,
		Weights:                v.Weights,
		Epsilon:                v.Epsilon,
		AssumedSpeedMPS:        v.AssumedSpeedMPS,
		RetryDeclinedSameRound: v.RetryDeclinedSameRound,
	}
}

func (h *AdminHandler) GetParams(c *gin.Context) {
	writeJSON(c, http.StatusOK, toView(h.params.Load()))
}

// PutParams validates and swaps the full parameter set. In-flight rounds
// keep the parameters they started with.
func (h *AdminHandler) PutParams(c *gin.Context) {
	var body paramsView
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.params.Update(fromView(body)); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, toView(h.params.Load()))
}
