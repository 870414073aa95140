package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/availability"
	"github.com/sirupsen/logrus"
)

type AvailabilityHandler struct {
	service availability.AvailabilityUseCase
	log     logrus.FieldLogger
}

type rangeResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func NewAvailabilityHandler(service availability.AvailabilityUseCase, log logrus.FieldLogger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, log: log}
}

func (h *AvailabilityHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.all)
	router.GET("/:assetID", h.asset)
}

func (h *AvailabilityHandler) asset(c *gin.Context) {
	assetID, ok := idParam(c, "assetID")
	if !ok {
		return
	}
	ranges, err := h.service.DisabledRanges(c.Request.Context(), assetID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toRangeResponse(ranges))
}

func (h *AvailabilityHandler) all(c *gin.Context) {
	byAsset, err := h.service.DisabledRangesByAsset(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make(map[int64][]rangeResponse, len(byAsset))
	for assetID, ranges := range byAsset {
		out[assetID] = toRangeResponse(ranges)
	}
	c.JSON(http.StatusOK, out)
}

func toRangeResponse(ranges []daterange.Range) []rangeResponse {
	out := make([]rangeResponse, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, rangeResponse{From: daterange.FormatDay(r.From), To: daterange.FormatDay(r.To)})
	}
	return out
}
