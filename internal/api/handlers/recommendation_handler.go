package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type RecommendationHandler struct {
	recommendations *service.RecommendationService
	outcomes        *service.OutcomeService
}

func NewRecommendationHandler(recommendations *service.RecommendationService, outcomes *service.OutcomeService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations, outcomes: outcomes}
}

type generateBody struct {
	SKUIDs      []string `json:"sku_ids"`
	ForceUpdate bool     `json:"force_update"`
	Actor       string   `json:"actor"`
}

// Generate runs the engine for a store. An empty body evaluates every SKU.
func (h *RecommendationHandler) Generate(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}

	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}

	result, err := h.recommendations.Generate(c.Request.Context(), domain.GenerateRequest{
		StoreID:     storeID,
		ItemIDs:     body.SKUIDs,
		ForceUpdate: body.ForceUpdate,
		AsOf:        asOf,
		Actor:       body.Actor,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMassFailure) && result != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "run flagged for review",
				"details": err.Error(),
				"result":  result,
			})
			return
		}
		respondError(c, "failed to generate recommendations", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListCurrent returns the current recommendation per SKU.
func (h *RecommendationHandler) ListCurrent(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}

	recs, err := h.recommendations.ListCurrent(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, "failed to fetch recommendations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs, "total": len(recs)})
}

// Explain returns the numeric trace of one recommendation.
func (h *RecommendationHandler) Explain(c *gin.Context) {
	id, ok := parseRecommendationID(c)
	if !ok {
		return
	}

	trace, err := h.recommendations.Explain(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to explain recommendation", err)
		return
	}
	c.JSON(http.StatusOK, trace)
}

// Runs lists recent generate and verify runs.
func (h *RecommendationHandler) Runs(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}

	runs, err := h.recommendations.Runs(c.Request.Context(), storeID, parsePositiveIntWithDefault(c.Query("limit"), 20))
	if err != nil {
		respondError(c, "failed to fetch runs", err)
		return
	}
	if runs == nil {
		runs = make([]domain.GenerationRun, 0)
	}
	c.JSON(http.StatusOK, runs)
}

// VerifyOutcomes runs one verification pass for a store.
func (h *RecommendationHandler) VerifyOutcomes(c *gin.Context) {
	storeID, ok := parseStoreID(c)
	if !ok {
		return
	}
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}

	result, err := h.outcomes.VerifyOutcomes(c.Request.Context(), storeID, asOf)
	if err != nil {
		respondError(c, "failed to verify outcomes", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
