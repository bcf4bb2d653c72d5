package handlers

import (
	"fmt"
	"net/http"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	feedback *service.FeedbackService
}

func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type feedbackBody struct {
	Status   string `json:"status" binding:"required"`
	Reason   string `json:"reason"`
	Actor    string `json:"actor"`
	Quantity *int   `json:"quantity"`
}

// RecordFeedback applies a user decision to a recommendation.
func (h *FeedbackHandler) RecordFeedback(c *gin.Context) {
	id, ok := parseRecommendationID(c)
	if !ok {
		return
	}

	var body feedbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	status, ok := domain.ParseFeedbackStatus(body.Status)
	if !ok {
		respondError(c, "invalid feedback status", fmt.Errorf("%w: %q", domain.ErrInvalidStatus, body.Status))
		return
	}

	result, err := h.feedback.RecordFeedback(c.Request.Context(), domain.FeedbackInput{
		RecommendationID: id,
		Status:           status,
		Reason:           body.Reason,
		Actor:            body.Actor,
		Quantity:         body.Quantity,
	})
	if err != nil {
		respondError(c, "failed to record feedback", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// History returns the feedback audit trail.
func (h *FeedbackHandler) History(c *gin.Context) {
	id, ok := parseRecommendationID(c)
	if !ok {
		return
	}

	entries, err := h.feedback.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to fetch feedback history", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
