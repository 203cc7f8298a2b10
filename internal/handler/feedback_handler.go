package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"materialflow/internal/domain"
	"materialflow/internal/service"
)

// FeedbackHandler records reviewer verdicts submitted through feedback links.
type FeedbackHandler struct {
	feedback service.FeedbackService
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(feedback service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Submit handles POST /api/v1/feedback
// @Summary Submit feedback
// @Description Record a verdict on a delivered result. The token comes from the feedback link.
// @Tags feedback
// @Accept json
// @Produce json
// @Param request body FeedbackRequest true "Verdict"
// @Success 201 {object} Response{data=domain.Feedback} "Feedback recorded"
// @Failure 400 {object} ErrorResponseBody "Invalid verdict"
// @Failure 401 {object} ErrorResponseBody "Invalid or expired token"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Router /feedback [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var input service.FeedbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "token and verdict are required")
		return
	}
	fb, err := h.feedback.Submit(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, fb)
}

// Quick handles GET /api/v1/feedback?token=...&verdict=...
// One-click links in notifications land here.
// @Summary One-click feedback
// @Tags feedback
// @Produce json
// @Param token query string true "Feedback token"
// @Param verdict query string true "correct, incorrect or partially_correct"
// @Success 201 {object} Response{data=domain.Feedback} "Feedback recorded"
// @Failure 400 {object} ErrorResponseBody "Invalid verdict"
// @Failure 401 {object} ErrorResponseBody "Invalid or expired token"
// @Router /feedback [get]
func (h *FeedbackHandler) Quick(c *gin.Context) {
	input := service.FeedbackInput{
		Token:   c.Query("token"),
		Verdict: domain.FeedbackVerdict(c.Query("verdict")),
		Comment: c.Query("comment"),
	}
	if input.Token == "" {
		HandleError(c, domain.ErrFeedbackTokenInvalid)
		return
	}
	fb, err := h.feedback.Submit(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, fb)
}
