package handler

import "materialflow/internal/domain"

// Swagger type definitions for API documentation.
// These types are used by swag to generate OpenAPI documentation.

// FeedbackRequest represents the feedback request body.
type FeedbackRequest struct {
	Token   string                 `json:"token" binding:"required" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Verdict domain.FeedbackVerdict `json:"verdict" binding:"required" example:"correct"`
	Comment string                 `json:"comment" example:"Dimensions were in mm, not cm"`
}

// SubmitAccepted is returned for background submissions.
type SubmitAccepted struct {
	MessageID string `json:"message_id" example:"5b0e7c1e-8f7e-4d2c-9d3b-0a6b1f2e3c4d"`
}

// Response is the success envelope.
type Response struct {
	Success bool        `json:"success" example:"true"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// ErrorResponseBody is the error envelope.
type ErrorResponseBody struct {
	Success bool     `json:"success" example:"false"`
	Error   APIError `json:"error"`
}
