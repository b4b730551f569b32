package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// API error codes.
const (
	ErrNotFound   = "NOT_FOUND"
	ErrValidation = "VALIDATION_ERROR"
	ErrInternal   = "INTERNAL_ERROR"
)

// APIError is the error payload inside the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
