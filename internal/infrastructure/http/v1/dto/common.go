// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
)

// AcceptedResponse acknowledges queued work.
type AcceptedResponse struct {
	ID     id.ID  `json:"id"`
	Status string `json:"status"`
}

// SuccessResponse is returned by commands without a payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HistoryQuery bounds history listings.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// Defaults sets the default limit.
func (q *HistoryQuery) Defaults() {
	if q.Limit == 0 {
		q.Limit = 20
	}
}

// Money renders amounts as strings so JSON clients keep full precision.
type Money = types.Money
