// Package api defines the contracts for API requests and responses.
// It decouples the API structure from the internal domain models.
package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response shape for every JSON endpoint.
// Data is omitted on failure.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PaginatedResponse is the API representation of one page of results.
type PaginatedResponse struct {
	Items       interface{} `json:"items"`
	CurrentPage int         `json:"currentPage"`
	PageSize    int         `json:"pageSize"`
	TotalPages  int         `json:"totalPages"`
	TotalItems  int64       `json:"totalItems"`
	HasNext     bool        `json:"hasNext"`
	HasPrevious bool        `json:"hasPrevious"`
}

// NewPaginatedResponse computes the derived pagination fields.
func NewPaginatedResponse(items interface{}, page, size int, total int64) PaginatedResponse {
	totalPages := int(total / int64(size))
	if total%int64(size) != 0 {
		totalPages++
	}
	return PaginatedResponse{
		Items:       items,
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  totalPages,
		TotalItems:  total,
		HasNext:     page+1 < totalPages,
		HasPrevious: page > 0,
	}
}

// Success writes a successful JSON envelope.
func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, Envelope{Success: true, Message: message, Data: data})
}

// Error writes a failure JSON envelope.
func Error(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, Envelope{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
