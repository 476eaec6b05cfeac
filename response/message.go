// Package response contains the response payload types returned by the API.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"TaskAggregatorService/models"
)

// A struct type that represents a message with a status and body.
// Message has the following properties:
// - Status: The status of the message.
// - Body: The body of the message.
type Message struct {
	Status string `json:"status"`
	Body   string `json:"body"`
}

// ErrorResponse is the error payload returned for every failed request.
// It carries a machine-readable error kind, a human-readable detail string
// and the time the error was produced.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
}

// ListMeta summarizes a merged task listing: the total after reconciliation,
// the raw record counts per source, and how many records were merged.
type ListMeta struct {
	Total    int `json:"total"`
	External int `json:"external"`
	Local    int `json:"local"`
	Merged   int `json:"merged"`
}

// TaskListResponse is the payload for GET /api/tasks.
type TaskListResponse struct {
	Success bool          `json:"success"`
	Data    []models.Task `json:"data"`
	Meta    ListMeta      `json:"meta"`
}

// TaskResponse is the payload for single-task reads and updates.
type TaskResponse struct {
	Success bool        `json:"success"`
	Data    models.Task `json:"data"`
}

// CreateMeta reports which backends a dual write reached. Dual writes are
// best-effort, so clients must check both flags to know durability.
type CreateMeta struct {
	SavedToExternal bool `json:"saved_to_external"`
	SavedToLocal    bool `json:"saved_to_local"`
}

// CreateTaskResponse is the payload for POST /api/tasks.
type CreateTaskResponse struct {
	Success bool        `json:"success"`
	Data    models.Task `json:"data"`
	Meta    CreateMeta  `json:"meta"`
}

// DeleteMeta reports which backends a delete removed the task from.
type DeleteMeta struct {
	DeletedFromExternal bool `json:"deleted_from_external"`
	DeletedFromLocal    bool `json:"deleted_from_local"`
}

// DeleteTaskResponse is the payload for DELETE /api/tasks/{id}.
type DeleteTaskResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Meta    DeleteMeta `json:"meta"`
}

// HealthResponse reports the availability of the service and its backends.
type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	Services    map[string]bool `json:"services"`
	Uptime      int64           `json:"uptime"`
	Version     string          `json:"version"`
	Environment string          `json:"environment"`
}

// WriteJSON writes v as a JSON response body with the given status code.
func WriteJSON(res http.ResponseWriter, status int, v interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	json.NewEncoder(res).Encode(v)
}

// WriteError writes the standard error payload with the given status code.
func WriteError(res http.ResponseWriter, status int, kind string, details string) {
	WriteJSON(res, status, ErrorResponse{
		Error:     kind,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
