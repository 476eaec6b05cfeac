// Package models contains the data models for the application to be used in request handling.
package models

import (
	"strconv"
	"time"
)

// Task source values. Raw adapter output is tagged SourceExternal or
// SourceLocal; only the reconciliation step produces SourceMerged.
const (
	SourceExternal = "external"
	SourceLocal    = "local"
	SourceMerged   = "merged"
)

// Task is the canonical representation of a task in the system.
// Task has the following properties:
// - Id: The unique identifier of the task within its originating source.
// - Title: The title of the task.
// - Completed: The completion state of the task.
// - UserId: The ID of the owning user, if any.
// - Description: The detailed description of the task, if any.
// - CreatedAt/UpdatedAt: Timestamps; the zero value means absent.
// - Source: Where the task came from (external, local or merged).
// - ExternalId: For locally stored references to remote items, the remote item's ID.
type Task struct {
	Id          string    `json:"id"`
	Title       string    `json:"title"`
	Completed   bool      `json:"completed"`
	UserId      string    `json:"userId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
	Source      string    `json:"source,omitempty"`
	ExternalId  string    `json:"externalId,omitempty"`
}

// ExternalTodo is the wire shape of an item in the remote todo service.
// The remote service uses numeric identifiers and has no description field.
type ExternalTodo struct {
	Id        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	UserId    int    `json:"userId"`
}

// TaskFromExternalTodo converts a remote todo item into a Task tagged with
// SourceExternal. Numeric IDs are stringified so the Id invariant holds.
func TaskFromExternalTodo(todo ExternalTodo) Task {
	now := time.Now()
	return Task{
		Id:        strconv.Itoa(todo.Id),
		Title:     todo.Title,
		Completed: todo.Completed,
		UserId:    strconv.Itoa(todo.UserId),
		Source:    SourceExternal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveTimestamp returns the timestamp used to order tasks: UpdatedAt
// when set, otherwise CreatedAt, otherwise the zero time.
func (t Task) EffectiveTimestamp() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}
