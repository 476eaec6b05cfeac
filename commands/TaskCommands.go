// Package commands contains the commands for the application to be used for request inputs.
package commands

// CreateTaskCommand represents a request to create a new task.
// Title is required and must not be blank after trimming.
type CreateTaskCommand struct {
	Title       string `json:"title" validate:"required,max=500,titleValidator"`
	Completed   bool   `json:"completed"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	UserId      string `json:"userId,omitempty"`
}

// UpdateTaskCommand represents a partial update to an existing task.
// Nil fields are left untouched by the adapters.
type UpdateTaskCommand struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=500,titleValidator"`
	Completed   *bool   `json:"completed,omitempty"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
}
