// Package clients contains the HTTP client adapters for remote backends.
//
// TodoClient translates between the canonical Task model and the remote todo
// service's native item shape. The remote service identifies items by
// numeric IDs and does not store descriptions, so descriptions are carried
// on the canonical record only. All calls enforce the configured request
// timeout; the orchestration layer treats a timeout like any other transport
// failure.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"TaskAggregatorService/commands"
	"TaskAggregatorService/models"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	listCacheTTL     = 30 * time.Second
	cacheKeyAllTodos = "todos:all"
)

// TodoClient is the adapter for the remote todo service.
type TodoClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *gocache.Cache
	log        *logrus.Logger
}

// NewTodoClient creates a TodoClient against the given base URL with a
// bounded request timeout.
func NewTodoClient(baseURL string, timeout time.Duration, log *logrus.Logger) *TodoClient {
	return &TodoClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: gocache.New(listCacheTTL, 2*listCacheTTL),
		log:   log,
	}
}

// GetAllTasks retrieves every task from the remote service. List responses
// are cached briefly to spare the remote service on repeated listings.
func (c *TodoClient) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	return c.fetchTodoList(ctx, "/todos", cacheKeyAllTodos)
}

// GetTasksByUser retrieves the tasks owned by the given user.
func (c *TodoClient) GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error) {
	return c.fetchTodoList(ctx, "/todos?userId="+userId, "todos:user:"+userId)
}

func (c *TodoClient) fetchTodoList(ctx context.Context, path string, cacheKey string) ([]models.Task, error) {
	if cached, found := c.cache.Get(cacheKey); found {
		return cached.([]models.Task), nil
	}

	var todos []models.ExternalTodo
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &todos); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks from external service: %w", err)
	}

	tasks := make([]models.Task, 0, len(todos))
	for _, todo := range todos {
		tasks = append(tasks, models.TaskFromExternalTodo(todo))
	}
	c.cache.Set(cacheKey, tasks, gocache.DefaultExpiration)
	return tasks, nil
}

// GetTaskById retrieves a single task. It returns a nil task without error
// when the remote service has no item with that ID.
func (c *TodoClient) GetTaskById(ctx context.Context, id string) (*models.Task, error) {
	var todo models.ExternalTodo
	err := c.doJSON(ctx, http.MethodGet, "/todos/"+id, nil, &todo)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch task %s from external service: %w", id, err)
	}
	if todo.Id == 0 {
		return nil, nil
	}
	task := models.TaskFromExternalTodo(todo)
	return &task, nil
}

// CreateTask creates a new task in the remote service. The remote API does
// not store descriptions, so any description from the command is attached to
// the returned record only.
func (c *TodoClient) CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error) {
	userId, _ := strconv.Atoi(cmd.UserId)
	if userId == 0 {
		userId = 1
	}
	payload := map[string]interface{}{
		"title":     cmd.Title,
		"completed": cmd.Completed,
		"userId":    userId,
	}

	var todo models.ExternalTodo
	if err := c.doJSON(ctx, http.MethodPost, "/todos", payload, &todo); err != nil {
		return nil, fmt.Errorf("failed to create task in external service: %w", err)
	}
	c.cache.Flush()

	task := models.TaskFromExternalTodo(todo)
	if cmd.Description != "" {
		task.Description = cmd.Description
	}
	c.log.WithFields(logrus.Fields{
		"task operation": "create external task",
		"task id":        task.Id,
	}).Info("Task created in external service")
	return &task, nil
}

// UpdateTask updates an existing remote task with the provided fields. The
// remote API replaces whole items, so the current item is read first and
// unset fields are carried over. It returns a nil task without error when
// the item does not exist.
func (c *TodoClient) UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error) {
	currentTask, err := c.GetTaskById(ctx, id)
	if err != nil {
		return nil, err
	}
	if currentTask == nil {
		return nil, nil
	}

	title := currentTask.Title
	if cmd.Title != nil {
		title = *cmd.Title
	}
	completed := currentTask.Completed
	if cmd.Completed != nil {
		completed = *cmd.Completed
	}
	numericId, _ := strconv.Atoi(id)
	userId, _ := strconv.Atoi(currentTask.UserId)
	if userId == 0 {
		userId = 1
	}
	payload := map[string]interface{}{
		"id":        numericId,
		"title":     title,
		"completed": completed,
		"userId":    userId,
	}

	var todo models.ExternalTodo
	if err := c.doJSON(ctx, http.MethodPut, "/todos/"+id, payload, &todo); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update task %s in external service: %w", id, err)
	}
	c.cache.Flush()

	updatedTask := models.TaskFromExternalTodo(todo)
	updatedTask.UpdatedAt = time.Now()
	if cmd.Description != nil {
		updatedTask.Description = *cmd.Description
	} else {
		updatedTask.Description = currentTask.Description
	}
	return &updatedTask, nil
}

// DeleteTask deletes a remote task. It returns false without error when the
// item does not exist.
func (c *TodoClient) DeleteTask(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/todos/"+id, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build delete request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s from external service: %w", id, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to delete task %s from external service: status %d", id, resp.StatusCode)
	}
	c.cache.Flush()
	return true, nil
}

// HealthCheck reports whether the remote service answers a simple read.
func (c *TodoClient) HealthCheck(ctx context.Context) bool {
	var todo models.ExternalTodo
	if err := c.doJSON(ctx, http.MethodGet, "/todos/1", nil, &todo); err != nil {
		c.log.WithFields(logrus.Fields{
			"task operation": "external health check",
		}).Error(err.Error())
		return false
	}
	return true
}

// statusError carries a non-success HTTP status code from the remote service.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("external service returned status %d", e.status)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// doJSON issues a JSON request against the remote service and decodes the
// response body into out.
func (c *TodoClient) doJSON(ctx context.Context, method string, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
