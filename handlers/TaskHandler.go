// Package handlers provides the HTTP request handlers for TaskAggregatorService.
//
// This package contains the orchestration layer of the service: each handler
// coordinates calls to the two task backends (the remote todo service and the
// local document store), tolerates either backend failing independently, and
// computes the overall outcome. Reads merge both sources through the
// reconcile package; writes are issued to both backends best-effort, with
// per-backend success reported in the response metadata.
//
// Backend failures never surface as request failures on their own. They are
// logged and downgraded to "this source contributed nothing"; only
// validation errors and not-found-in-any-source conditions produce
// client-visible errors.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"TaskAggregatorService/commands"
	"TaskAggregatorService/models"
	"TaskAggregatorService/reconcile"
	"TaskAggregatorService/response"
	"TaskAggregatorService/validation"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Version is the API version reported by the health and welcome endpoints.
const Version = "1.0.0"

// RemoteSource is the capability consumed from the remote todo service.
// Calls return an error on transport failure; absent items are a nil task
// (or false for deletes) without error.
type RemoteSource interface {
	GetAllTasks(ctx context.Context) ([]models.Task, error)
	GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error)
	GetTaskById(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
	HealthCheck(ctx context.Context) bool
}

// LocalStore is the capability consumed from the local document store. It
// has the same operation shape as RemoteSource plus the externalId
// bookkeeping used to avoid re-importing remote items as duplicates.
type LocalStore interface {
	GetAllTasks(ctx context.Context) ([]models.Task, error)
	GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error)
	GetTaskById(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
	FindTaskByExternalId(ctx context.Context, externalId string) (*models.Task, error)
	SaveExternalTaskReference(ctx context.Context, task models.Task)
	HealthCheck(ctx context.Context) bool
}

// TaskHandler holds the injected backends and serves the task API.
type TaskHandler struct {
	remote      RemoteSource
	store       LocalStore
	validate    *validator.Validate
	log         *logrus.Logger
	environment string
	startTime   time.Time

	endPointCounter *prometheus.CounterVec
	errorCounter    *prometheus.CounterVec
}

// NewTaskHandler creates a TaskHandler over the given backends and registers
// the custom validators used for request inputs.
func NewTaskHandler(remote RemoteSource, store LocalStore, log *logrus.Logger, environment string,
	endPointCounter *prometheus.CounterVec, errorCounter *prometheus.CounterVec) *TaskHandler {

	validate := validator.New()
	validate.RegisterValidation("titleValidator", validation.TitleValidator)
	validate.RegisterValidation("sourceValidator", validation.SourceValidator)

	return &TaskHandler{
		remote:          remote,
		store:           store,
		validate:        validate,
		log:             log,
		environment:     environment,
		startTime:       time.Now(),
		endPointCounter: endPointCounter,
		errorCounter:    errorCounter,
	}
}

// ListTasksHandler handles the HTTP request for listing tasks from both backends.
// It keeps track of the number of requests or errors using Prometheus counters.
// It accepts two optional query parameters: "userId" to filter tasks by owner,
// and "source" (all, external or local) to restrict the listing to one backend.
//
// Both backends are queried concurrently. A backend that errors contributes
// zero records and the listing still succeeds; the raw per-source counts in
// the response meta expose the degradation. When both sources are queried the
// two lists are reconciled into one deduplicated list.
//
// Example request:
// GET /api/tasks?userId=1&source=all
//
// Example response:
// {
//   "success": true,
//   "data": [ { "id": "1", "title": "Task 1", "completed": false, "userId": "1", "source": "external" }, ... ],
//   "meta": { "total": 25, "external": 20, "local": 6, "merged": 1 }
// }
func (h *TaskHandler) ListTasksHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/tasks").Inc()
	ctx := req.Context()

	userId := req.URL.Query().Get("userId")
	source := req.URL.Query().Get("source")
	if source == "" {
		source = "all"
	}
	if err := h.validate.Var(source, "sourceValidator"); err != nil {
		h.errorCounter.WithLabelValues("/api/tasks").Inc()
		h.log.WithFields(logrus.Fields{
			"task operation": "list tasks",
			"request":        "Get /api/tasks",
		}).Error("invalid source filter: " + source)
		response.WriteError(res, http.StatusBadRequest, "Validation failed",
			"source must be one of: all, external, local")
		return
	}

	var (
		externalTasks []models.Task
		localTasks    []models.Task
		wg            sync.WaitGroup
	)

	if source == "all" || source == models.SourceExternal {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := h.listFromRemote(ctx, userId)
			if err != nil {
				h.log.WithFields(logrus.Fields{
					"task operation": "list tasks",
					"request":        "Get /api/tasks",
				}).Error("external source unavailable: " + err.Error())
				return
			}
			externalTasks = tasks
		}()
	}
	if source == "all" || source == models.SourceLocal {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tasks, err := h.listFromStore(ctx, userId)
			if err != nil {
				h.log.WithFields(logrus.Fields{
					"task operation": "list tasks",
					"request":        "Get /api/tasks",
				}).Error("local source unavailable: " + err.Error())
				return
			}
			localTasks = tasks
		}()
	}
	wg.Wait()

	// With a single source queried there is nothing to reconcile.
	var mergedTasks []models.Task
	switch source {
	case models.SourceExternal:
		mergedTasks = externalTasks
	case models.SourceLocal:
		mergedTasks = localTasks
	default:
		mergedTasks = reconcile.Merge(localTasks, externalTasks)
	}
	if mergedTasks == nil {
		mergedTasks = []models.Task{}
	}

	h.log.WithFields(logrus.Fields{
		"task operation": "list tasks",
		"request":        "Get /api/tasks",
		"total":          len(mergedTasks),
	}).Info("Processing request")

	response.WriteJSON(res, http.StatusOK, response.TaskListResponse{
		Success: true,
		Data:    mergedTasks,
		Meta: response.ListMeta{
			Total:    len(mergedTasks),
			External: len(externalTasks),
			Local:    len(localTasks),
			Merged:   reconcile.CountMerged(mergedTasks),
		},
	})
}

func (h *TaskHandler) listFromRemote(ctx context.Context, userId string) ([]models.Task, error) {
	if userId != "" {
		return h.remote.GetTasksByUser(ctx, userId)
	}
	return h.remote.GetAllTasks(ctx)
}

func (h *TaskHandler) listFromStore(ctx context.Context, userId string) ([]models.Task, error) {
	if userId != "" {
		return h.store.GetTasksByUser(ctx, userId)
	}
	return h.store.GetAllTasks(ctx)
}

// GetTaskHandler handles the HTTP request for retrieving a single task by ID.
// It keeps track of the number of requests or errors using Prometheus counters.
// The remote service is tried first; on a miss or a transport failure the
// local store is consulted, first by document ID and then by stored external
// reference. Not-found is returned only when every lookup came up empty.
//
// Example request:
// GET /api/tasks/1
//
// Example response:
// {
//   "success": true,
//   "data": { "id": "1", "title": "Task 1", "completed": false, "userId": "1", "source": "external" }
// }
func (h *TaskHandler) GetTaskHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/tasks/{id}").Inc()
	ctx := req.Context()
	id := req.PathValue("id")

	task, err := h.remote.GetTaskById(ctx, id)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "get task by id",
			"request":        "Get /api/tasks/{id}",
		}).Error("external source unavailable: " + err.Error())
		task = nil
	}

	if task == nil {
		task, err = h.store.GetTaskById(ctx, id)
		if err != nil {
			h.log.WithFields(logrus.Fields{
				"task operation": "get task by id",
				"request":        "Get /api/tasks/{id}",
			}).Error("local source unavailable: " + err.Error())
			task = nil
		}
	}
	if task == nil {
		// The ID may be a remote ID whose reference was stored locally.
		task, err = h.store.FindTaskByExternalId(ctx, id)
		if err != nil {
			h.log.WithFields(logrus.Fields{
				"task operation": "get task by id",
				"request":        "Get /api/tasks/{id}",
			}).Error("local source unavailable: " + err.Error())
			task = nil
		}
	}

	if task == nil {
		h.errorCounter.WithLabelValues("/api/tasks/{id}").Inc()
		response.WriteError(res, http.StatusNotFound, "Task not found",
			fmt.Sprintf("No task found with ID: %s", id))
		return
	}

	h.log.WithFields(logrus.Fields{
		"task operation": "get task by id",
		"request":        "Get /api/tasks/{id}",
		"task id":        id,
	}).Info("Processing request")
	response.WriteJSON(res, http.StatusOK, response.TaskResponse{Success: true, Data: *task})
}

// CreateTaskHandler handles the HTTP request for creating a new task.
// It keeps track of the number of requests or errors using Prometheus counters.
// It reads the request body, validates the inputs before any backend is
// called, and then attempts to create the task in the remote service AND the
// local store independently. The dual write is best-effort, not a
// transaction: the response metadata reports which backends were reached,
// and the operation fails only when both backends failed.
//
// Note that the input validation does not allow an empty or blank title.
//
// Example request body:
// {
//   "title": "New task",
//   "completed": false,
//   "description": "Detailed description of the new task",
//   "userId": "1"
// }
//
// Example response:
// {
//   "success": true,
//   "data": { "id": "201", "title": "New task", "completed": false, "userId": "1", "source": "external" },
//   "meta": { "saved_to_external": true, "saved_to_local": true }
// }
func (h *TaskHandler) CreateTaskHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/tasks").Inc()
	ctx := req.Context()

	var cmd commands.CreateTaskCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		h.errorCounter.WithLabelValues("/api/tasks").Inc()
		h.log.WithFields(logrus.Fields{
			"task operation": "create a task",
			"request":        "Post /api/tasks",
		}).Error("Invalid request body")
		response.WriteError(res, http.StatusBadRequest, "Validation failed", "Request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(cmd); err != nil {
		h.errorCounter.WithLabelValues("/api/tasks").Inc()
		h.log.WithFields(logrus.Fields{
			"task operation": "create a task",
			"request":        "Post /api/tasks",
		}).Error("Invalid request body inputs")
		response.WriteError(res, http.StatusBadRequest, "Validation failed",
			"Title is required and cannot be empty")
		return
	}

	var (
		externalTask    *models.Task
		localTask       *models.Task
		savedToExternal bool
		savedToLocal    bool
	)

	externalTask, err := h.remote.CreateTask(ctx, cmd)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "create a task",
			"request":        "Post /api/tasks",
		}).Error("external create failed: " + err.Error())
		externalTask = nil
	}
	savedToExternal = externalTask != nil

	localTask, err = h.store.CreateTask(ctx, cmd)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "create a task",
			"request":        "Post /api/tasks",
		}).Error("local create failed: " + err.Error())
		localTask = nil
	}
	savedToLocal = localTask != nil

	if externalTask == nil && localTask == nil {
		h.errorCounter.WithLabelValues("/api/tasks").Inc()
		response.WriteError(res, http.StatusInternalServerError, "Failed to create task",
			"Could not create task in any service")
		return
	}

	// Remember the remote ID locally when the local copy is missing, so a
	// later import of the remote item is not treated as a new task.
	if externalTask != nil && localTask == nil {
		h.store.SaveExternalTaskReference(ctx, *externalTask)
	}

	resultTask := localTask
	if externalTask != nil {
		resultTask = externalTask
	}

	h.log.WithFields(logrus.Fields{
		"task operation":    "create a task",
		"request":           "Post /api/tasks",
		"saved_to_external": savedToExternal,
		"saved_to_local":    savedToLocal,
	}).Info("Processing request")

	response.WriteJSON(res, http.StatusCreated, response.CreateTaskResponse{
		Success: true,
		Data:    *resultTask,
		Meta: response.CreateMeta{
			SavedToExternal: savedToExternal,
			SavedToLocal:    savedToLocal,
		},
	})
}

// UpdateTaskHandler handles the HTTP request for updating a task.
// It keeps track of the number of requests or errors using Prometheus counters.
// The update is attempted on both backends independently; a backend failure
// is logged and ignored. The remote service's updated record is preferred
// when both backends produced one. Not-found is returned only when neither
// backend produced an updated record.
//
// Example request body:
// {
//   "title": "Updated title",
//   "completed": true
// }
//
// Example response:
// {
//   "success": true,
//   "data": { "id": "1", "title": "Updated title", "completed": true, "userId": "1", "source": "external" }
// }
func (h *TaskHandler) UpdateTaskHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/tasks/{id}").Inc()
	ctx := req.Context()
	id := req.PathValue("id")

	var cmd commands.UpdateTaskCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		h.errorCounter.WithLabelValues("/api/tasks/{id}").Inc()
		h.log.WithFields(logrus.Fields{
			"task operation": "update a task",
			"request":        "Put /api/tasks/{id}",
		}).Error("Invalid request body")
		response.WriteError(res, http.StatusBadRequest, "Validation failed", "Request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(cmd); err != nil {
		h.errorCounter.WithLabelValues("/api/tasks/{id}").Inc()
		h.log.WithFields(logrus.Fields{
			"task operation": "update a task",
			"request":        "Put /api/tasks/{id}",
		}).Error("Invalid request body inputs")
		response.WriteError(res, http.StatusBadRequest, "Validation failed",
			"Title cannot be blank and field lengths are limited")
		return
	}

	updatedTask, err := h.remote.UpdateTask(ctx, id, cmd)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "update a task",
			"request":        "Put /api/tasks/{id}",
		}).Error("external update failed: " + err.Error())
		updatedTask = nil
	}

	localUpdated, err := h.store.UpdateTask(ctx, id, cmd)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "update a task",
			"request":        "Put /api/tasks/{id}",
		}).Error("local update failed: " + err.Error())
		localUpdated = nil
	}
	if updatedTask == nil {
		updatedTask = localUpdated
	}

	if updatedTask == nil {
		h.errorCounter.WithLabelValues("/api/tasks/{id}").Inc()
		response.WriteError(res, http.StatusNotFound, "Task not found",
			fmt.Sprintf("No task found with ID: %s", id))
		return
	}

	h.log.WithFields(logrus.Fields{
		"task operation": "update a task",
		"request":        "Put /api/tasks/{id}",
		"task id":        id,
	}).Info("Processing request")
	response.WriteJSON(res, http.StatusOK, response.TaskResponse{Success: true, Data: *updatedTask})
}

// DeleteTaskHandler handles the HTTP request for deleting a task.
// It keeps track of the number of requests or errors using Prometheus counters.
// The delete is attempted on both backends independently and the response
// metadata reports which backends removed the task. Not-found is returned
// only when neither backend reported a deletion.
//
// Example response:
// {
//   "success": true,
//   "message": "Task deleted successfully",
//   "meta": { "deleted_from_external": false, "deleted_from_local": true }
// }
func (h *TaskHandler) DeleteTaskHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/tasks/{id}").Inc()
	ctx := req.Context()
	id := req.PathValue("id")

	deletedFromExternal, err := h.remote.DeleteTask(ctx, id)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "delete a task",
			"request":        "Delete /api/tasks/{id}",
		}).Error("external delete failed: " + err.Error())
		deletedFromExternal = false
	}

	deletedFromLocal, err := h.store.DeleteTask(ctx, id)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"task operation": "delete a task",
			"request":        "Delete /api/tasks/{id}",
		}).Error("local delete failed: " + err.Error())
		deletedFromLocal = false
	}

	if !deletedFromExternal && !deletedFromLocal {
		h.errorCounter.WithLabelValues("/api/tasks/{id}").Inc()
		response.WriteError(res, http.StatusNotFound, "Task not found",
			fmt.Sprintf("No task found with ID: %s", id))
		return
	}

	h.log.WithFields(logrus.Fields{
		"task operation":        "delete a task",
		"request":               "Delete /api/tasks/{id}",
		"deleted_from_external": deletedFromExternal,
		"deleted_from_local":    deletedFromLocal,
	}).Info("Processing request")

	response.WriteJSON(res, http.StatusOK, response.DeleteTaskResponse{
		Success: true,
		Message: "Task deleted successfully",
		Meta: response.DeleteMeta{
			DeletedFromExternal: deletedFromExternal,
			DeletedFromLocal:    deletedFromLocal,
		},
	})
}

// HealthHandler reports the availability of the service and both backends.
// Both backends are checked concurrently; the endpoint answers 200 when both
// are healthy and 503 otherwise.
func (h *TaskHandler) HealthHandler(res http.ResponseWriter, req *http.Request) {
	h.endPointCounter.WithLabelValues("/api/health").Inc()
	ctx := req.Context()

	var (
		externalHealthy bool
		localHealthy    bool
		wg              sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		externalHealthy = h.remote.HealthCheck(ctx)
	}()
	go func() {
		defer wg.Done()
		localHealthy = h.store.HealthCheck(ctx)
	}()
	wg.Wait()

	status := "healthy"
	code := http.StatusOK
	if !externalHealthy || !localHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	response.WriteJSON(res, code, response.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services: map[string]bool{
			"external_api": externalHealthy,
			"local_store":  localHealthy,
		},
		Uptime:      int64(time.Since(h.startTime).Seconds()),
		Version:     Version,
		Environment: h.environment,
	})
}

// WelcomeHandler serves the root endpoint listing the available API surface.
func (h *TaskHandler) WelcomeHandler(res http.ResponseWriter, req *http.Request) {
	response.WriteJSON(res, http.StatusOK, map[string]interface{}{
		"message": "Task Aggregator API",
		"version": Version,
		"health":  "/api/health",
		"endpoints": map[string]string{
			"tasks":   "/api/tasks",
			"metrics": "/metrics",
		},
	})
}

// NotFoundHandler answers unknown API routes with the structured error
// payload and the list of available endpoints.
func (h *TaskHandler) NotFoundHandler(res http.ResponseWriter, req *http.Request) {
	response.WriteJSON(res, http.StatusNotFound, map[string]interface{}{
		"error":     "Endpoint not found",
		"details":   fmt.Sprintf("The endpoint %s %s does not exist", req.Method, req.URL.Path),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"available_endpoints": []string{
			"GET /api/health",
			"GET /api/tasks",
			"POST /api/tasks",
			"GET /api/tasks/{id}",
			"PUT /api/tasks/{id}",
			"DELETE /api/tasks/{id}",
		},
	})
}
