package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"TaskAggregatorService/commands"
	"TaskAggregatorService/models"
	"TaskAggregatorService/response"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var errBackendDown = errors.New("backend down")

// fakeRemote is a test double for the remote todo service adapter.
type fakeRemote struct {
	tasks     []models.Task
	task      *models.Task
	deleted   bool
	healthy   bool
	err       error
	listCalls int
	userCalls []string
	cmdCalls  []commands.CreateTaskCommand
}

func (f *fakeRemote) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	f.listCalls++
	return f.tasks, f.err
}

func (f *fakeRemote) GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error) {
	f.userCalls = append(f.userCalls, userId)
	return f.tasks, f.err
}

func (f *fakeRemote) GetTaskById(ctx context.Context, id string) (*models.Task, error) {
	return f.task, f.err
}

func (f *fakeRemote) CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error) {
	f.cmdCalls = append(f.cmdCalls, cmd)
	return f.task, f.err
}

func (f *fakeRemote) UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error) {
	return f.task, f.err
}

func (f *fakeRemote) DeleteTask(ctx context.Context, id string) (bool, error) {
	return f.deleted, f.err
}

func (f *fakeRemote) HealthCheck(ctx context.Context) bool {
	return f.healthy
}

// fakeStore is a test double for the local document store adapter.
type fakeStore struct {
	tasks      []models.Task
	task       *models.Task
	byExternal *models.Task
	deleted    bool
	healthy    bool
	err        error
	listCalls  int
	userCalls  []string
	cmdCalls   []commands.CreateTaskCommand
	savedRefs  []models.Task
}

func (f *fakeStore) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	f.listCalls++
	return f.tasks, f.err
}

func (f *fakeStore) GetTasksByUser(ctx context.Context, userId string) ([]models.Task, error) {
	f.userCalls = append(f.userCalls, userId)
	return f.tasks, f.err
}

func (f *fakeStore) GetTaskById(ctx context.Context, id string) (*models.Task, error) {
	return f.task, f.err
}

func (f *fakeStore) CreateTask(ctx context.Context, cmd commands.CreateTaskCommand) (*models.Task, error) {
	f.cmdCalls = append(f.cmdCalls, cmd)
	return f.task, f.err
}

func (f *fakeStore) UpdateTask(ctx context.Context, id string, cmd commands.UpdateTaskCommand) (*models.Task, error) {
	return f.task, f.err
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	return f.deleted, f.err
}

func (f *fakeStore) FindTaskByExternalId(ctx context.Context, externalId string) (*models.Task, error) {
	return f.byExternal, nil
}

func (f *fakeStore) SaveExternalTaskReference(ctx context.Context, task models.Task) {
	f.savedRefs = append(f.savedRefs, task)
}

func (f *fakeStore) HealthCheck(ctx context.Context) bool {
	return f.healthy
}

func newTestHandler(remote RemoteSource, store LocalStore) *TaskHandler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	endPointCounter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_calls_total"}, []string{"endpoint"})
	errorCounter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_errors_total"}, []string{"endpoint"})
	return NewTaskHandler(remote, store, log, "test", endPointCounter, errorCounter)
}

// newTestRouter registers the handler routes so path values resolve in tests.
func newTestRouter(h *TaskHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", h.ListTasksHandler)
	mux.HandleFunc("POST /api/tasks", h.CreateTaskHandler)
	mux.HandleFunc("GET /api/tasks/{id}", h.GetTaskHandler)
	mux.HandleFunc("PUT /api/tasks/{id}", h.UpdateTaskHandler)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.DeleteTaskHandler)
	mux.HandleFunc("GET /api/health", h.HealthHandler)
	return mux
}

func doRequest(t *testing.T, h *TaskHandler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Error marshaling request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(v); err != nil {
		t.Fatalf("Error decoding response body: %v", err)
	}
}

// TestListTasksRemoteFailureTolerated checks that a failing remote backend
// does not fail the listing: the local records are returned with a zero
// external count instead of an error.
func TestListTasksRemoteFailureTolerated(t *testing.T) {
	remote := &fakeRemote{err: errBackendDown}
	store := &fakeStore{tasks: []models.Task{
		{Id: "L1", Title: "Local task", Source: models.SourceLocal},
	}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.TaskListResponse
	decodeBody(t, recorder, &resp)
	if resp.Meta.External != 0 {
		t.Errorf("Expected meta.external 0, got %d", resp.Meta.External)
	}
	if resp.Meta.Local != 1 || resp.Meta.Total != 1 {
		t.Errorf("Expected one local task, got meta %+v", resp.Meta)
	}
	if len(resp.Data) != 1 || resp.Data[0].Id != "L1" {
		t.Errorf("Expected local task L1 in data, got %+v", resp.Data)
	}
}

// TestListTasksMergesSources checks that duplicates across the two backends
// collapse into merged records and the meta counts reflect it.
func TestListTasksMergesSources(t *testing.T) {
	remote := &fakeRemote{tasks: []models.Task{
		{Id: "E9", Title: "buy milk ", UserId: "1", Description: "2% please", Source: models.SourceExternal},
	}}
	store := &fakeStore{tasks: []models.Task{
		{Id: "L1", Title: "Buy milk", UserId: "1", Source: models.SourceLocal},
	}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks", nil)

	var resp response.TaskListResponse
	decodeBody(t, recorder, &resp)
	if resp.Meta.Merged != 1 || resp.Meta.Total != 1 {
		t.Errorf("Expected one merged task, got meta %+v", resp.Meta)
	}
	if resp.Data[0].Id != "L1" || resp.Data[0].Source != models.SourceMerged {
		t.Errorf("Expected merged record under local ID, got %+v", resp.Data[0])
	}
	if resp.Data[0].Description != "2% please" {
		t.Errorf("Expected description backfilled, got %q", resp.Data[0].Description)
	}
}

// TestListTasksSingleSourceSkipsOtherAdapter checks that source=local only
// queries the local store.
func TestListTasksSingleSourceSkipsOtherAdapter(t *testing.T) {
	remote := &fakeRemote{tasks: []models.Task{{Id: "E1", Title: "X", Source: models.SourceExternal}}}
	store := &fakeStore{tasks: []models.Task{{Id: "L1", Title: "Y", Source: models.SourceLocal}}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks?source=local", nil)

	if remote.listCalls != 0 {
		t.Errorf("Expected remote adapter not to be called, got %d calls", remote.listCalls)
	}
	var resp response.TaskListResponse
	decodeBody(t, recorder, &resp)
	if resp.Meta.External != 0 || resp.Meta.Local != 1 || resp.Meta.Merged != 0 {
		t.Errorf("Unexpected meta %+v", resp.Meta)
	}
}

// TestListTasksInvalidSource checks that an unknown source filter is a
// client error.
func TestListTasksInvalidSource(t *testing.T) {
	h := newTestHandler(&fakeRemote{}, &fakeStore{})

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks?source=bogus", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

// TestListTasksUserFilter checks that the userId filter reaches both adapters.
func TestListTasksUserFilter(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{}
	h := newTestHandler(remote, store)

	doRequest(t, h, http.MethodGet, "/api/tasks?userId=42", nil)

	if len(remote.userCalls) != 1 || remote.userCalls[0] != "42" {
		t.Errorf("Expected remote listByUser with 42, got %v", remote.userCalls)
	}
	if len(store.userCalls) != 1 || store.userCalls[0] != "42" {
		t.Errorf("Expected store listByUser with 42, got %v", store.userCalls)
	}
}

// TestGetTaskFallsBackToLocal checks that a remote failure is swallowed and
// the local record is served.
func TestGetTaskFallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{err: errBackendDown}
	store := &fakeStore{task: &models.Task{Id: "L1", Title: "Local", Source: models.SourceLocal}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks/L1", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.TaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Data.Id != "L1" {
		t.Errorf("Expected local task L1, got %+v", resp.Data)
	}
}

// TestGetTaskExternalReferenceFallback checks the last-chance lookup by
// stored external reference.
func TestGetTaskExternalReferenceFallback(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{byExternal: &models.Task{Id: "L1", ExternalId: "201", Source: models.SourceLocal}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks/201", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.TaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Data.ExternalId != "201" {
		t.Errorf("Expected task with external reference 201, got %+v", resp.Data)
	}
}

// TestGetTaskNotFound checks that not-found is returned only when every
// lookup came up empty.
func TestGetTaskNotFound(t *testing.T) {
	h := newTestHandler(&fakeRemote{}, &fakeStore{})

	recorder := doRequest(t, h, http.MethodGet, "/api/tasks/missing", nil)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

// TestCreateTaskValidation checks that a blank title is rejected before any
// backend is called.
func TestCreateTaskValidation(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{}
	h := newTestHandler(remote, store)

	for _, title := range []string{"", "   "} {
		recorder := doRequest(t, h, http.MethodPost, "/api/tasks", map[string]interface{}{"title": title})
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("Title %q: expected status code %d, got %d", title, http.StatusBadRequest, recorder.Code)
		}
	}
	if len(remote.cmdCalls) != 0 || len(store.cmdCalls) != 0 {
		t.Errorf("Expected no backend calls for invalid input, got remote=%d local=%d",
			len(remote.cmdCalls), len(store.cmdCalls))
	}
}

// TestCreateTaskPartialSuccess checks the dual-write reporting: remote
// succeeding and local failing is still a 201 with honest metadata, and the
// remote ID is remembered as a local reference.
func TestCreateTaskPartialSuccess(t *testing.T) {
	remote := &fakeRemote{task: &models.Task{Id: "201", Title: "New task", Source: models.SourceExternal}}
	store := &fakeStore{err: errBackendDown}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodPost, "/api/tasks", map[string]interface{}{"title": "New task"})

	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}
	var resp response.CreateTaskResponse
	decodeBody(t, recorder, &resp)
	if !resp.Meta.SavedToExternal || resp.Meta.SavedToLocal {
		t.Errorf("Expected saved_to_external=true saved_to_local=false, got %+v", resp.Meta)
	}
	if resp.Data.Id != "201" {
		t.Errorf("Expected remote record returned, got %+v", resp.Data)
	}
	if len(store.savedRefs) != 1 || store.savedRefs[0].Id != "201" {
		t.Errorf("Expected external reference saved for 201, got %v", store.savedRefs)
	}
}

// TestCreateTaskPrefersRemoteRecord checks that the remote record is
// returned when both backends succeed.
func TestCreateTaskPrefersRemoteRecord(t *testing.T) {
	remote := &fakeRemote{task: &models.Task{Id: "201", Source: models.SourceExternal}}
	store := &fakeStore{task: &models.Task{Id: "abc", Source: models.SourceLocal}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodPost, "/api/tasks", map[string]interface{}{"title": "New task"})

	var resp response.CreateTaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Data.Id != "201" {
		t.Errorf("Expected remote record preferred, got %+v", resp.Data)
	}
	if !resp.Meta.SavedToExternal || !resp.Meta.SavedToLocal {
		t.Errorf("Expected both flags true, got %+v", resp.Meta)
	}
	if len(store.savedRefs) != 0 {
		t.Errorf("Expected no reference bookkeeping when local copy exists, got %v", store.savedRefs)
	}
}

// TestCreateTaskBothFail checks that the operation fails only when both
// backends failed.
func TestCreateTaskBothFail(t *testing.T) {
	h := newTestHandler(&fakeRemote{err: errBackendDown}, &fakeStore{err: errBackendDown})

	recorder := doRequest(t, h, http.MethodPost, "/api/tasks", map[string]interface{}{"title": "New task"})

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
}

// TestUpdateTaskPrefersRemote checks that the remote record wins when both
// backends produced an updated record.
func TestUpdateTaskPrefersRemote(t *testing.T) {
	remote := &fakeRemote{task: &models.Task{Id: "1", Title: "Remote", Source: models.SourceExternal}}
	store := &fakeStore{task: &models.Task{Id: "1", Title: "Local", Source: models.SourceLocal}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodPut, "/api/tasks/1", map[string]interface{}{"completed": true})

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.TaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Data.Title != "Remote" {
		t.Errorf("Expected remote record preferred, got %+v", resp.Data)
	}
}

// TestUpdateTaskLocalOnly checks the local record is served when the remote
// backend has no such task.
func TestUpdateTaskLocalOnly(t *testing.T) {
	remote := &fakeRemote{}
	store := &fakeStore{task: &models.Task{Id: "abc", Title: "Local", Source: models.SourceLocal}}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodPut, "/api/tasks/abc", map[string]interface{}{"completed": true})

	var resp response.TaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Data.Title != "Local" {
		t.Errorf("Expected local record, got %+v", resp.Data)
	}
}

// TestUpdateTaskNotFound checks that not-found is returned only when neither
// backend produced an updated record.
func TestUpdateTaskNotFound(t *testing.T) {
	h := newTestHandler(&fakeRemote{}, &fakeStore{})

	recorder := doRequest(t, h, http.MethodPut, "/api/tasks/1", map[string]interface{}{"completed": true})

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

// TestDeleteTaskLocalOnly checks that a task existing only locally deletes
// successfully with honest per-backend metadata.
func TestDeleteTaskLocalOnly(t *testing.T) {
	remote := &fakeRemote{deleted: false}
	store := &fakeStore{deleted: true}
	h := newTestHandler(remote, store)

	recorder := doRequest(t, h, http.MethodDelete, "/api/tasks/abc", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.DeleteTaskResponse
	decodeBody(t, recorder, &resp)
	if resp.Meta.DeletedFromExternal || !resp.Meta.DeletedFromLocal {
		t.Errorf("Expected deleted_from_external=false deleted_from_local=true, got %+v", resp.Meta)
	}
}

// TestDeleteTaskNotFound checks that not-found is returned when neither
// backend reported a deletion.
func TestDeleteTaskNotFound(t *testing.T) {
	h := newTestHandler(&fakeRemote{}, &fakeStore{})

	recorder := doRequest(t, h, http.MethodDelete, "/api/tasks/1", nil)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

// TestHealthDegraded checks the health endpoint reports per-backend status
// and answers 503 when a backend is down.
func TestHealthDegraded(t *testing.T) {
	h := newTestHandler(&fakeRemote{healthy: false}, &fakeStore{healthy: true})

	recorder := doRequest(t, h, http.MethodGet, "/api/health", nil)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status code %d, got %d", http.StatusServiceUnavailable, recorder.Code)
	}
	var resp response.HealthResponse
	decodeBody(t, recorder, &resp)
	if resp.Status != "unhealthy" {
		t.Errorf("Expected status unhealthy, got %q", resp.Status)
	}
	if resp.Services["external_api"] || !resp.Services["local_store"] {
		t.Errorf("Unexpected services map %v", resp.Services)
	}
}

// TestHealthOK checks the healthy path.
func TestHealthOK(t *testing.T) {
	h := newTestHandler(&fakeRemote{healthy: true}, &fakeStore{healthy: true})

	recorder := doRequest(t, h, http.MethodGet, "/api/health", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var resp response.HealthResponse
	decodeBody(t, recorder, &resp)
	if resp.Status != "healthy" || resp.Version != Version {
		t.Errorf("Unexpected health payload %+v", resp)
	}
}
