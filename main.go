// TaskAggregatorService is a web service that aggregates tasks from two backends.
//
// It fetches tasks from a remote third-party todo service and from a MongoDB
// document store, reconciles the two lists into a single deduplicated view,
// and issues create/update/delete operations to both backends best-effort.
// Either backend may be down without failing a request; responses carry
// metadata describing what each backend contributed.
// Rate limiting protects the API against abuse and Prometheus metrics are
// exposed for monitoring.
//
// The following endpoints are available:
//
//  1. GET    /api/tasks          - List tasks from both backends, reconciled
//  2. GET    /api/tasks/{id}     - Get a task by ID (remote first, local fallback)
//  3. POST   /api/tasks          - Create a task in both backends
//  4. PUT    /api/tasks/{id}     - Update a task in both backends
//  5. DELETE /api/tasks/{id}     - Delete a task from both backends
//  6. GET    /api/health         - Health of the service and its backends
//  7. GET    /metrics            - Prometheus metrics
//
// You may use godoc -http=:6060 to view the documentation in your browser.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"TaskAggregatorService/clients"
	"TaskAggregatorService/config"
	"TaskAggregatorService/handlers"
	"TaskAggregatorService/response"
	"TaskAggregatorService/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskapi_errors_total",
		Help: "Total number of errors occurred in the application.",
	}, []string{"endpoint"})
	endPointCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskapi_endpoint_calls_total",
		Help: "Total number of calls per endpoint.",
	}, []string{"endpoint"})
	log = logrus.New()
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment")
	}
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	prometheus.MustRegister(errorCounter)
	prometheus.MustRegister(endPointCounter)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.NewTaskStore(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	cancel()
	if err != nil {
		log.Fatal(err)
	}

	todoClient := clients.NewTodoClient(cfg.TodoAPIBaseURL, cfg.TodoAPITimeout, log)
	taskHandler := handlers.NewTaskHandler(todoClient, store, log, cfg.Environment,
		endPointCounter, errorCounter)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", taskHandler.ListTasksHandler)
	mux.HandleFunc("POST /api/tasks", taskHandler.CreateTaskHandler)
	mux.HandleFunc("GET /api/tasks/{id}", taskHandler.GetTaskHandler)
	mux.HandleFunc("PUT /api/tasks/{id}", taskHandler.UpdateTaskHandler)
	mux.HandleFunc("DELETE /api/tasks/{id}", taskHandler.DeleteTaskHandler)
	mux.HandleFunc("GET /api/health", taskHandler.HealthHandler)
	mux.HandleFunc("/api/", taskHandler.NotFoundHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", taskHandler.WelcomeHandler)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	handler := requestLogger(rateLimiter(limiter, corsHandler(cfg, recoverer(cfg, mux))))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		log.Info("Server listening on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed: " + err.Error())
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error("MongoDB disconnect failed: " + err.Error())
	}
}

// statusRecorder captures the status code written by a handler so the
// request logger can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger is a middleware function that assigns each request an ID and
// logs the method, path, status and duration once the request finishes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		requestId := uuid.NewString()
		res.Header().Set("X-Request-Id", requestId)
		recorder := &statusRecorder{ResponseWriter: res, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(recorder, req)

		log.WithFields(logrus.Fields{
			"request_id": requestId,
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     recorder.status,
			"duration":   time.Since(start).String(),
		}).Info("Request completed")
	})
}

// rateLimiter is a middleware function that implements rate limiting for HTTP requests.
// If the request is not allowed due to rate limiting, it returns a JSON response
// with an error message and HTTP status code 429 (Too Many Requests).
func rateLimiter(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if !limiter.Allow() {
			message := response.Message{
				Status: "Request Failed",
				Body:   "The API is at capacity, try again later.",
			}
			response.WriteJSON(res, http.StatusTooManyRequests, &message)
			return
		}
		next.ServeHTTP(res, req)
	})
}

// corsHandler is a middleware function that sets the CORS headers. Outside
// production every origin is allowed; in production only the configured
// origins are.
func corsHandler(cfg *config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if origin != "" {
			if !cfg.IsProduction() || containsOrigin(cfg.AllowedOrigins, origin) {
				res.Header().Set("Access-Control-Allow-Origin", origin)
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if req.Method == http.MethodOptions {
			res.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			res.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			res.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(res, req)
	})
}

func containsOrigin(origins []string, origin string) bool {
	for _, allowed := range origins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// recoverer is a middleware function that catches panics escaping the
// handlers and answers with a generic server error. The panic detail is only
// included outside production.
func recoverer(cfg *config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					"method": req.Method,
					"path":   req.URL.Path,
				}).Errorf("Unhandled panic: %v", rec)
				details := "An unexpected error occurred"
				if !cfg.IsProduction() {
					details = fmt.Sprintf("panic: %v", rec)
				}
				response.WriteError(res, http.StatusInternalServerError, "Internal server error", details)
			}
		}()
		next.ServeHTTP(res, req)
	})
}
