// Package http implements the REST API of the tracker: student management,
// stats, manual sync triggers, the inactivity trigger, CSV export and health.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alem-hub/cf-progress-tracker/internal/application/command"
	"github.com/alem-hub/cf-progress-tracker/internal/application/query"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/infrastructure/scheduler"
	"github.com/alem-hub/cf-progress-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/cf-progress-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: all interfaces).
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// StudentLister lists student summaries.
type StudentLister interface {
	Handle(ctx context.Context, q query.ListStudentsQuery) ([]query.StudentDTO, error)
}

// StudentGetter loads one full student record.
type StudentGetter interface {
	Handle(ctx context.Context, q query.GetStudentQuery) (*query.StudentDTO, error)
}

// StatsGetter computes a student's windowed stats.
type StatsGetter interface {
	Handle(ctx context.Context, q query.GetStudentStatsQuery) (*query.StudentStatsDTO, error)
}

// ReportExporter builds the per-student report rows.
type ReportExporter interface {
	Handle(ctx context.Context, q query.ExportReportQuery) ([]query.ReportRow, error)
}

// StudentManager creates, updates and deletes students.
type StudentManager interface {
	Create(ctx context.Context, cmd command.CreateStudentCommand) (*command.StudentWriteResult, error)
	Update(ctx context.Context, cmd command.UpdateStudentCommand) (*command.StudentWriteResult, error)
	Delete(ctx context.Context, cmd command.DeleteStudentCommand) error
}

// StudentSyncer syncs one student on demand.
type StudentSyncer interface {
	Handle(ctx context.Context, cmd command.SyncStudentCommand) (*command.SyncStudentResult, error)
}

// PipelineRunner runs sync-all followed by the inactivity sweep.
type PipelineRunner interface {
	Handle(ctx context.Context, cmd command.RunPipelineCommand) (*command.RunPipelineResult, error)
}

// InactivityChecker runs the inactivity sweep.
type InactivityChecker interface {
	Handle(ctx context.Context, cmd command.CheckInactivityCommand) (*command.CheckInactivityResult, error)
}

// JobLister exposes the scheduler's registered jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Query side
	ListStudents StudentLister
	GetStudent   StudentGetter
	GetStats     StatsGetter
	ExportReport ReportExporter

	// Command side
	ManageStudents  StudentManager
	SyncStudent     StudentSyncer
	RunPipeline     PipelineRunner
	CheckInactivity InactivityChecker

	// Optional
	Jobs   JobLister
	Health *handlers.HealthChecker

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.Health == nil {
		s.deps.Health = handlers.NewHealthChecker("")
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(s.logger))
	r.Use(handlers.Recovery(s.logger))

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Get("/", s.handleListStudents)
			r.Post("/", s.handleCreateStudent)
			r.Get("/{id}", s.handleGetStudent)
			r.Put("/{id}", s.handleUpdateStudent)
			r.Delete("/{id}", s.handleDeleteStudent)
			r.Get("/{id}/stats", s.handleGetStudentStats)
		})

		r.Post("/sync/all", s.handleSyncAll)
		r.Post("/sync/{id}", s.handleSyncStudent)
		r.Post("/inactivity/check", s.handleCheckInactivity)
		r.Get("/export/csv", s.handleExportCSV)
		r.Get("/jobs", s.handleListJobs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    any           `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"requestId,omitempty"`
	TotalCount int       `json:"totalCount,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeData writes a successful response.
func writeData(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, status, JSONResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    newMeta(r),
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

func newMeta(r *http.Request) *ResponseMeta {
	return &ResponseMeta{
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

// writeError maps an application error to a status code. Domain errors
// carry a user-facing message; anything else is logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)

	message := shared.UserMessage(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.Operation(op),
			logger.Err(err),
		)
		message = "Internal server error"
	}

	writeJSONError(w, status, code, message)
}

func classify(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsAlreadyExists(err):
		return http.StatusBadRequest, "already_exists"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "conflict"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "external_service_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
