package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/cf-progress-tracker/internal/application/command"
	"github.com/alem-hub/cf-progress-tracker/internal/application/query"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, JSONResponse{Success: false, Data: status, Meta: newMeta(r)})
		return
	}
	writeData(w, r, http.StatusOK, "", status)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

type createStudentRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Handle        string `json:"cfHandle"`
	EmailDisabled bool   `json:"emailDisabled"`
}

type updateStudentRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Handle        *string `json:"cfHandle"`
	EmailDisabled *bool   `json:"emailDisabled"`
}

// studentWriteResponse is returned by create and update.
type studentWriteResponse struct {
	Student     query.StudentDTO `json:"student"`
	SyncWarning string           `json:"syncWarning,omitempty"`
	Reminded    bool             `json:"reminded,omitempty"`
}

func newStudentWriteResponse(res *command.StudentWriteResult) studentWriteResponse {
	return studentWriteResponse{
		Student:     query.NewStudentDTO(res.Student),
		SyncWarning: res.SyncWarning,
		Reminded:    res.Reminded,
	}
}

// handleListStudents handles GET /api/students
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{})
	if err != nil {
		s.writeError(w, r, "list_students", err)
		return
	}

	meta := newMeta(r)
	meta.TotalCount = len(students)
	writeJSON(w, http.StatusOK, JSONResponse{Success: true, Data: students, Meta: meta})
}

// handleCreateStudent handles POST /api/students
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.deps.ManageStudents.Create(r.Context(), command.CreateStudentCommand{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Handle:        req.Handle,
		EmailDisabled: req.EmailDisabled,
	})
	if err != nil {
		s.writeError(w, r, "create_student", err)
		return
	}

	writeData(w, r, http.StatusCreated, "Student created successfully", newStudentWriteResponse(res))
}

// handleGetStudent handles GET /api/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetStudent.Handle(r.Context(), query.GetStudentQuery{StudentID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "get_student", err)
		return
	}
	writeData(w, r, http.StatusOK, "", dto)
}

// handleUpdateStudent handles PUT /api/students/{id}
func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req updateStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.deps.ManageStudents.Update(r.Context(), command.UpdateStudentCommand{
		StudentID: chi.URLParam(r, "id"),
		Details: student.UpdateDetails{
			Name:          req.Name,
			Email:         req.Email,
			Phone:         req.Phone,
			Handle:        req.Handle,
			EmailDisabled: req.EmailDisabled,
		},
	})
	if err != nil {
		s.writeError(w, r, "update_student", err)
		return
	}

	writeData(w, r, http.StatusOK, "Student updated successfully", newStudentWriteResponse(res))
}

// handleDeleteStudent handles DELETE /api/students/{id}
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.ManageStudents.Delete(r.Context(), command.DeleteStudentCommand{StudentID: id}); err != nil {
		s.writeError(w, r, "delete_student", err)
		return
	}
	writeData(w, r, http.StatusOK, "Student deleted successfully", nil)
}

// handleGetStudentStats handles GET /api/students/{id}/stats?contestDays=&problemDays=
func (s *Server) handleGetStudentStats(w http.ResponseWriter, r *http.Request) {
	contestDays, ok := intParam(w, r, "contestDays")
	if !ok {
		return
	}
	problemDays, ok := intParam(w, r, "problemDays")
	if !ok {
		return
	}

	stats, err := s.deps.GetStats.Handle(r.Context(), query.GetStudentStatsQuery{
		StudentID:   chi.URLParam(r, "id"),
		ContestDays: contestDays,
		ProblemDays: problemDays,
	})
	if err != nil {
		s.writeError(w, r, "get_student_stats", err)
		return
	}
	writeData(w, r, http.StatusOK, "", stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC & REMINDERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSyncAll handles POST /api/sync/all
// The run is detached from the request so a client disconnect does not abort it.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	result, err := s.deps.RunPipeline.Handle(ctx, command.RunPipelineCommand{Trigger: "manual"})
	if err != nil {
		s.writeError(w, r, "sync_all", err)
		return
	}
	writeData(w, r, http.StatusOK, "All students synced successfully", result)
}

// handleSyncStudent handles POST /api/sync/{id}
func (s *Server) handleSyncStudent(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	result, err := s.deps.SyncStudent.Handle(ctx, command.SyncStudentCommand{StudentID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, "sync_student", err)
		return
	}
	writeData(w, r, http.StatusOK, "Student synced successfully", query.NewStudentDTO(result.Student))
}

// handleCheckInactivity handles POST /api/inactivity/check[?studentId=]
func (s *Server) handleCheckInactivity(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	result, err := s.deps.CheckInactivity.Handle(ctx, command.CheckInactivityCommand{
		StudentID: r.URL.Query().Get("studentId"),
	})
	if err != nil {
		s.writeError(w, r, "check_inactivity", err)
		return
	}
	writeData(w, r, http.StatusOK, fmt.Sprintf("Mails sent to %d students", result.Notified), result)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT & JOBS
// ══════════════════════════════════════════════════════════════════════════════

// handleExportCSV handles GET /api/export/csv
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.ExportReport.Handle(r.Context(), query.ExportReportQuery{})
	if err != nil {
		s.writeError(w, r, "export_csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="students-report.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(query.ReportColumns)
	for _, row := range rows {
		_ = cw.Write(row.Record())
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		logger.FromContext(r.Context()).Error("failed to write csv export", logger.Err(err))
	}
}

// handleListJobs handles GET /api/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeData(w, r, http.StatusOK, "Scheduler disabled", []any{})
		return
	}
	writeData(w, r, http.StatusOK, "", s.deps.Jobs.ListJobs())
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads the body into dst; on failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// intParam parses an optional integer query parameter; missing means 0.
func intParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", key+" must be an integer")
		return 0, false
	}
	return v, true
}
