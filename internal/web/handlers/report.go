package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/report"
)

// Reporter builds day reports from the attendance store.
type Reporter interface {
	Daily(ctx context.Context, tenant string, date time.Time) (*attendance.DayReport, error)
}

// ReportHandler serves attendance reports
type ReportHandler struct {
	reporter Reporter
	logger   *zap.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reporter Reporter, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reporter: reporter, logger: logger}
}

// reportRow is one attendance record in the JSON day report.
type reportRow struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SubjectKind string `json:"subject_kind"`
	Session     string `json:"session"`
	Status      string `json:"status"`
	Present     bool   `json:"present"`
	Source      string `json:"source"`
	Remark      string `json:"remark,omitempty"`
	MarkedAt    string `json:"marked_at"`
}

type dailyResponse struct {
	Tenant  string         `json:"tenant"`
	Date    string         `json:"date"`
	Rows    []reportRow    `json:"rows"`
	Summary map[string]int `json:"summary"`
}

func (h *ReportHandler) load(w http.ResponseWriter, r *http.Request) (*attendance.DayReport, bool) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant is required")
		return nil, false
	}

	dateParam := r.URL.Query().Get("date")
	date := time.Now()
	if dateParam != "" {
		parsed, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return nil, false
		}
		date = parsed
	}

	result, err := h.reporter.Daily(r.Context(), tenant, date)
	if err != nil {
		h.logger.Error("day report failed",
			zap.String("tenant", sanitizeForLog(tenant)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to build report")
		return nil, false
	}
	return result, true
}

// Daily returns the day report as JSON.
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	result, ok := h.load(w, r)
	if !ok {
		return
	}

	resp := dailyResponse{
		Tenant:  result.Tenant,
		Date:    result.Date.Format("2006-01-02"),
		Rows:    make([]reportRow, 0, len(result.Rows)),
		Summary: make(map[string]int, len(result.Summary)),
	}
	for _, rec := range result.Rows {
		resp.Rows = append(resp.Rows, reportRow{
			SubjectID:   rec.SubjectID,
			SubjectName: rec.SubjectName,
			SubjectKind: rec.SubjectKind,
			Session:     string(rec.Session),
			Status:      string(rec.Status),
			Present:     rec.Status.IsPresent(),
			Source:      rec.Source,
			Remark:      rec.Remark,
			MarkedAt:    rec.MarkedAt.Format(time.RFC3339),
		})
	}
	for status, count := range result.Summary {
		resp.Summary[string(status)] = count
	}

	respondJSON(w, http.StatusOK, resp)
}

// Export returns the day report as an xlsx download.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	result, ok := h.load(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("attendance-%s-%s.xlsx", result.Tenant, result.Date.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := report.WriteDailyXLSX(result, w); err != nil {
		h.logger.Error("xlsx export failed",
			zap.String("tenant", sanitizeForLog(result.Tenant)),
			zap.Error(err))
	}
}
