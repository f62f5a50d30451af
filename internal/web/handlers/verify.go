package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/gallery"
	"github.com/kozaktomas/attendance-kiosk/internal/imaging"
	"github.com/kozaktomas/attendance-kiosk/internal/verify"
)

// Verifier runs a verification attempt.
type Verifier interface {
	Verify(ctx context.Context, req verify.Request) (*verify.Response, error)
}

// VerifyHandler handles kiosk verification requests
type VerifyHandler struct {
	verifier Verifier
	logger   *zap.Logger
}

// NewVerifyHandler creates a new verify handler
func NewVerifyHandler(verifier Verifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger}
}

// VerifyRequest is the kiosk's verification payload
type VerifyRequest struct {
	Image        string   `json:"image"` // base64, with or without a data URL prefix
	Tenant       string   `json:"tenant"`
	Kind         string   `json:"kind,omitempty"` // STUDENT (default) or STAFF
	Session      string   `json:"session,omitempty"`
	CandidateIDs []string `json:"candidate_ids,omitempty"`
	Remark       string   `json:"remark,omitempty"`
	DryRun       bool     `json:"dry_run,omitempty"`
}

// VerifyResponse wraps the pipeline result with an operator-facing message.
type VerifyResponse struct {
	*verify.Response
	Message string `json:"message"`
}

func message(resp *verify.Response) string {
	if resp.Matched {
		if resp.Attendance != nil && resp.Attendance.Error != "" {
			return "identified " + resp.Match.Name + ", but the attendance mark could not be saved"
		}
		if resp.Attendance != nil && resp.Attendance.Outcome == attendance.OutcomeAlreadyMarked {
			return resp.Match.Name + " is already marked present"
		}
		return "marked " + resp.Match.Name + " present"
	}

	switch resp.Reason {
	case verify.ReasonNoFeatures:
		return "the photo has no usable detail, try again with better lighting"
	case verify.ReasonNoCandidates:
		return "no active candidates with reference photos"
	default:
		return "no match found"
	}
}

// Verify runs the full pipeline for one probe photo.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant is required")
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	kind := gallery.KindStudent
	switch req.Kind {
	case "", string(gallery.KindStudent):
	case string(gallery.KindStaff):
		kind = gallery.KindStaff
	default:
		respondError(w, http.StatusBadRequest, "kind must be STUDENT or STAFF")
		return
	}

	session := attendance.Session(req.Session)
	if req.Session != "" && !attendance.ValidSession(session) {
		respondError(w, http.StatusBadRequest, "unknown session")
		return
	}

	payload, err := imaging.DecodeBase64Payload(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is not valid base64")
		return
	}

	resp, err := h.verifier.Verify(r.Context(), verify.Request{
		Tenant:    req.Tenant,
		Kind:      kind,
		Payload:   payload,
		Session:   session,
		AllowIDs:  req.CandidateIDs,
		Remark:    req.Remark,
		RequestID: chiMiddleware.GetReqID(r.Context()),
		DryRun:    req.DryRun,
	})
	if err != nil {
		var decodeErr *imaging.DecodeError
		if errors.As(err, &decodeErr) {
			respondError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		h.logger.Error("verification failed",
			zap.String("tenant", sanitizeForLog(req.Tenant)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, VerifyResponse{Response: resp, Message: message(resp)})
}
