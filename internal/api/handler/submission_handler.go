package handler

import (
	"net/http"

	"tle_zone_judge/internal/api/middleware"
	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common"

	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

func NewSubmissionHandler(ss *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss}
}

// RegisterRoutes mounts /submissions.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/", h.createSubmission)
	r.Get("/{submissionID}", h.getSubmission)
}

// RegisterRunRoutes mounts /run.
func (h *SubmissionHandler) RegisterRunRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/", h.runCode)
	r.Get("/{jobID}", h.getRun)
}

func (h *SubmissionHandler) createSubmission(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	var req service.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.submissionService.Submit(r.Context(), me.UserID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSubmission(w, view)
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "submissionID")
	if !ok {
		return
	}

	view, err := h.submissionService.Get(r.Context(), me.UserID, me.Role, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}

func (h *SubmissionHandler) runCode(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	var req service.RunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.submissionService.Run(r.Context(), me.UserID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if view.Judging() {
		status = http.StatusAccepted
	}
	common.RespondWithJSON(w, status, view)
}

func (h *SubmissionHandler) getRun(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	view, err := h.submissionService.GetRun(r.Context(), me.UserID, chi.URLParam(r, "jobID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}

// respondSubmission answers 202 while the verdict is still pending.
func respondSubmission(w http.ResponseWriter, view *service.SubmissionView) {
	status := http.StatusOK
	if view.Judging() {
		status = http.StatusAccepted
	}
	common.RespondWithJSON(w, status, view)
}
