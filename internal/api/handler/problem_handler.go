package handler

import (
	"net/http"

	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common"

	"github.com/go-chi/chi/v5"
)

type ProblemHandler struct {
	problemService *service.ProblemService
}

func NewProblemHandler(ps *service.ProblemService) *ProblemHandler {
	return &ProblemHandler{problemService: ps}
}

func (h *ProblemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily", h.daily) // GET /api/v1/problems/daily
}

func (h *ProblemHandler) daily(w http.ResponseWriter, r *http.Request) {
	problem, err := h.problemService.Daily(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, problem)
}
