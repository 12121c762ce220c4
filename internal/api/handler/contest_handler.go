package handler

import (
	"net/http"

	"tle_zone_judge/internal/api/middleware"
	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common"

	"github.com/go-chi/chi/v5"
)

type ContestHandler struct {
	contestService    *service.ContestService
	submissionService *service.SubmissionService
}

func NewContestHandler(cs *service.ContestService, ss *service.SubmissionService) *ContestHandler {
	return &ContestHandler{contestService: cs, submissionService: ss}
}

func (h *ContestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{contestID}", h.getContest)
	r.Get("/{contestID}/leaderboard", h.leaderboard)
	r.Get("/{contestID}/results/{userID}", h.results)
	r.Get("/{contestID}/ratings", h.ratings)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.Authenticator)
		authed.Post("/{contestID}/submit", h.submit)
	})
}

func (h *ContestHandler) getContest(w http.ResponseWriter, r *http.Request) {
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}
	contest, err := h.contestService.Get(r.Context(), contestID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contest)
}

func (h *ContestHandler) submit(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}

	var req service.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.submissionService.SubmitToContest(r.Context(), me.UserID, contestID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSubmission(w, view)
}

func (h *ContestHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}
	entries, err := h.contestService.Leaderboard(r.Context(), contestID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *ContestHandler) results(w http.ResponseWriter, r *http.Request) {
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	results, err := h.contestService.Results(r.Context(), contestID, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, results)
}

func (h *ContestHandler) ratings(w http.ResponseWriter, r *http.Request) {
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}
	records, err := h.contestService.Ratings(r.Context(), contestID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, records)
}
