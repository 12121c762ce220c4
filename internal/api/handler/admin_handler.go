package handler

import (
	"net/http"

	"tle_zone_judge/internal/api/middleware"
	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common"

	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	adminService   *service.AdminService
	contestService *service.ContestService
	ratingService  *service.RatingService
}

func NewAdminHandler(as *service.AdminService, cs *service.ContestService, rs *service.RatingService) *AdminHandler {
	return &AdminHandler{adminService: as, contestService: cs, ratingService: rs}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Post("/contests", h.createContest)
	r.Post("/contests/{contestID}/ratings", h.updateRatings)
	r.Delete("/jobs/{jobID}", h.cancelJob)
	r.Post("/users/{userID}/ban", h.banUser)
}

func (h *AdminHandler) createContest(w http.ResponseWriter, r *http.Request) {
	var req service.CreateContestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	contest, err := h.contestService.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, contest)
}

func (h *AdminHandler) updateRatings(w http.ResponseWriter, r *http.Request) {
	contestID, ok := idParam(w, r, "contestID")
	if !ok {
		return
	}
	update, err := h.ratingService.UpdateRatings(r.Context(), contestID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, update)
}

func (h *AdminHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.adminService.CancelJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *AdminHandler) banUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.adminService.BanUser(r.Context(), userID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	common.RespondNoContent(w)
}
