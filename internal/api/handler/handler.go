package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tle_zone_judge/internal/api/middleware"
	"tle_zone_judge/internal/common"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// caller returns the authenticated identity. Routes using it sit behind
// middleware.Authenticator, so a miss is answered as unauthenticated.
func caller(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
	}
	return id, ok
}

// idParam reads a positive integer path parameter, answering 400 otherwise.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// respondServiceError logs unexpected failures before hiding them from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if common.HTTPStatusFromError(err) == http.StatusInternalServerError {
		httplog.LogEntry(r.Context()).Error("request failed", "error", err)
	}
	common.RespondWithServiceError(w, err)
}
