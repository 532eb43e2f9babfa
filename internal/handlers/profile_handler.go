package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/services/profiles"
)

// maxCookieJarBytes bounds uploaded cookie snapshots
const maxCookieJarBytes = 4 << 20

// ProfileHandler exposes profile management: creation, activation, cookie
// import, deletion
type ProfileHandler struct {
	service *profiles.Service
	logger  arbor.ILogger
}

// NewProfileHandler creates a profile handler
func NewProfileHandler(service *profiles.Service, logger arbor.ILogger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		logger:  logger,
	}
}

// ProfilesHandler handles /api/profiles: GET lists, POST creates
func (h *ProfileHandler) ProfilesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.service.List(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list profiles")
			WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"count":    len(list),
			"profiles": list,
		})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		profile, err := h.service.Create(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, interfaces.ErrDuplicateProfile) {
				WriteError(w, http.StatusConflict, "A profile with that name already exists")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, profile)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ActiveProfileHandler handles GET /api/profiles/active
func (h *ProfileHandler) ActiveProfileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	profile, err := h.service.GetActive(r.Context())
	if err != nil {
		if errors.Is(err, interfaces.ErrNoActiveProfile) {
			WriteError(w, http.StatusNotFound, "No active profile")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to get active profile")
		WriteError(w, http.StatusInternalServerError, "Failed to get active profile")
		return
	}

	WriteJSON(w, http.StatusOK, profile)
}

// ProfileRoutesHandler handles /api/profiles/{id} and subpaths:
//
//	GET    /api/profiles/{id}
//	DELETE /api/profiles/{id}
//	POST   /api/profiles/{id}/activate
//	POST   /api/profiles/{id}/cookies
func (h *ProfileHandler) ProfileRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Profile ID is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getProfile(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.deleteProfile(w, r, id)
	case action == "activate" && r.Method == http.MethodPost:
		h.activateProfile(w, r, id)
	case action == "cookies" && r.Method == http.MethodPost:
		h.importCookies(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.logger.Error().Err(err).Str("profile_id", id).Msg("Failed to get profile")
		WriteError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) deleteProfile(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrProfileNotFound):
			WriteError(w, http.StatusNotFound, "Profile not found")
		case errors.Is(err, interfaces.ErrProfileInUse):
			WriteError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error().Err(err).Str("profile_id", id).Msg("Failed to delete profile")
			WriteError(w, http.StatusInternalServerError, "Failed to delete profile")
		}
		return
	}
	WriteSuccess(w, "Profile deleted")
}

func (h *ProfileHandler) activateProfile(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.SetActive(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.logger.Error().Err(err).Str("profile_id", id).Msg("Failed to activate profile")
		WriteError(w, http.StatusInternalServerError, "Failed to activate profile")
		return
	}
	WriteSuccess(w, "Profile activated")
}

func (h *ProfileHandler) importCookies(w http.ResponseWriter, r *http.Request, id string) {
	jar, err := io.ReadAll(io.LimitReader(r.Body, maxCookieJarBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := h.service.ImportCookies(r.Context(), id, jar); err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteSuccess(w, "Cookie snapshot imported")
}
