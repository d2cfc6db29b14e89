package handlers

import (
	"net/http"

	"pabili-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AdminHandler handles the admin overview and hard deletes
type AdminHandler struct {
	adminService *services.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// Stats handles GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.GetStats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.adminService.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

// ListErrands handles GET /api/v1/admin/errands
func (h *AdminHandler) ListErrands(w http.ResponseWriter, r *http.Request) {
	errands, err := h.adminService.ListErrands(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"errands": errands})
}

// DeleteUser handles DELETE /api/v1/admin/users/{user_id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := h.adminService.DeleteUser(r.Context(), userID); err != nil {
		respondServiceError(w, err)
		return
	}
	log.Info().Str("user_id", userID).Msg("User deleted by admin")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteErrand handles DELETE /api/v1/admin/errands/{errand_id}
func (h *AdminHandler) DeleteErrand(w http.ResponseWriter, r *http.Request) {
	errandID := chi.URLParam(r, "errand_id")
	if err := h.adminService.DeleteErrand(r.Context(), errandID); err != nil {
		respondServiceError(w, err)
		return
	}
	log.Info().Str("errand_id", errandID).Msg("Errand deleted by admin")
	w.WriteHeader(http.StatusNoContent)
}
