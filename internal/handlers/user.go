package handlers

import (
	"encoding/json"
	"net/http"

	"pabili-backend/internal/middleware"
	"pabili-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles registration, login and profile requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.userService.Register(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("phone", req.PhoneNumber).Msg("Failed to register user")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", session.User.ID).
		Str("role", string(session.User.Role)).
		Msg("User registered")

	respondJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	PhoneNumber string   `json:"phone_number"`
	LocationLat *float64 `json:"location_lat,omitempty"`
	LocationLng *float64 `json:"location_lng,omitempty"`
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.userService.Login(r.Context(), req.PhoneNumber, req.LocationLat, req.LocationLng)
	if err != nil {
		log.Error().Err(err).Str("phone", req.PhoneNumber).Msg("Failed to log in user")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type saveAddressRequest struct {
	DeliveryAddress string `json:"delivery_address"`
	DeliveryNotes   string `json:"delivery_notes,omitempty"`
}

// SaveAddress handles PUT /api/v1/me/address
func (h *UserHandler) SaveAddress(w http.ResponseWriter, r *http.Request) {
	var req saveAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.userService.SaveAddress(r.Context(), userID, req.DeliveryAddress, req.DeliveryNotes); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
