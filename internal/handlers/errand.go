package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"pabili-backend/internal/middleware"
	"pabili-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// maxPhotoBytes caps multipart photo uploads.
const maxPhotoBytes = 10 << 20

// ErrandHandler handles errand lifecycle HTTP requests
type ErrandHandler struct {
	errandService *services.ErrandService
	ratingService *services.RatingService
}

// NewErrandHandler creates a new errand handler
func NewErrandHandler(errandService *services.ErrandService, ratingService *services.RatingService) *ErrandHandler {
	return &ErrandHandler{
		errandService: errandService,
		ratingService: ratingService,
	}
}

// readPhoto extracts an optional photo part from a multipart form.
func readPhoto(r *http.Request, field string) (*services.PhotoUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
	if err != nil {
		return nil, err
	}

	return &services.PhotoUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Create handles POST /api/v1/errands. The body is either plain JSON
// or multipart form data with a "payload" JSON part and an optional
// "photo" part for the items photo.
func (h *ErrandHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.CreateErrandRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
			respondError(w, "Invalid multipart body", http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &req); err != nil {
			respondError(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		photo, err := readPhoto(r, "photo")
		if err != nil {
			respondError(w, "Invalid photo upload", http.StatusBadRequest)
			return
		}
		req.ItemsPhoto = photo
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	errand, err := h.errandService.Create(ctx, userID, req)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create errand")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("errand_id", errand.ID).
		Str("user_id", userID).
		Int("items", len(errand.Items)).
		Msg("Errand posted")

	respondJSON(w, http.StatusCreated, errand)
}

// ListMine handles GET /api/v1/errands
func (h *ErrandHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	groups, err := h.errandService.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

// ListNearby handles GET /api/v1/errands/nearby
func (h *ErrandHandler) ListNearby(w http.ResponseWriter, r *http.Request) {
	errands, err := h.errandService.ListNearby(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"errands": errands,
		"total":   len(errands),
	})
}

// NearbyAgents handles GET /api/v1/agents/nearby
func (h *ErrandHandler) NearbyAgents(w http.ResponseWriter, r *http.Request) {
	count, err := h.errandService.NearbyAgentCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"agents_nearby": count})
}

// Get handles GET /api/v1/errands/{errand_id}
func (h *ErrandHandler) Get(w http.ResponseWriter, r *http.Request) {
	errand, err := h.errandService.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "errand_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, errand)
}

type acceptRequest struct {
	ServiceFee float64 `json:"service_fee"`
}

// Accept handles POST /api/v1/errands/{errand_id}/accept
func (h *ErrandHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	errand, err := h.errandService.Accept(ctx, userID, errandID, req.ServiceFee)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("errand_id", errandID).
			Msg("Failed to accept errand")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("errand_id", errandID).
		Str("user_id", userID).
		Float64("service_fee", req.ServiceFee).
		Msg("Errand accepted")

	respondJSON(w, http.StatusOK, errand)
}

type priceRequest struct {
	Price float64 `json:"price"`
}

// SetItemPrice handles PUT /api/v1/errands/{errand_id}/items/{item_id}/price
func (h *ErrandHandler) SetItemPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")
	itemID := chi.URLParam(r, "item_id")

	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	errand, err := h.errandService.SetItemPrice(ctx, userID, errandID, itemID, req.Price)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, errand)
}

// Complete handles POST /api/v1/errands/{errand_id}/receipt
func (h *ErrandHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		respondError(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	photo, err := readPhoto(r, "photo")
	if err != nil || photo == nil {
		respondError(w, "receipt photo is required", http.StatusBadRequest)
		return
	}

	errand, err := h.errandService.Complete(ctx, userID, errandID, *photo)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("errand_id", errandID).
			Msg("Failed to complete errand")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("errand_id", errandID).
		Str("user_id", userID).
		Msg("Errand completed")

	respondJSON(w, http.StatusOK, errand)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel handles POST /api/v1/errands/{errand_id}/cancel
func (h *ErrandHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	var req cancelRequest
	if r.Body != nil {
		// Reason is optional; an empty body means none given.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	errand, err := h.errandService.Cancel(ctx, userID, errandID, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("errand_id", errandID).
		Str("user_id", userID).
		Msg("Errand cancelled")

	respondJSON(w, http.StatusOK, errand)
}

// Rate handles POST /api/v1/errands/{errand_id}/rating
func (h *ErrandHandler) Rate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	var req services.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.ratingService.Rate(ctx, userID, errandID, req); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Total handles GET /api/v1/errands/{errand_id}/total
func (h *ErrandHandler) Total(w http.ResponseWriter, r *http.Request) {
	totals, err := h.errandService.Total(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "errand_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

// Earnings handles GET /api/v1/earnings
func (h *ErrandHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := h.errandService.Earnings(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, earnings)
}
