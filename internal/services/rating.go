package services

import (
	"context"
	"errors"
	"time"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

type ratingErrandStore interface {
	GetByID(ctx context.Context, id string) (*models.Errand, error)
	SetCustomerRating(ctx context.Context, errandID string, rating int, review string) error
	SetAgentRating(ctx context.Context, errandID string, rating int, review string) error
}

type ratingUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ApplyRating(ctx context.Context, userID string, rating int) (float64, int, error)
}

type ratingNotifier interface {
	RatingReceived(ctx context.Context, userID, raterName string, rating int, description, errandID string)
}

// RatingService handles the two one-shot ratings each completed errand
// carries: customer-rates-agent and agent-rates-customer. The subject's
// running average is folded in with a single atomic store update.
type RatingService struct {
	errandRepo ratingErrandStore
	userRepo   ratingUserStore
	notifier   ratingNotifier
	now        func() time.Time
}

// NewRatingService creates a new rating service
func NewRatingService(errandRepo ratingErrandStore, userRepo ratingUserStore, notifier ratingNotifier) *RatingService {
	return &RatingService{
		errandRepo: errandRepo,
		userRepo:   userRepo,
		notifier:   notifier,
		now:        time.Now,
	}
}

// RateRequest is one side's rating of the other for an errand.
type RateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review,omitempty"`
}

// Rate records the caller's rating for the other side of a completed
// errand. Which side is being rated follows from who the caller is.
func (s *RatingService) Rate(ctx context.Context, raterID, errandID string, req RateRequest) error {
	if req.Rating < 1 || req.Rating > 5 {
		return apperr.InvalidInput("rating must be between 1 and 5")
	}

	errand, err := s.errandRepo.GetByID(ctx, errandID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("errand not found")
		}
		return apperr.Store(err, "failed to load errand")
	}

	if errand.Status != models.StatusCompleted {
		return apperr.InvalidTransition("only completed errands can be rated")
	}

	switch {
	case errand.CustomerID == raterID:
		return s.rateAgent(ctx, errand, req)
	case errand.AgentID != nil && *errand.AgentID == raterID:
		return s.rateCustomer(ctx, errand, req)
	default:
		return apperr.Unauthorized("you are not a participant of this errand")
	}
}

// rateAgent is the customer's side: the subject is the assigned agent.
func (s *RatingService) rateAgent(ctx context.Context, errand *models.Errand, req RateRequest) error {
	if errand.CustomerRating != nil {
		return apperr.AlreadyRated("you already rated the agent for this errand")
	}
	if errand.AgentID == nil {
		return apperr.InvalidTransition("errand has no assigned agent")
	}

	if err := s.errandRepo.SetCustomerRating(ctx, errand.ID, req.Rating, req.Review); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return apperr.AlreadyRated("you already rated the agent for this errand")
		}
		return apperr.Store(err, "failed to save rating")
	}

	return s.applyToSubject(ctx, errand, *errand.AgentID, errand.CustomerID, req.Rating)
}

// rateCustomer is the agent's side: the subject is the owning customer.
func (s *RatingService) rateCustomer(ctx context.Context, errand *models.Errand, req RateRequest) error {
	if errand.AgentRating != nil {
		return apperr.AlreadyRated("you already rated the customer for this errand")
	}

	if err := s.errandRepo.SetAgentRating(ctx, errand.ID, req.Rating, req.Review); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return apperr.AlreadyRated("you already rated the customer for this errand")
		}
		return apperr.Store(err, "failed to save rating")
	}

	return s.applyToSubject(ctx, errand, errand.CustomerID, *errand.AgentID, req.Rating)
}

func (s *RatingService) applyToSubject(ctx context.Context, errand *models.Errand, subjectID, raterID string, rating int) error {
	avg, count, err := s.userRepo.ApplyRating(ctx, subjectID, rating)
	if err != nil {
		return apperr.Store(err, "failed to update subject rating")
	}

	log.Info().
		Str("user_id", subjectID).
		Float64("average_rating", avg).
		Int("total_ratings", count).
		Msg("Rating applied")

	raterName := ""
	if rater, err := s.userRepo.GetByID(ctx, raterID); err == nil {
		raterName = rater.Name
	}
	s.notifier.RatingReceived(ctx, subjectID, raterName, rating, errand.Description, errand.ID)

	return nil
}
