package services

import (
	"context"
	"errors"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"
)

// platformShare is the marketplace's cut of completed service fees,
// reported in admin stats.
const platformShare = 0.15

type adminUserStore interface {
	ListAll(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, userID string) error
}

type adminErrandStore interface {
	ListAll(ctx context.Context) ([]*models.Errand, error)
	Delete(ctx context.Context, errandID string) error
}

// AdminService provides the marketplace overview and hard deletes.
type AdminService struct {
	userRepo   adminUserStore
	errandRepo adminErrandStore
}

// NewAdminService creates a new admin service
func NewAdminService(userRepo adminUserStore, errandRepo adminErrandStore) *AdminService {
	return &AdminService{userRepo: userRepo, errandRepo: errandRepo}
}

// Stats is the marketplace overview shown on the admin dashboard.
type Stats struct {
	TotalUsers       int     `json:"total_users"`
	TotalAgents      int     `json:"total_agents"`
	TotalCustomers   int     `json:"total_customers"`
	TotalErrands     int     `json:"total_errands"`
	ActiveErrands    int     `json:"active_errands"`
	CompletedErrands int     `json:"completed_errands"`
	CancelledErrands int     `json:"cancelled_errands"`
	TotalRevenue     float64 `json:"total_revenue"`
}

// GetStats computes the marketplace overview
func (s *AdminService) GetStats(ctx context.Context) (*Stats, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store(err, "failed to list users")
	}
	errands, err := s.errandRepo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store(err, "failed to list errands")
	}

	stats := &Stats{TotalUsers: len(users), TotalErrands: len(errands)}
	for _, u := range users {
		switch u.Role {
		case models.RoleAgent:
			stats.TotalAgents++
		case models.RoleCustomer:
			stats.TotalCustomers++
		}
	}
	for _, e := range errands {
		switch e.Status {
		case models.StatusCompleted:
			stats.CompletedErrands++
			if e.ServiceFee != nil {
				stats.TotalRevenue += *e.ServiceFee * platformShare
			}
		case models.StatusCancelled:
			stats.CancelledErrands++
		default:
			stats.ActiveErrands++
		}
	}
	return stats, nil
}

// ListUsers returns every user, newest first
func (s *AdminService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store(err, "failed to list users")
	}
	return users, nil
}

// ListErrands returns every errand, newest first
func (s *AdminService) ListErrands(ctx context.Context) ([]*models.Errand, error) {
	errands, err := s.errandRepo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store(err, "failed to list errands")
	}
	return errands, nil
}

// DeleteUser removes a user permanently
func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Store(err, "failed to delete user")
	}
	return nil
}

// DeleteErrand removes an errand permanently
func (s *AdminService) DeleteErrand(ctx context.Context, errandID string) error {
	if err := s.errandRepo.Delete(ctx, errandID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("errand not found")
		}
		return apperr.Store(err, "failed to delete errand")
	}
	return nil
}
