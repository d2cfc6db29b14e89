package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RecentNotificationLimit caps the "all notifications" listing.
const RecentNotificationLimit = 20

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationService creates typed notices on lifecycle events and
// handles read/unread bookkeeping. Dispatch is fire-and-forget: a
// failed write is logged and swallowed so it can never block the
// lifecycle transition that triggered it.
type NotificationService struct {
	repo notificationStore
	now  func() time.Time
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo notificationStore) *NotificationService {
	return &NotificationService{repo: repo, now: time.Now}
}

// truncate shortens s to max runes with a trailing ellipsis, matching
// the preview style used across notification templates.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func (s *NotificationService) dispatch(ctx context.Context, userID, errandID string, typ models.NotificationType, title, message string) {
	n := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: s.now(),
	}
	if errandID != "" {
		n.ErrandID = &errandID
	}

	if err := s.repo.Create(ctx, n); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("type", string(typ)).
			Msg("Failed to create notification")
	}
}

// ErrandAccepted notifies the customer that an agent claimed their errand
func (s *NotificationService) ErrandAccepted(ctx context.Context, customerID, agentName, description, errandID string) {
	s.dispatch(ctx, customerID, errandID, models.NotificationErrandAccepted,
		"✅ Errand Accepted!",
		fmt.Sprintf("%s accepted your errand: %q", agentName, truncate(description, 40)),
	)
}

// ErrandCompleted notifies the customer that the receipt was uploaded
func (s *NotificationService) ErrandCompleted(ctx context.Context, customerID, agentName, errandID string) {
	s.dispatch(ctx, customerID, errandID, models.NotificationErrandCompleted,
		"🎉 Errand Completed!",
		fmt.Sprintf("%s completed your errand and uploaded the receipt.", agentName),
	)
}

// ErrandCancelled notifies the assigned agent that the customer cancelled
func (s *NotificationService) ErrandCancelled(ctx context.Context, agentID, customerName, description, errandID, reason string) {
	s.dispatch(ctx, agentID, errandID, models.NotificationErrandCancelled,
		"❌ Errand Cancelled",
		fmt.Sprintf("%s cancelled the errand: %q Reason: %s", customerName, truncate(description, 40), reason),
	)
}

// RatingReceived notifies a user about a rating they received
func (s *NotificationService) RatingReceived(ctx context.Context, userID, raterName string, rating int, description, errandID string) {
	stars := strings.Repeat("⭐", rating)
	s.dispatch(ctx, userID, errandID, models.NotificationRatingReceived,
		fmt.Sprintf("⭐ You received a %d-star rating!", rating),
		fmt.Sprintf("%s rated you %s for %q", raterName, stars, truncate(description, 30)),
	)
}

// NewMessage notifies the other chat participant about a new message
func (s *NotificationService) NewMessage(ctx context.Context, recipientID, senderName, preview, errandID string) {
	s.dispatch(ctx, recipientID, errandID, models.NotificationNewMessage,
		"💬 New Message",
		fmt.Sprintf("%s: %s", senderName, truncate(preview, 50)),
	)
}

// List returns a user's most recent notifications
func (s *NotificationService) List(ctx context.Context, userID string) ([]*models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, RecentNotificationLimit)
	if err != nil {
		return nil, apperr.Store(err, "failed to list notifications")
	}
	return notifications, nil
}

// ListUnread returns a user's unread notifications
func (s *NotificationService) ListUnread(ctx context.Context, userID string) ([]*models.Notification, error) {
	notifications, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, apperr.Store(err, "failed to list unread notifications")
	}
	return notifications, nil
}

// UnreadCount returns how many unread notifications a user has
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Store(err, "failed to count unread notifications")
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("notification not found")
		}
		return apperr.Store(err, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks all of the caller's notifications as read
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return apperr.Store(err, "failed to mark all notifications read")
	}
	return nil
}

// Cleanup removes notifications older than the retention window
func (s *NotificationService) Cleanup(ctx context.Context, ttl time.Duration) (int64, error) {
	swept, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, apperr.Store(err, "failed to clean up notifications")
	}
	return swept, nil
}
