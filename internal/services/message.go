package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"

	"github.com/google/uuid"
)

type messageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByErrand(ctx context.Context, errandID string) ([]*models.Message, error)
}

type messageErrandStore interface {
	GetByID(ctx context.Context, id string) (*models.Errand, error)
}

type messageNotifier interface {
	NewMessage(ctx context.Context, recipientID, senderName, preview, errandID string)
}

// MessageService is the per-errand chat channel: an append-only log
// only the two participants can write to or read. Delivery to the
// other side is by client polling, not push.
type MessageService struct {
	messageRepo messageStore
	errandRepo  messageErrandStore
	notifier    messageNotifier
	now         func() time.Time
}

// NewMessageService creates a new message service
func NewMessageService(messageRepo messageStore, errandRepo messageErrandStore, notifier messageNotifier) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		errandRepo:  errandRepo,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *MessageService) loadErrandFor(ctx context.Context, errandID, userID string) (*models.Errand, error) {
	errand, err := s.errandRepo.GetByID(ctx, errandID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("errand not found")
		}
		return nil, apperr.Store(err, "failed to load errand")
	}
	if !isParticipant(errand, userID) {
		return nil, apperr.Unauthorized("only errand participants can use this chat")
	}
	return errand, nil
}

// Send appends a message to an errand's chat and notifies the other
// participant when the errand has both sides.
func (s *MessageService) Send(ctx context.Context, senderID, errandID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.InvalidInput("message text is required")
	}

	errand, err := s.loadErrandFor(ctx, errandID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		ErrandID:    errandID,
		SenderID:    senderID,
		MessageText: text,
		CreatedAt:   s.now(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, apperr.Store(err, "failed to send message")
	}

	if recipientID, senderName := otherParticipant(errand, senderID); recipientID != "" {
		s.notifier.NewMessage(ctx, recipientID, senderName, text, errandID)
	}

	return msg, nil
}

// History returns the full ordered chat log of an errand
func (s *MessageService) History(ctx context.Context, userID, errandID string) ([]*models.Message, error) {
	if _, err := s.loadErrandFor(ctx, errandID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByErrand(ctx, errandID)
	if err != nil {
		return nil, apperr.Store(err, "failed to load messages")
	}
	return messages, nil
}

// otherParticipant resolves the recipient of a message notification
// and the sender's display name from the errand's joined participants.
func otherParticipant(errand *models.Errand, senderID string) (recipientID, senderName string) {
	if errand.CustomerID == senderID {
		if errand.Customer != nil {
			senderName = errand.Customer.Name
		}
		if errand.AgentID != nil {
			recipientID = *errand.AgentID
		}
		return recipientID, senderName
	}
	if errand.Agent != nil {
		senderName = errand.Agent.Name
	}
	return errand.CustomerID, senderName
}
