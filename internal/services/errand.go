package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/geo"
	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type errandStore interface {
	Create(ctx context.Context, errand *models.Errand) error
	GetByID(ctx context.Context, id string) (*models.Errand, error)
	ListPosted(ctx context.Context) ([]*models.Errand, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Errand, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.Errand, error)
	Accept(ctx context.Context, errandID, agentID string, fee float64, at time.Time) error
	SetItemPrices(ctx context.Context, errandID string, prices map[string]float64) error
	Complete(ctx context.Context, errandID, receiptURL string, at time.Time) error
	Cancel(ctx context.Context, errandID, cancelledBy, reason string, at time.Time) error
}

type errandUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastAddress(ctx context.Context, userID, address, notes string) error
	ListActiveAgents(ctx context.Context) ([]*models.User, error)
	IncrementErrandCount(ctx context.Context, userID string) error
}

type lifecycleNotifier interface {
	ErrandAccepted(ctx context.Context, customerID, agentName, description, errandID string)
	ErrandCompleted(ctx context.Context, customerID, agentName, errandID string)
	ErrandCancelled(ctx context.Context, agentID, customerName, description, errandID, reason string)
}

type photoUploader interface {
	Upload(ctx context.Context, category, filename, contentType string, data []byte) (string, error)
}

// ErrandService owns the errand lifecycle: creation, acceptance,
// pricing, completion, cancellation and proximity listings. Every
// transition is re-validated here against the current store state, and
// the guarded updates in the repository make the accept/complete races
// resolve to a single winner.
type ErrandService struct {
	errandRepo errandStore
	userRepo   errandUserStore
	notifier   lifecycleNotifier
	uploader   photoUploader
	now        func() time.Time
}

// NewErrandService creates a new errand service
func NewErrandService(errandRepo errandStore, userRepo errandUserStore, notifier lifecycleNotifier, uploader photoUploader) *ErrandService {
	return &ErrandService{
		errandRepo: errandRepo,
		userRepo:   userRepo,
		notifier:   notifier,
		uploader:   uploader,
		now:        time.Now,
	}
}

// ItemInput is one requested item on a new errand.
type ItemInput struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// PhotoUpload carries raw photo bytes from a multipart request.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreateErrandRequest captures a customer's new shopping request.
type CreateErrandRequest struct {
	Items           []ItemInput `json:"items"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryNotes   string      `json:"delivery_notes,omitempty"`
	LocationLat     *float64    `json:"location_lat,omitempty"`
	LocationLng     *float64    `json:"location_lng,omitempty"`

	// ItemsPhoto is optional and attached by the multipart handler.
	ItemsPhoto *PhotoUpload `json:"-"`
}

// describeItems derives the one-line errand description shown in
// listings and notification previews: "2x bread (whole wheat), 1x milk".
func describeItems(items []models.Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		part := fmt.Sprintf("%dx %s", item.Quantity, item.Name)
		if item.Notes != "" {
			part += fmt.Sprintf(" (%s)", item.Notes)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// Create posts a new errand for a customer
func (s *ErrandService) Create(ctx context.Context, customerID string, req CreateErrandRequest) (*models.Errand, error) {
	if len(req.Items) == 0 {
		return nil, apperr.InvalidInput("at least one item is required")
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, apperr.InvalidInput("delivery address is required")
	}

	items := make([]models.Item, 0, len(req.Items))
	for i, in := range req.Items {
		if strings.TrimSpace(in.Name) == "" {
			return nil, apperr.InvalidInput("item %d has no name", i+1)
		}
		if in.Quantity < 1 {
			return nil, apperr.InvalidInput("item %q needs a quantity of at least 1", in.Name)
		}
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		items = append(items, models.Item{
			ID:       id,
			Name:     strings.TrimSpace(in.Name),
			Quantity: in.Quantity,
			Notes:    strings.TrimSpace(in.Notes),
		})
	}

	customer, err := s.userRepo.GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("customer not found")
		}
		return nil, apperr.Store(err, "failed to load customer")
	}

	lat, lng := customer.LocationLat, customer.LocationLng
	if req.LocationLat != nil && req.LocationLng != nil {
		lat, lng = *req.LocationLat, *req.LocationLng
	}

	var itemsPhotoURL *string
	if req.ItemsPhoto != nil {
		url, err := s.uploader.Upload(ctx, PhotoCategoryItems, req.ItemsPhoto.Filename, req.ItemsPhoto.ContentType, req.ItemsPhoto.Data)
		if err != nil {
			return nil, err
		}
		itemsPhotoURL = &url
	}

	errand := &models.Errand{
		ID:              uuid.New().String(),
		CustomerID:      customerID,
		Description:     describeItems(items),
		Items:           items,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryNotes:   strings.TrimSpace(req.DeliveryNotes),
		ItemsPhotoURL:   itemsPhotoURL,
		Status:          models.StatusPosted,
		LocationLat:     lat,
		LocationLng:     lng,
		CreatedAt:       s.now(),
	}

	if err := s.errandRepo.Create(ctx, errand); err != nil {
		return nil, apperr.Store(err, "failed to create errand")
	}

	// Convenience for the next errand; a failure here does not undo
	// the already-posted errand.
	if err := s.userRepo.UpdateLastAddress(ctx, customerID, errand.DeliveryAddress, errand.DeliveryNotes); err != nil {
		log.Warn().Err(err).Str("user_id", customerID).Msg("Failed to save delivery address")
	}

	return errand, nil
}

func (s *ErrandService) getErrand(ctx context.Context, errandID string) (*models.Errand, error) {
	errand, err := s.errandRepo.GetByID(ctx, errandID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("errand not found")
		}
		return nil, apperr.Store(err, "failed to load errand")
	}
	return errand, nil
}

// Accept assigns the errand to an agent for the given service fee.
// The fee is set exactly once here and is immutable afterwards.
func (s *ErrandService) Accept(ctx context.Context, agentID, errandID string, fee float64) (*models.Errand, error) {
	if fee <= 0 {
		return nil, apperr.InvalidInput("service fee must be greater than zero")
	}

	agent, err := s.userRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, apperr.Store(err, "failed to load agent")
	}
	if agent.Role != models.RoleAgent {
		return nil, apperr.Unauthorized("only agents can accept errands")
	}

	errand, err := s.getErrand(ctx, errandID)
	if err != nil {
		return nil, err
	}

	if err := s.errandRepo.Accept(ctx, errandID, agentID, fee, s.now()); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return nil, apperr.InvalidTransition("errand is no longer available (status %s)", errand.Status)
		}
		return nil, apperr.Store(err, "failed to accept errand")
	}

	s.notifier.ErrandAccepted(ctx, errand.CustomerID, agent.Name, errand.Description, errandID)

	return s.getErrand(ctx, errandID)
}

// SetItemPrice records the purchase price of one item and promotes the
// errand to in_progress. Not all items need to be priced; unpriced
// items count as zero in the total.
func (s *ErrandService) SetItemPrice(ctx context.Context, agentID, errandID, itemID string, price float64) (*models.Errand, error) {
	if price < 0 {
		return nil, apperr.InvalidInput("item price cannot be negative")
	}

	errand, err := s.getErrand(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.AgentID == nil || *errand.AgentID != agentID {
		return nil, apperr.Unauthorized("only the assigned agent can set item prices")
	}
	if errand.Status != models.StatusAccepted && errand.Status != models.StatusInProgress {
		return nil, apperr.InvalidTransition("cannot price items while errand is %s", errand.Status)
	}

	found := false
	for _, item := range errand.Items {
		if item.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.InvalidInput("item %s is not on this errand", itemID)
	}

	prices := make(map[string]float64, len(errand.ItemPrices)+1)
	for id, p := range errand.ItemPrices {
		prices[id] = p
	}
	prices[itemID] = price

	if err := s.errandRepo.SetItemPrices(ctx, errandID, prices); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return nil, apperr.InvalidTransition("errand moved out of a priceable status")
		}
		return nil, apperr.Store(err, "failed to save item prices")
	}

	return s.getErrand(ctx, errandID)
}

// Complete uploads the receipt photo and marks the errand completed
func (s *ErrandService) Complete(ctx context.Context, agentID, errandID string, receipt PhotoUpload) (*models.Errand, error) {
	errand, err := s.getErrand(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.AgentID == nil || *errand.AgentID != agentID {
		return nil, apperr.Unauthorized("only the assigned agent can complete an errand")
	}
	if errand.Status != models.StatusAccepted && errand.Status != models.StatusInProgress {
		return nil, apperr.InvalidTransition("cannot complete an errand that is %s", errand.Status)
	}

	receiptURL, err := s.uploader.Upload(ctx, PhotoCategoryReceipts, receipt.Filename, receipt.ContentType, receipt.Data)
	if err != nil {
		return nil, err
	}

	if err := s.errandRepo.Complete(ctx, errandID, receiptURL, s.now()); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return nil, apperr.InvalidTransition("errand moved out of a completable status")
		}
		return nil, apperr.Store(err, "failed to complete errand")
	}

	if err := s.userRepo.IncrementErrandCount(ctx, agentID); err != nil {
		log.Warn().Err(err).Str("user_id", agentID).Msg("Failed to increment errand count")
	}

	agentName := ""
	if errand.Agent != nil {
		agentName = errand.Agent.Name
	}
	s.notifier.ErrandCompleted(ctx, errand.CustomerID, agentName, errandID)

	return s.getErrand(ctx, errandID)
}

// Cancel lets the owning customer cancel a posted or accepted errand
func (s *ErrandService) Cancel(ctx context.Context, customerID, errandID, reason string) (*models.Errand, error) {
	errand, err := s.getErrand(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.CustomerID != customerID {
		return nil, apperr.Unauthorized("only the owning customer can cancel an errand")
	}
	if errand.Status != models.StatusPosted && errand.Status != models.StatusAccepted {
		return nil, apperr.InvalidTransition("cannot cancel an errand that is %s", errand.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "No reason provided"
	}

	if err := s.errandRepo.Cancel(ctx, errandID, customerID, reason, s.now()); err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return nil, apperr.InvalidTransition("errand moved out of a cancellable status")
		}
		return nil, apperr.Store(err, "failed to cancel errand")
	}

	if errand.AgentID != nil {
		customerName := ""
		if errand.Customer != nil {
			customerName = errand.Customer.Name
		}
		s.notifier.ErrandCancelled(ctx, *errand.AgentID, customerName, errand.Description, errandID, reason)
	}

	return s.getErrand(ctx, errandID)
}

// ListNearby returns the posted errands within the visibility radius of
// the agent, with the distance attached to each entry. Order is by
// recency, not distance; the listing keeps the newest request on top
// even when a closer one exists.
func (s *ErrandService) ListNearby(ctx context.Context, agentID string) ([]*models.Errand, error) {
	agent, err := s.userRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, apperr.Store(err, "failed to load agent")
	}
	if agent.Role != models.RoleAgent {
		return nil, apperr.Unauthorized("only agents can browse nearby errands")
	}

	posted, err := s.errandRepo.ListPosted(ctx)
	if err != nil {
		return nil, apperr.Store(err, "failed to list posted errands")
	}

	nearby := make([]*models.Errand, 0, len(posted))
	for _, errand := range posted {
		if errand.LocationLat == 0 && errand.LocationLng == 0 {
			continue
		}
		distance := geo.Distance(agent.LocationLat, agent.LocationLng, errand.LocationLat, errand.LocationLng)
		if distance > geo.ErrandRadiusKm {
			continue
		}
		d := distance
		errand.DistanceKm = &d
		nearby = append(nearby, errand)
	}
	return nearby, nil
}

// NearbyAgentCount counts the active agents within the informational
// radius of a customer. This never filters what anyone can see.
func (s *ErrandService) NearbyAgentCount(ctx context.Context, customerID string) (int, error) {
	customer, err := s.userRepo.GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperr.NotFound("user not found")
		}
		return 0, apperr.Store(err, "failed to load user")
	}

	agents, err := s.userRepo.ListActiveAgents(ctx)
	if err != nil {
		return 0, apperr.Store(err, "failed to list agents")
	}

	count := 0
	for _, agent := range agents {
		if agent.LocationLat == 0 && agent.LocationLng == 0 {
			continue
		}
		if geo.Distance(customer.LocationLat, customer.LocationLng, agent.LocationLat, agent.LocationLng) <= geo.AgentRadiusKm {
			count++
		}
	}
	return count, nil
}

// ErrandGroups is a user's errands split by lifecycle stage.
type ErrandGroups struct {
	Ongoing   []*models.Errand `json:"ongoing"`
	Completed []*models.Errand `json:"completed"`
	Cancelled []*models.Errand `json:"cancelled"`
}

func groupErrands(errands []*models.Errand) *ErrandGroups {
	groups := &ErrandGroups{}
	for _, e := range errands {
		switch e.Status {
		case models.StatusCompleted:
			groups.Completed = append(groups.Completed, e)
		case models.StatusCancelled:
			groups.Cancelled = append(groups.Cancelled, e)
		default:
			groups.Ongoing = append(groups.Ongoing, e)
		}
	}
	return groups
}

// ListMine returns the caller's errands grouped by stage: owned
// errands for customers, assigned errands for agents.
func (s *ErrandService) ListMine(ctx context.Context, userID string) (*ErrandGroups, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Store(err, "failed to load user")
	}

	var errands []*models.Errand
	switch user.Role {
	case models.RoleAgent:
		errands, err = s.errandRepo.ListByAgent(ctx, userID)
	default:
		errands, err = s.errandRepo.ListByCustomer(ctx, userID)
	}
	if err != nil {
		return nil, apperr.Store(err, "failed to list errands")
	}

	return groupErrands(errands), nil
}

// Get returns one errand, visible only to its participants
func (s *ErrandService) Get(ctx context.Context, userID, errandID string) (*models.Errand, error) {
	errand, err := s.getErrand(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(errand, userID) {
		return nil, apperr.Unauthorized("you are not a participant of this errand")
	}
	return errand, nil
}

// Totals is the cost breakdown of an errand.
type Totals struct {
	Items   float64 `json:"items"`
	Service float64 `json:"service"`
	Total   float64 `json:"total"`
}

// TotalCost computes the payable total for an errand: the sum of
// priced items times their quantities plus the service fee. Items
// without a recorded price count as zero. Pure and safe to call
// repeatedly as prices change.
func TotalCost(items []models.Item, prices map[string]float64, serviceFee float64) Totals {
	var itemTotal float64
	for _, item := range items {
		itemTotal += prices[item.ID] * float64(item.Quantity)
	}
	return Totals{
		Items:   itemTotal,
		Service: serviceFee,
		Total:   itemTotal + serviceFee,
	}
}

// Total returns the cost breakdown of one errand for a participant
func (s *ErrandService) Total(ctx context.Context, userID, errandID string) (*Totals, error) {
	errand, err := s.Get(ctx, userID, errandID)
	if err != nil {
		return nil, err
	}
	fee := 0.0
	if errand.ServiceFee != nil {
		fee = *errand.ServiceFee
	}
	totals := TotalCost(errand.Items, errand.ItemPrices, fee)
	return &totals, nil
}

// Earnings summarises an agent's service fees.
type Earnings struct {
	Total     float64          `json:"total"`
	Pending   float64          `json:"pending"`
	Completed int              `json:"completed"`
	History   []*models.Errand `json:"history"`
}

// Earnings returns an agent's fee totals and completed history
func (s *ErrandService) Earnings(ctx context.Context, agentID string) (*Earnings, error) {
	errands, err := s.errandRepo.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, apperr.Store(err, "failed to list errands")
	}

	earnings := &Earnings{History: []*models.Errand{}}
	for _, e := range errands {
		fee := 0.0
		if e.ServiceFee != nil {
			fee = *e.ServiceFee
		}
		switch e.Status {
		case models.StatusCompleted:
			earnings.Total += fee
			earnings.Completed++
			earnings.History = append(earnings.History, e)
		case models.StatusAccepted, models.StatusInProgress:
			earnings.Pending += fee
		}
	}
	return earnings, nil
}

// isParticipant reports whether userID is the errand's customer or its
// assigned agent.
func isParticipant(errand *models.Errand, userID string) bool {
	if errand.CustomerID == userID {
		return true
	}
	return errand.AgentID != nil && *errand.AgentID == userID
}
