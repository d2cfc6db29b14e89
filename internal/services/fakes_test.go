package services

import (
	"context"
	"fmt"
	"time"

	"pabili-backend/internal/models"
	"pabili-backend/internal/repository"
)

// fakeErrandStore keeps errands in memory and mirrors the guarded
// updates of the real repository, including the status preconditions.
type fakeErrandStore struct {
	errands map[string]*models.Errand
	failAll error
}

func newFakeErrandStore() *fakeErrandStore {
	return &fakeErrandStore{errands: make(map[string]*models.Errand)}
}

func (f *fakeErrandStore) Create(ctx context.Context, errand *models.Errand) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.errands[errand.ID] = errand
	return nil
}

func (f *fakeErrandStore) GetByID(ctx context.Context, id string) (*models.Errand, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	errand, ok := f.errands[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return errand, nil
}

func (f *fakeErrandStore) ListPosted(ctx context.Context) ([]*models.Errand, error) {
	var posted []*models.Errand
	for _, e := range f.errands {
		if e.Status == models.StatusPosted {
			posted = append(posted, e)
		}
	}
	return posted, nil
}

func (f *fakeErrandStore) ListByCustomer(ctx context.Context, customerID string) ([]*models.Errand, error) {
	var out []*models.Errand
	for _, e := range f.errands {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeErrandStore) ListByAgent(ctx context.Context, agentID string) ([]*models.Errand, error) {
	var out []*models.Errand
	for _, e := range f.errands {
		if e.AgentID != nil && *e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeErrandStore) Accept(ctx context.Context, errandID, agentID string, fee float64, at time.Time) error {
	e, ok := f.errands[errandID]
	if !ok || e.Status != models.StatusPosted || e.AgentID != nil {
		return repository.ErrNoRowsUpdated
	}
	e.AgentID = &agentID
	e.ServiceFee = &fee
	e.Status = models.StatusAccepted
	e.AcceptedAt = &at
	return nil
}

func (f *fakeErrandStore) SetItemPrices(ctx context.Context, errandID string, prices map[string]float64) error {
	e, ok := f.errands[errandID]
	if !ok || (e.Status != models.StatusAccepted && e.Status != models.StatusInProgress) {
		return repository.ErrNoRowsUpdated
	}
	e.ItemPrices = prices
	e.Status = models.StatusInProgress
	return nil
}

func (f *fakeErrandStore) Complete(ctx context.Context, errandID, receiptURL string, at time.Time) error {
	e, ok := f.errands[errandID]
	if !ok || (e.Status != models.StatusAccepted && e.Status != models.StatusInProgress) {
		return repository.ErrNoRowsUpdated
	}
	e.ReceiptPhotoURL = &receiptURL
	e.Status = models.StatusCompleted
	e.CompletedAt = &at
	return nil
}

func (f *fakeErrandStore) Cancel(ctx context.Context, errandID, cancelledBy, reason string, at time.Time) error {
	e, ok := f.errands[errandID]
	if !ok || (e.Status != models.StatusPosted && e.Status != models.StatusAccepted) {
		return repository.ErrNoRowsUpdated
	}
	e.Status = models.StatusCancelled
	e.CancelledBy = &cancelledBy
	e.CancelReason = &reason
	e.CancelledAt = &at
	return nil
}

func (f *fakeErrandStore) SetCustomerRating(ctx context.Context, errandID string, rating int, review string) error {
	e, ok := f.errands[errandID]
	if !ok || e.CustomerRating != nil {
		return repository.ErrNoRowsUpdated
	}
	e.CustomerRating = &rating
	e.CustomerReview = &review
	return nil
}

func (f *fakeErrandStore) SetAgentRating(ctx context.Context, errandID string, rating int, review string) error {
	e, ok := f.errands[errandID]
	if !ok || e.AgentRating != nil {
		return repository.ErrNoRowsUpdated
	}
	e.AgentRating = &rating
	e.AgentReview = &review
	return nil
}

func (f *fakeErrandStore) ListAll(ctx context.Context) ([]*models.Errand, error) {
	var out []*models.Errand
	for _, e := range f.errands {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeErrandStore) Delete(ctx context.Context, errandID string) error {
	if _, ok := f.errands[errandID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.errands, errandID)
	return nil
}

// fakeUserStore keeps users in memory and applies the same running
// mean the atomic store update computes.
type fakeUserStore struct {
	users          map[string]*models.User
	savedAddresses map[string]string
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{
		users:          make(map[string]*models.User),
		savedAddresses: make(map[string]string),
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	for _, u := range f.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) PhoneExists(ctx context.Context, phone string) (bool, error) {
	_, err := f.GetByPhone(ctx, phone)
	return err == nil, nil
}

func (f *fakeUserStore) UpdateLocation(ctx context.Context, userID string, lat, lng float64) error {
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.LocationLat, u.LocationLng = lat, lng
	return nil
}

func (f *fakeUserStore) UpdateLastAddress(ctx context.Context, userID, address, notes string) error {
	f.savedAddresses[userID] = address
	return nil
}

func (f *fakeUserStore) ApplyRating(ctx context.Context, userID string, rating int) (float64, int, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	u.AverageRating = (u.AverageRating*float64(u.TotalRatings) + float64(rating)) / float64(u.TotalRatings+1)
	u.TotalRatings++
	return u.AverageRating, u.TotalRatings, nil
}

func (f *fakeUserStore) IncrementErrandCount(ctx context.Context, userID string) error {
	if u, ok := f.users[userID]; ok {
		u.TotalErrands++
	}
	return nil
}

func (f *fakeUserStore) ListActiveAgents(ctx context.Context) ([]*models.User, error) {
	var agents []*models.User
	for _, u := range f.users {
		if u.Role == models.RoleAgent && u.Active {
			agents = append(agents, u)
		}
	}
	return agents, nil
}

func (f *fakeUserStore) ListAll(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserStore) Delete(ctx context.Context, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, userID)
	return nil
}

// notifierCall records one dispatched notification for assertions.
type notifierCall struct {
	kind        string
	recipientID string
	errandID    string
	rating      int
	text        string
}

// fakeNotifier records lifecycle, rating and message notifications.
type fakeNotifier struct {
	calls []notifierCall
}

func (f *fakeNotifier) ErrandAccepted(ctx context.Context, customerID, agentName, description, errandID string) {
	f.calls = append(f.calls, notifierCall{kind: "accepted", recipientID: customerID, errandID: errandID})
}

func (f *fakeNotifier) ErrandCompleted(ctx context.Context, customerID, agentName, errandID string) {
	f.calls = append(f.calls, notifierCall{kind: "completed", recipientID: customerID, errandID: errandID})
}

func (f *fakeNotifier) ErrandCancelled(ctx context.Context, agentID, customerName, description, errandID, reason string) {
	f.calls = append(f.calls, notifierCall{kind: "cancelled", recipientID: agentID, errandID: errandID, text: reason})
}

func (f *fakeNotifier) RatingReceived(ctx context.Context, userID, raterName string, rating int, description, errandID string) {
	f.calls = append(f.calls, notifierCall{kind: "rating", recipientID: userID, errandID: errandID, rating: rating})
}

func (f *fakeNotifier) NewMessage(ctx context.Context, recipientID, senderName, preview, errandID string) {
	f.calls = append(f.calls, notifierCall{kind: "message", recipientID: recipientID, errandID: errandID, text: preview})
}

func (f *fakeNotifier) byKind(kind string) []notifierCall {
	var out []notifierCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// fakeUploader returns deterministic URLs without touching storage.
type fakeUploader struct {
	uploads []string
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, category, filename, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := fmt.Sprintf("%s/%s", category, filename)
	f.uploads = append(f.uploads, key)
	return "https://storage.example.com/" + key, nil
}

// fakeMessageStore keeps chat messages in insertion order.
type fakeMessageStore struct {
	messages []*models.Message
}

func (f *fakeMessageStore) Create(ctx context.Context, msg *models.Message) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessageStore) ListByErrand(ctx context.Context, errandID string) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range f.messages {
		if m.ErrandID == errandID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeNotificationStore keeps notifications in memory; createErr makes
// every insert fail to exercise the fire-and-forget path.
type fakeNotificationStore struct {
	notifications []*models.Notification
	createErr     error
}

func (f *fakeNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) ListUnread(ctx context.Context, userID string) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	unread, _ := f.ListUnread(ctx, userID)
	return len(unread), nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, notificationID, userID string) error {
	for _, n := range f.notifications {
		if n.ID == notificationID && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotificationStore) MarkAllRead(ctx context.Context, userID string) error {
	for _, n := range f.notifications {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*models.Notification
	var swept int64
	for _, n := range f.notifications {
		if n.CreatedAt.Before(cutoff) {
			swept++
			continue
		}
		kept = append(kept, n)
	}
	f.notifications = kept
	return swept, nil
}
