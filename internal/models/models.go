package models

import "time"

// Role identifies what a user can do in the marketplace.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Status is the lifecycle state of an errand.
type Status string

const (
	StatusPosted     Status = "posted"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NotificationType tags a notification with the event that produced it.
type NotificationType string

const (
	NotificationErrandAccepted  NotificationType = "errand_accepted"
	NotificationErrandCompleted NotificationType = "errand_completed"
	NotificationErrandCancelled NotificationType = "errand_cancelled"
	NotificationRatingReceived  NotificationType = "rating_received"
	NotificationNewMessage      NotificationType = "new_message"
)

// User represents a registered customer, agent or admin.
type User struct {
	ID                  string    `json:"id"`
	PhoneNumber         string    `json:"phone_number"`
	Name                string    `json:"name"`
	Role                Role      `json:"role"`
	LocationLat         float64   `json:"location_lat"`
	LocationLng         float64   `json:"location_lng"`
	AverageRating       float64   `json:"average_rating"`
	TotalRatings        int       `json:"total_ratings"`
	TotalErrands        int       `json:"total_errands"`
	LastDeliveryAddress *string   `json:"last_delivery_address,omitempty"`
	LastDeliveryNotes   *string   `json:"last_delivery_notes,omitempty"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
}

// Item is a single entry on an errand's shopping list. The ID is
// generated by the client when the list is composed and keys the
// per-item price map.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// Errand is a customer's shopping request, optionally assigned to an
// agent who buys and delivers the items for a service fee.
type Errand struct {
	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	AgentID         *string            `json:"agent_id,omitempty"`
	Description     string             `json:"description"`
	Items           []Item             `json:"items"`
	ItemPrices      map[string]float64 `json:"item_prices,omitempty"`
	DeliveryAddress string             `json:"delivery_address"`
	DeliveryNotes   string             `json:"delivery_notes,omitempty"`
	ItemsPhotoURL   *string            `json:"items_photo_url,omitempty"`
	ReceiptPhotoURL *string            `json:"receipt_photo_url,omitempty"`
	ServiceFee      *float64           `json:"service_fee,omitempty"`
	Status          Status             `json:"status"`
	LocationLat     float64            `json:"location_lat"`
	LocationLng     float64            `json:"location_lng"`
	CustomerRating  *int               `json:"customer_rating,omitempty"`
	CustomerReview  *string            `json:"customer_review,omitempty"`
	AgentRating     *int               `json:"agent_rating,omitempty"`
	AgentReview     *string            `json:"agent_review,omitempty"`
	CancelledBy     *string            `json:"cancelled_by,omitempty"`
	CancelReason    *string            `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	AcceptedAt      *time.Time         `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`

	// DistanceKm is attached by nearby listings and never persisted.
	DistanceKm *float64 `json:"distance_km,omitempty"`

	// Customer and Agent are joined participant views for listings.
	Customer *Participant `json:"customer,omitempty"`
	Agent    *Participant `json:"agent,omitempty"`
}

// Participant is the slim user view embedded in errand listings so
// the two sides can see who they are dealing with.
type Participant struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PhoneNumber   string  `json:"phone_number"`
	AverageRating float64 `json:"average_rating"`
}

// Message is one chat entry on an errand. Immutable once created.
type Message struct {
	ID          string    `json:"id"`
	ErrandID    string    `json:"errand_id"`
	SenderID    string    `json:"sender_id"`
	MessageText string    `json:"message_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is an in-app notice delivered to one recipient.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	ErrandID  *string          `json:"errand_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
