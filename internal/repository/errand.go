package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pabili-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errandColumns = `e.id, e.customer_id, e.agent_id, e.description, e.items, e.item_prices,
		e.delivery_address, e.delivery_notes, e.items_photo_url, e.receipt_photo_url,
		e.service_fee, e.status, e.location_lat, e.location_lng,
		e.customer_rating, e.customer_review, e.agent_rating, e.agent_review,
		e.cancelled_by, e.cancel_reason,
		e.created_at, e.accepted_at, e.completed_at, e.cancelled_at`

const participantJoins = `
		LEFT JOIN users c ON c.id = e.customer_id
		LEFT JOIN users a ON a.id = e.agent_id`

const participantColumns = `,
		c.id, c.name, c.phone_number, c.average_rating,
		a.id, a.name, a.phone_number, a.average_rating`

// ErrandRepository handles database operations for errands
type ErrandRepository struct {
	db *pgxpool.Pool
}

// NewErrandRepository creates a new errand repository
func NewErrandRepository(db *pgxpool.Pool) *ErrandRepository {
	return &ErrandRepository{db: db}
}

func scanErrand(row pgx.Row, withParticipants bool) (*models.Errand, error) {
	var (
		e          models.Errand
		itemsJSON  []byte
		pricesJSON []byte
	)

	dest := []any{
		&e.ID, &e.CustomerID, &e.AgentID, &e.Description, &itemsJSON, &pricesJSON,
		&e.DeliveryAddress, &e.DeliveryNotes, &e.ItemsPhotoURL, &e.ReceiptPhotoURL,
		&e.ServiceFee, &e.Status, &e.LocationLat, &e.LocationLng,
		&e.CustomerRating, &e.CustomerReview, &e.AgentRating, &e.AgentReview,
		&e.CancelledBy, &e.CancelReason,
		&e.CreatedAt, &e.AcceptedAt, &e.CompletedAt, &e.CancelledAt,
	}

	var (
		custID, custName, custPhone *string
		custRating                  *float64
		agentID, agentName, agPhone *string
		agentRating                 *float64
	)
	if withParticipants {
		dest = append(dest,
			&custID, &custName, &custPhone, &custRating,
			&agentID, &agentName, &agPhone, &agentRating,
		)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &e.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items: %w", err)
		}
	}
	if len(pricesJSON) > 0 {
		if err := json.Unmarshal(pricesJSON, &e.ItemPrices); err != nil {
			return nil, fmt.Errorf("failed to decode item prices: %w", err)
		}
	}

	if custID != nil {
		e.Customer = &models.Participant{
			ID: *custID, Name: *custName, PhoneNumber: *custPhone, AverageRating: *custRating,
		}
	}
	if agentID != nil {
		e.Agent = &models.Participant{
			ID: *agentID, Name: *agentName, PhoneNumber: *agPhone, AverageRating: *agentRating,
		}
	}

	return &e, nil
}

func (r *ErrandRepository) queryErrands(ctx context.Context, query string, args ...any) ([]*models.Errand, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query errands: %w", err)
	}
	defer rows.Close()

	var errands []*models.Errand
	for rows.Next() {
		errand, err := scanErrand(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan errand: %w", err)
		}
		errands = append(errands, errand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating errands: %w", err)
	}
	return errands, nil
}

// Create creates a new errand
func (r *ErrandRepository) Create(ctx context.Context, errand *models.Errand) error {
	itemsJSON, err := json.Marshal(errand.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	query := `
		INSERT INTO errands (id, customer_id, description, items, delivery_address,
			delivery_notes, items_photo_url, status, location_lat, location_lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.Exec(ctx, query,
		errand.ID, errand.CustomerID, errand.Description, itemsJSON,
		errand.DeliveryAddress, errand.DeliveryNotes, errand.ItemsPhotoURL,
		errand.Status, errand.LocationLat, errand.LocationLng, errand.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create errand: %w", err)
	}
	return nil
}

// GetByID retrieves an errand by ID with both participants joined
func (r *ErrandRepository) GetByID(ctx context.Context, id string) (*models.Errand, error) {
	query := `SELECT ` + errandColumns + participantColumns + ` FROM errands e` +
		participantJoins + ` WHERE e.id = $1`
	errand, err := scanErrand(r.db.QueryRow(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get errand: %w", err)
	}
	return errand, nil
}

// ListPosted retrieves unassigned errands, newest first
func (r *ErrandRepository) ListPosted(ctx context.Context) ([]*models.Errand, error) {
	query := `SELECT ` + errandColumns + participantColumns + ` FROM errands e` +
		participantJoins + ` WHERE e.status = 'posted' ORDER BY e.created_at DESC`
	return r.queryErrands(ctx, query)
}

// ListByCustomer retrieves a customer's errands, newest first
func (r *ErrandRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Errand, error) {
	query := `SELECT ` + errandColumns + participantColumns + ` FROM errands e` +
		participantJoins + ` WHERE e.customer_id = $1 ORDER BY e.created_at DESC`
	return r.queryErrands(ctx, query, customerID)
}

// ListByAgent retrieves errands assigned to an agent, newest first
func (r *ErrandRepository) ListByAgent(ctx context.Context, agentID string) ([]*models.Errand, error) {
	query := `SELECT ` + errandColumns + participantColumns + ` FROM errands e` +
		participantJoins + ` WHERE e.agent_id = $1 ORDER BY e.created_at DESC`
	return r.queryErrands(ctx, query, agentID)
}

// ListAll retrieves every errand, newest first
func (r *ErrandRepository) ListAll(ctx context.Context) ([]*models.Errand, error) {
	query := `SELECT ` + errandColumns + participantColumns + ` FROM errands e` +
		participantJoins + ` ORDER BY e.created_at DESC`
	return r.queryErrands(ctx, query)
}

// Accept assigns an agent and service fee to a posted errand. The
// status guard makes two racing agents resolve to exactly one winner;
// the loser gets ErrNoRowsUpdated.
func (r *ErrandRepository) Accept(ctx context.Context, errandID, agentID string, fee float64, at time.Time) error {
	query := `
		UPDATE errands
		SET agent_id = $1, service_fee = $2, status = 'accepted', accepted_at = $3
		WHERE id = $4 AND status = 'posted' AND agent_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, agentID, fee, at, errandID)
	if err != nil {
		return fmt.Errorf("failed to accept errand: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// SetItemPrices replaces the per-item price map and promotes the
// errand to in_progress. Guarded to the two working statuses.
func (r *ErrandRepository) SetItemPrices(ctx context.Context, errandID string, prices map[string]float64) error {
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("failed to encode item prices: %w", err)
	}

	query := `
		UPDATE errands
		SET item_prices = $1, status = 'in_progress'
		WHERE id = $2 AND status IN ('accepted', 'in_progress')
	`
	result, err := r.db.Exec(ctx, query, pricesJSON, errandID)
	if err != nil {
		return fmt.Errorf("failed to set item prices: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// Complete stores the receipt photo and marks the errand completed
func (r *ErrandRepository) Complete(ctx context.Context, errandID, receiptURL string, at time.Time) error {
	query := `
		UPDATE errands
		SET status = 'completed', receipt_photo_url = $1, completed_at = $2
		WHERE id = $3 AND status IN ('accepted', 'in_progress')
	`
	result, err := r.db.Exec(ctx, query, receiptURL, at, errandID)
	if err != nil {
		return fmt.Errorf("failed to complete errand: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// Cancel marks the errand cancelled, recording actor and reason
func (r *ErrandRepository) Cancel(ctx context.Context, errandID, cancelledBy, reason string, at time.Time) error {
	query := `
		UPDATE errands
		SET status = 'cancelled', cancelled_by = $1, cancel_reason = $2, cancelled_at = $3
		WHERE id = $4 AND status IN ('posted', 'accepted')
	`
	result, err := r.db.Exec(ctx, query, cancelledBy, reason, at, errandID)
	if err != nil {
		return fmt.Errorf("failed to cancel errand: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// SetCustomerRating records the customer's one-shot rating of the
// agent. The NULL guard rejects a second attempt at the store level.
func (r *ErrandRepository) SetCustomerRating(ctx context.Context, errandID string, rating int, review string) error {
	query := `
		UPDATE errands
		SET customer_rating = $1, customer_review = $2
		WHERE id = $3 AND customer_rating IS NULL
	`
	result, err := r.db.Exec(ctx, query, rating, review, errandID)
	if err != nil {
		return fmt.Errorf("failed to set customer rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// SetAgentRating records the agent's one-shot rating of the customer
func (r *ErrandRepository) SetAgentRating(ctx context.Context, errandID string, rating int, review string) error {
	query := `
		UPDATE errands
		SET agent_rating = $1, agent_review = $2
		WHERE id = $3 AND agent_rating IS NULL
	`
	result, err := r.db.Exec(ctx, query, rating, review, errandID)
	if err != nil {
		return fmt.Errorf("failed to set agent rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

// Delete removes an errand permanently
func (r *ErrandRepository) Delete(ctx context.Context, errandID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM errands WHERE id = $1`, errandID)
	if err != nil {
		return fmt.Errorf("failed to delete errand: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
