package repository

import (
	"context"
	"errors"
	"fmt"

	"pabili-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrNoRowsUpdated is returned when a conditional update matched no
// row, meaning the guarded precondition no longer holds.
var ErrNoRowsUpdated = errors.New("no rows updated")

const userColumns = `id, phone_number, name, role, location_lat, location_lng,
		average_rating, total_ratings, total_errands,
		last_delivery_address, last_delivery_notes, active, created_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.PhoneNumber, &user.Name, &user.Role,
		&user.LocationLat, &user.LocationLng,
		&user.AverageRating, &user.TotalRatings, &user.TotalErrands,
		&user.LastDeliveryAddress, &user.LastDeliveryNotes,
		&user.Active, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, phone_number, name, role, location_lat, location_lng,
			average_rating, total_ratings, total_errands,
			last_delivery_address, last_delivery_notes, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.PhoneNumber, user.Name, user.Role,
		user.LocationLat, user.LocationLng,
		user.AverageRating, user.TotalRatings, user.TotalErrands,
		user.LastDeliveryAddress, user.LastDeliveryNotes,
		user.Active, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByPhone retrieves a user by phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}
	return user, nil
}

// PhoneExists checks if a phone number is already registered
func (r *UserRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, phone).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check phone existence: %w", err)
	}
	return exists, nil
}

// UpdateLocation refreshes a user's last known coordinates
func (r *UserRepository) UpdateLocation(ctx context.Context, userID string, lat, lng float64) error {
	query := `UPDATE users SET location_lat = $1, location_lng = $2 WHERE id = $3`
	_, err := r.db.Exec(ctx, query, lat, lng, userID)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

// UpdateLastAddress saves a customer's last delivery address and notes
func (r *UserRepository) UpdateLastAddress(ctx context.Context, userID, address, notes string) error {
	query := `UPDATE users SET last_delivery_address = $1, last_delivery_notes = $2 WHERE id = $3`
	_, err := r.db.Exec(ctx, query, address, notes, userID)
	if err != nil {
		return fmt.Errorf("failed to update last address: %w", err)
	}
	return nil
}

// ApplyRating folds one rating into the subject's running average with
// a single atomic update, so concurrent ratings cannot lose a count.
func (r *UserRepository) ApplyRating(ctx context.Context, userID string, rating int) (float64, int, error) {
	query := `
		UPDATE users
		SET average_rating = (average_rating * total_ratings + $1) / (total_ratings + 1),
		    total_ratings = total_ratings + 1
		WHERE id = $2
		RETURNING average_rating, total_ratings
	`
	var avg float64
	var count int
	err := r.db.QueryRow(ctx, query, rating, userID).Scan(&avg, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("failed to apply rating: %w", err)
	}
	return avg, count, nil
}

// IncrementErrandCount bumps a user's completed errand counter
func (r *UserRepository) IncrementErrandCount(ctx context.Context, userID string) error {
	query := `UPDATE users SET total_errands = total_errands + 1 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment errand count: %w", err)
	}
	return nil
}

// ListActiveAgents retrieves all active agents for proximity counting
func (r *UserRepository) ListActiveAgents(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'agent' AND active`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.User
	for rows.Next() {
		agent, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// ListAll retrieves every user, newest first
func (r *UserRepository) ListAll(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Delete removes a user permanently
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
