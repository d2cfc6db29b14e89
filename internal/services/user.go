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

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// defaultRating is the average every user starts from before any
// rating has been received.
const defaultRating = 5.0

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	UpdateLocation(ctx context.Context, userID string, lat, lng float64) error
	UpdateLastAddress(ctx context.Context, userID, address, notes string) error
}

// UserService handles registration, login and caller identity.
// There are no passwords: login is a phone-number lookup, and the
// bearer token only names the caller so the service layer can
// re-validate ownership on every operation.
type UserService struct {
	userRepo  userStore
	jwtSecret string
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(userRepo userStore, jwtSecret string) *UserService {
	return &UserService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// RegisterRequest captures a new user's registration details.
type RegisterRequest struct {
	PhoneNumber string      `json:"phone_number"`
	Name        string      `json:"name"`
	Role        models.Role `json:"role"`
	LocationLat *float64    `json:"location_lat,omitempty"`
	LocationLng *float64    `json:"location_lng,omitempty"`
}

// Session is a user record plus the bearer token the client caches
// across restarts.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a new user and returns their session
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	name := strings.TrimSpace(req.Name)

	if phone == "" {
		return nil, apperr.InvalidInput("phone number is required")
	}
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	if !req.Role.Valid() {
		return nil, apperr.InvalidInput("unknown role %q", req.Role)
	}

	exists, err := s.userRepo.PhoneExists(ctx, phone)
	if err != nil {
		return nil, apperr.Store(err, "failed to check phone number")
	}
	if exists {
		return nil, apperr.InvalidInput("phone number %s is already registered", phone)
	}

	lat, lng := geo.FallbackLat, geo.FallbackLng
	if req.LocationLat != nil && req.LocationLng != nil {
		lat, lng = *req.LocationLat, *req.LocationLng
	}

	user := &models.User{
		ID:            uuid.New().String(),
		PhoneNumber:   phone,
		Name:          name,
		Role:          req.Role,
		LocationLat:   lat,
		LocationLng:   lng,
		AverageRating: defaultRating,
		Active:        true,
		CreatedAt:     s.now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Store(err, "failed to create user")
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, apperr.Store(err, "failed to generate token")
	}

	return &Session{User: user, Token: token}, nil
}

// Login looks up a user by phone number, refreshes their coordinates
// and returns a fresh session.
func (s *UserService) Login(ctx context.Context, phone string, lat, lng *float64) (*Session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, apperr.InvalidInput("phone number is required")
	}

	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("no user registered with %s", phone)
		}
		return nil, apperr.Store(err, "failed to look up user")
	}

	if lat != nil && lng != nil {
		if err := s.userRepo.UpdateLocation(ctx, user.ID, *lat, *lng); err != nil {
			return nil, apperr.Store(err, "failed to update location")
		}
		user.LocationLat, user.LocationLng = *lat, *lng
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, apperr.Store(err, "failed to generate token")
	}

	return &Session{User: user, Token: token}, nil
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Store(err, "failed to get user")
	}
	return user, nil
}

// SaveAddress persists a customer's last delivery address for
// pre-filling the next errand.
func (s *UserService) SaveAddress(ctx context.Context, userID, address, notes string) error {
	if strings.TrimSpace(address) == "" {
		return apperr.InvalidInput("delivery address is required")
	}
	if err := s.userRepo.UpdateLastAddress(ctx, userID, address, notes); err != nil {
		return apperr.Store(err, "failed to save address")
	}
	return nil
}

// GenerateJWT generates a signed bearer token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     s.now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a bearer token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}
