package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	codeLength = 6
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	jwtExpDays = 365
)

// UserStore is the persistence of user accounts
type UserStore interface {
	Create(ctx context.Context, user *models.User, p models.Person) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByCode(ctx context.Context, code string) (*models.User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateCode(ctx context.Context, userID, code string) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// UserService handles user-related business logic
type UserService struct {
	userRepo        UserStore
	jwtSecret       string
	defaultInterval time.Duration
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, jwtSecret string, defaultInterval time.Duration) *UserService {
	return &UserService{
		userRepo:        userRepo,
		jwtSecret:       jwtSecret,
		defaultInterval: defaultInterval,
	}
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// GenerateUniqueCode generates a unique 6-character QR code
func (s *UserService) GenerateUniqueCode(ctx context.Context) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code := generateCode()
		exists, err := s.userRepo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

// generateCode generates a random 6-character code
func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeCode uppercases a scanned code and checks its shape
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return "", checkin.ErrInvalidIdentifier
	}
	for _, c := range code {
		if !strings.ContainsRune(codeChars, c) {
			return "", checkin.ErrInvalidIdentifier
		}
	}
	return code, nil
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken validates a JWT token and returns the user ID
func (s *UserService) VerifyToken(_ context.Context, tokenString string) (string, error) {
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

// CreateUser creates a new user. When id is empty a new id and an API token
// are issued; otherwise id comes from an external identity provider and an
// existing account is returned as is.
func (s *UserService) CreateUser(ctx context.Context, id string, req CreateUserRequest) (*models.User, error) {
	issueToken := id == ""
	if issueToken {
		id = uuid.New().String()
	} else if existing, err := s.userRepo.GetByID(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, checkin.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	code, err := s.GenerateUniqueCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	user := &models.User{
		ID:        id,
		Code:      code,
		CreatedAt: time.Now(),
	}

	if issueToken {
		token, err := s.GenerateJWT(id)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		user.Token = token
	}

	profile := models.Person{
		ID:                   id,
		Name:                 strings.TrimSpace(req.Name),
		PhoneNumber:          strings.TrimSpace(req.PhoneNumber),
		LastCheckedIn:        user.CreatedAt,
		CheckInInterval:      s.defaultInterval,
		NotificationsEnabled: true,
		Notify30MinBefore:    true,
	}

	if err := s.userRepo.Create(ctx, user, profile); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser returns a user's account
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// RegenerateCode replaces the user's QR code, invalidating the old one
func (s *UserService) RegenerateCode(ctx context.Context, userID string) (string, error) {
	code, err := s.GenerateUniqueCode(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	if err := s.userRepo.UpdateCode(ctx, userID, code); err != nil {
		return "", err
	}
	return code, nil
}

// ResolveCode maps a scanned QR code to the user id behind it
func (s *UserService) ResolveCode(ctx context.Context, code string) (string, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return "", err
	}

	user, err := s.userRepo.GetByCode(ctx, code)
	if errors.Is(err, checkin.ErrNotFound) {
		return "", checkin.ErrInvalidIdentifier
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve code: %w", err)
	}
	return user.ID, nil
}

// UpdatePushToken stores the device token used for reminders. An empty token
// unregisters the device.
func (s *UserService) UpdatePushToken(ctx context.Context, userID, token string) error {
	var pushToken *string
	if token = strings.TrimSpace(token); token != "" {
		pushToken = &token
	}
	return s.userRepo.UpdatePushToken(ctx, userID, pushToken)
}
