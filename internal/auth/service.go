package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/config"
	"chatline/backend/internal/models"
)

// UserStore is the part of the gateway registration and login need.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// RegisterInput is the registration form.
type RegisterInput struct {
	FullName  string `json:"full_name"`
	Nickname  string `json:"nickname"`
	BirthDate string `json:"birth_date"`
	Email     string `json:"email"`
	Hometown  string `json:"hometown"`
	Avatar    string `json:"avatar"`
	Password  string `json:"password"`
}

type Service struct {
	store  UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

func NewService(store UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register validates the form and creates the user. An email that is
// already taken fails with apperr.ErrDuplicate and creates nothing.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	email := models.NormalizeEmail(in.Email)

	switch {
	case in.FullName == "":
		return nil, apperr.Validation("full_name is required")
	case email == "":
		return nil, apperr.Validation("email is required")
	case in.Password == "":
		return nil, apperr.Validation("password is required")
	case len(in.Password) > config.MaxPasswordBytes:
		return nil, apperr.Validation("password must be at most %d bytes", config.MaxPasswordBytes)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation("invalid email format")
	}

	birthDate, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Duplicate("email %s is already registered", email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		FullName:     in.FullName,
		Nickname:     strings.TrimSpace(in.Nickname),
		BirthDate:    birthDate,
		Email:        email,
		Hometown:     strings.TrimSpace(in.Hometown),
		Avatar:       in.Avatar,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and returns a fresh access token. An unknown
// email and a wrong password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", nil, apperr.Validation("email and password are required")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		return "", nil, apperr.Auth("invalid email or password")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

// Authenticate returns the user id carried by a valid token.
func (s *Service) Authenticate(token string) (uint, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return 0, apperr.Auth("%v", err)
	}
	return claims.UserID, nil
}

// parseBirthDate accepts a calendar date or an RFC 3339 timestamp.
func parseBirthDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("birth_date must look like 2006-01-02")
}
