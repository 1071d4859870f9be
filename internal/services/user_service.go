package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pinetree/internal/database"
	"pinetree/internal/models"
)

// ErrUserExists is returned when registering a taken user name.
var ErrUserExists = errors.New("user already exists")

// UserService handles local accounts
type UserService struct {
	db *database.DB
}

// NewUserService creates a new user service
func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

const userColumns = `id, user_name, password_hash, role, tier, refresh_token_version, created_at, last_login_at`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.Role, &u.Tier,
		&u.RefreshTokenVersion, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// NormalizeUserName lowercases and trims an email used as user name.
func NormalizeUserName(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new account on the free tier
func (s *UserService) CreateUser(ctx context.Context, userName, passwordHash, role string) (*models.User, error) {
	userName = NormalizeUserName(userName)
	if _, err := s.GetByUserName(ctx, userName); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &models.User{
		UserName:     userName,
		PasswordHash: passwordHash,
		Role:         role,
		Tier:         models.TierFree,
		CreatedAt:    time.Now().UTC(),
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_name, password_hash, role, tier, refresh_token_version, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		user.UserName, user.PasswordHash, user.Role, user.Tier, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if user.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}

	log.Printf("👤 [USER] Registered %s", user.UserName)
	return user, nil
}

// GetByUserName loads an account, ErrNotFound when missing
func (s *UserService) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_name = ?`, NormalizeUserName(userName))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateLastLogin stamps a successful login
func (s *UserService) UpdateLastLogin(ctx context.Context, userName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE user_name = ?`, time.Now().UTC(), userName)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetTier changes the plan of an account
func (s *UserService) SetTier(ctx context.Context, userName, tier string) error {
	if tier != models.TierFree && tier != models.TierPro {
		return fmt.Errorf("%w: unknown tier %q", ErrValidation, tier)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET tier = ? WHERE user_name = ?`, tier, userName)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", userName, ErrNotFound)
	}
	log.Printf("💳 [USER] %s moved to tier %s", userName, tier)
	return nil
}

// BumpTokenVersion invalidates every refresh token issued so far
func (s *UserService) BumpTokenVersion(ctx context.Context, userName string) (int, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_version = refresh_token_version + 1 WHERE user_name = ?`, userName); err != nil {
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	user, err := s.GetByUserName(ctx, userName)
	if err != nil {
		return 0, err
	}
	return user.RefreshTokenVersion, nil
}

// GetUserCount returns the number of accounts
func (s *UserService) GetUserCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
