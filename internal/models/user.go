package models

import "time"

// User is a local account. UserName is the owner key stamped on every
// Pinecone the user creates.
type User struct {
	ID                  int64      `json:"id"`
	UserName            string     `json:"user_name"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	Tier                string     `json:"tier"`
	RefreshTokenVersion int        `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest authenticates an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
