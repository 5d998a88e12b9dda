package domain

import (
	"time"
)

// User is the identity record. Username is the immutable key.
type User struct {
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	SecurityQuestion   string    `json:"-"`
	SecurityAnswerHash string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SignupRequest represents a signup request.
type SignupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Question string `json:"question" binding:"required,max=255"`
	Answer   string `json:"answer" binding:"required,max=72"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyRecoveryRequest checks a security answer without changing anything.
type VerifyRecoveryRequest struct {
	Username string `json:"username" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// ResetPasswordRequest represents a password reset request.
type ResetPasswordRequest struct {
	Username    string `json:"username" binding:"required"`
	Answer      string `json:"answer" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

// AuthResponse represents a login response.
type AuthResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// RecoveryQuestionResponse carries the question shown during recovery.
type RecoveryQuestionResponse struct {
	Username string `json:"username"`
	Question string `json:"question"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}
