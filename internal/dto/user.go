package dto

import "github.com/noah-isme/sma-fee-api/internal/models"

// CreateUserRequest registers a user in the directory. ParentID and SessionID
// only apply to students. Without a password the account can receive
// notifications but cannot sign in.
type CreateUserRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Email       string          `json:"email" validate:"required,email"`
	Role        models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT PARENT"`
	Password    string          `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	PhoneNumber *string         `json:"phone_number,omitempty" validate:"omitempty,max=32"`
	ParentID    *string         `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	SessionID   *string         `json:"session_id,omitempty" validate:"omitempty,uuid"`
}

// UpdateUserRequest replaces a user's profile. A nil Password keeps the
// current one.
type UpdateUserRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Email       string          `json:"email" validate:"required,email"`
	Role        models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT PARENT"`
	Password    *string         `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	PhoneNumber *string         `json:"phone_number,omitempty" validate:"omitempty,max=32"`
	ParentID    *string         `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	SessionID   *string         `json:"session_id,omitempty" validate:"omitempty,uuid"`
	Active      *bool           `json:"active,omitempty"`
}

// DeviceTokenRequest carries the push token of the caller's app install.
type DeviceTokenRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}
