package models

import "time"

// Identity is a verified claim for the caller of a request. It lives only
// for the duration of that request.
type Identity struct {
	UID     string `json:"uid"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// User is the stored profile behind an identity.
type User struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	DisplayName  string    `json:"displayName"`
	PhotoURL     string    `json:"photoURL"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLoginAt  time.Time `json:"lastLoginAt"`
}

type UserResponse struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Provider:    u.Provider,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func (u *User) Identity() Identity {
	return Identity{UID: u.UID, Email: u.Email, Name: u.DisplayName, Picture: u.PhotoURL}
}
