package models

import (
	"time"
)

// UserRef is the lightweight user reference embedded in messages
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// User represents a user profile as served by the profile endpoint
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `json:"lastSeen,omitempty"`
}

// Ref returns the embedded reference form of the user.
func (u *User) Ref() UserRef {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return UserRef{ID: u.ID, DisplayName: name, AvatarURL: u.AvatarURL}
}
