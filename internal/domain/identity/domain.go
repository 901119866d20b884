package identity

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("identity not found")

// Identity is owned by the user-management collaborator; the auth subsystem only reads it.
type Identity struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"name"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Summary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (i *Identity) Summary() *Summary {
	if i == nil {
		return nil
	}
	return &Summary{ID: i.ID, Email: i.Email, Name: i.DisplayName, AvatarURL: i.AvatarURL}
}
