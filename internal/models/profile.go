// Package models defines the timeline data types shared across cheerfeed.
package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MainUserID is the fixed id of the single human user.
	MainUserID = "main-user"

	// MainUserHandle is the fixed handle of the main user.
	MainUserHandle = "@you"

	// DefaultMainUserName is used when no display name has been chosen.
	DefaultMainUserName = "User"

	// MaxUserNameLength is the longest accepted display name, in characters.
	MaxUserNameLength = 20
)

// ErrUserNameTooLong is returned when a display name exceeds MaxUserNameLength.
var ErrUserNameTooLong = fmt.Errorf("name must be %d characters or fewer", MaxUserNameLength)

// UserProfile is the author of a post, reply, or quote-repost.
// AI personas are ephemeral: their ids are minted per reply.
type UserProfile struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Username         string   `json:"username"`
	AvatarURL        string   `json:"avatarUrl"`
	InitialReplyText string   `json:"initialReplyText,omitempty"`
	PastUserPosts    []string `json:"pastUserPosts,omitempty"`
}

// IsMainUser reports whether the profile belongs to the human user.
func (u UserProfile) IsMainUser() bool {
	return u.ID == MainUserID
}

// Validate checks the fields every persisted profile must carry.
func (u UserProfile) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrMissingUser
	}
	return nil
}

// NormalizeUserName trims a requested display name and applies the default.
func NormalizeUserName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultMainUserName, nil
	}
	if utf8.RuneCountInString(name) > MaxUserNameLength {
		return "", ErrUserNameTooLong
	}
	return name, nil
}
