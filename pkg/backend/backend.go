// Package backend defines the user-session backend that linked identities are stored on.
//
// Implementations receive the canonical auth-data mapping per auth type and never
// interpret it beyond matching a returning identity on its "id" key.
package backend

import (
	"context"
	"errors"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
)

// ErrUserNotFound is returned when the referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// User is a backend user record together with its linked identities.
type User struct {
	ID           string                       `json:"objectId"`
	SessionToken string                       `json:"sessionToken,omitempty"`
	AuthData     map[string]authdata.AuthData `json:"authData,omitempty"`
	IsNew        bool                         `json:"-"` // Set by LogInWith when the call created the user.
}

// IsLinked reports whether the user carries auth data for authType.
func (u *User) IsLinked(authType string) bool {
	if u == nil {
		return false
	}
	data, ok := u.AuthData[authType]
	return ok && data != nil
}

// Backend is the contract of the user-session system.
type Backend interface {
	// LogInWith finds the user linked to data under authType, creating one if none exists.
	LogInWith(ctx context.Context, authType string, data authdata.AuthData) (*User, error)
	// LinkWith stores data under authType on an existing user.
	LinkWith(ctx context.Context, userID, authType string, data authdata.AuthData) error
	// UnlinkFrom removes the authType identity from the user.
	UnlinkFrom(ctx context.Context, userID, authType string) error
	// IsLinked reports whether the user has an identity for authType.
	IsLinked(ctx context.Context, userID, authType string) (bool, error)
	// User loads a user by id.
	User(ctx context.Context, userID string) (*User, error)
}
