// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultTimezone is assigned to users who don't pick one at registration.
const DefaultTimezone = "UTC"

// User represents a registered account.
//
// Identity is delegated to an external OpenID Connect provider, so the
// stable external identifier is the provider's "sub" claim (Auth0ID). We
// still keep our own numeric primary key so the rest of the app (session
// cookie, admin URLs) never depends on the provider's identifier format.
//
// WHY BOTH Auth0ID AND Email UNIQUE?
// The subject is what we look users up by at login. Email is unique too so
// one mailbox can't end up behind two local accounts via two provider
// connections (e.g. Google and username/password).
type User struct {
	ID              int64     `json:"id"              db:"id"`
	Auth0ID         string    `json:"auth0Id"         db:"auth0_id"` // provider "sub" claim
	Email           string    `json:"email"           db:"email"`
	FirstName       string    `json:"firstName"       db:"first_name"`
	LastName        string    `json:"lastName"        db:"last_name"`
	Timezone        string    `json:"timezone"        db:"timezone"`
	IsAdministrator bool      `json:"isAdministrator" db:"is_administrator"`
	IsActive        bool      `json:"isActive"        db:"is_active"`
	CreatedAt       time.Time `json:"createdAt"       db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt"       db:"updated_at"`
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
