// Package models holds the persistent records of the credential store.
package models

import "time"

// Profile is the contact detail collected at registration. The identity
// core stores it but never interprets it.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// User is a stored credential. PasswordSalt and PasswordHash are base64
// (standard alphabet) strings produced by cryptox and are always replaced
// together.
type User struct {
	ID           string
	UserName     string
	PasswordSalt string
	PasswordHash string
	Role         string
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
