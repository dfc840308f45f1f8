package model

import "time"

// User is the stored account behind an identity.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  *string
	PhotoURL     *string
	CreatedAt    time.Time
}
