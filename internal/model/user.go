// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents an account that owns photos.
//
// WHY PasswordHash HAS json:"-"?
// The struct is returned from handlers (GET /users/me). The "-" tag tells
// encoding/json to skip the field entirely, so a bcrypt hash can never end up
// in a response body, even by accident.
//
// Email and Username are both UNIQUE in every metadata backend. The store,
// not the service, is the one that enforces it (a UNIQUE constraint in SQLite,
// a unique index in MongoDB), because a check-then-insert in Go would race.
type User struct {
	ID           string    `json:"id"        bson:"_id"`
	Name         string    `json:"name"      bson:"name"`
	Email        string    `json:"email"     bson:"email"`
	Username     string    `json:"username"  bson:"username"`
	PasswordHash string    `json:"-"         bson:"password"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}
