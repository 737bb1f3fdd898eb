package models

import (
	"time"
)

// User represents a support staff account
type User struct {
	BaseModel
	Email        string     `json:"email" db:"email"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsAdmin      bool       `json:"isAdmin" db:"is_admin"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	Settings     Variables  `json:"settings,omitempty" db:"settings"`
}
