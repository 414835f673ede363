package auth

import "time"

type Role string

const (
	RoleStartup       Role = "startup"
	RoleFundingAgency Role = "funding_agency"
	RoleResearcher    Role = "researcher"
	RoleMentor        Role = "mentor"
	RolePolicyMaker   Role = "policy_maker"
	RoleAdmin         Role = "admin"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Organization *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Organization string `json:"organization"`
	Role         Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
