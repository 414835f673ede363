package account

import "time"

// Profile captures the subset of user data exposed to dashboards.
type Profile struct {
	ID           string
	FullName     string
	Role         string
	Organization *string
	CreatedAt    time.Time
}
