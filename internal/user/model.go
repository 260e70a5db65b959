package user

import "time"

type Role string

const (
	RoleProvider Role = "provider"
	RoleClient   Role = "client"
	RoleBoth     Role = "both"
)

func (r Role) Valid() bool {
	return r == RoleProvider || r == RoleClient || r == RoleBoth
}

// CanProvide reports whether the role may post listings.
func (r Role) CanProvide() bool {
	return r == RoleProvider || r == RoleBoth
}

const (
	MaxRating       = 5.0
	InitialRating   = 5.0
	ratingIncrement = 1 // tenths of a point per completed service
)

type User struct {
	ID                string    `json:"id"`
	FullName          string    `json:"fullName"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email,omitempty"`
	Role              Role      `json:"userType"`
	PasswordHash      string    `json:"-"` // never return
	Balance           int64     `json:"balance"`
	Rating            float64   `json:"rating"`
	CompletedServices int       `json:"completedServices"`
	IsOnline          bool      `json:"isOnline"`
	LastSeen          time.Time `json:"lastSeen"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// PublicProfile is what other participants get to see.
type PublicProfile struct {
	ID                string  `json:"id"`
	FullName          string  `json:"fullName"`
	Phone             string  `json:"phone"`
	Role              Role    `json:"userType"`
	Rating            float64 `json:"rating"`
	CompletedServices int     `json:"completedServices"`
	IsOnline          bool    `json:"isOnline"`
}

func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:                u.ID,
		FullName:          u.FullName,
		Phone:             u.Phone,
		Role:              u.Role,
		Rating:            u.Rating,
		CompletedServices: u.CompletedServices,
		IsOnline:          u.IsOnline,
	}
}

// Profile is the registration input.
type Profile struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Role     Role   `json:"userType"`
	Password string `json:"password"`
}
