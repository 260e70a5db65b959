package marketplace

import (
	"slices"
	"time"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Listing represents a service posted by a provider
type Listing struct {
	ID            string     `json:"id"`
	ProviderID    string     `json:"providerId"`
	ProviderName  string     `json:"providerName"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Location      string     `json:"location"`
	Price         int64      `json:"price"`
	Images        []string   `json:"images"`
	Status        Status     `json:"status"`
	ClientID      string     `json:"clientId,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	ViewCount     int        `json:"viewCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`

	seq uint64
}

func (l *Listing) clone() Listing {
	c := *l
	c.Images = slices.Clone(l.Images)
	if c.Images == nil {
		c.Images = []string{}
	}
	if l.CompletedAt != nil {
		t := *l.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Fields is the content of a new listing.
type Fields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Location    string   `json:"location"`
	Price       int64    `json:"price"`
	Images      []string `json:"images"`
}

// Patch carries optional edits; nil means unchanged.
type Patch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Location    *string   `json:"location"`
	Price       *int64    `json:"price"`
	Images      *[]string `json:"images"`
}

// Filter narrows a search over active listings. Zero values disable a criterion.
type Filter struct {
	Category string
	Location string
	Search   string
	MinPrice int64
	MaxPrice int64
	Limit    int
	Offset   int
}

// Ownership selects listings for ListForUser.
type Ownership string

const (
	OwnershipAll       Ownership = "all"
	OwnershipProvided  Ownership = "provided"
	OwnershipRequested Ownership = "requested"
)

// Stats are platform-wide listing counters.
type Stats struct {
	Total     int `json:"totalServices"`
	Active    int `json:"activeServices"`
	Completed int `json:"completedServices"`
}

// UserStats are the caller's listing counters.
type UserStats struct {
	CompletedAsProvider int `json:"completedServicesAsProvider"`
	CompletedAsClient   int `json:"completedServicesAsClient"`
	ActiveAsProvider    int `json:"activeServicesAsProvider"`
	ActiveAsClient      int `json:"activeServicesAsClient"`
}
