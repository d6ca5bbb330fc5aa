// Package content serves the site's content domains (events, activities,
// gallery images, team members, volunteers) through the read-through cache,
// falls back to bundled sample data when the remote store cannot answer, and
// performs admin writes that invalidate the cached views of a domain.
package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// Location is where an item is shown
type Location string

const (
	Home       Location = "home"
	Events     Location = "events"
	Activities Location = "activities"
	Gallery    Location = "gallery"
	Both       Location = "both"
)

// Locations lists every accepted display_on value
var Locations = []Location{Home, Events, Activities, Gallery, Both}

// ParseLocation accepts "", "all" or one of Locations. "" and "all" mean no
// location filter and map to "".
func ParseLocation(s string) (Location, error) {
	switch s {
	case "", "all":
		return "", nil
	}
	for _, l := range Locations {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown location %q", ErrInvalid, s)
}

// ID is a remote-assigned identifier. The hosted backend uses integer keys,
// the local store uses uuids, so both JSON numbers and strings decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("content id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Record is implemented by every content type through Base
type Record interface {
	RecordID() string
	Location() Location
	Order() int
}

// Base carries the fields every content row has
type Base struct {
	ID        ID         `json:"id,omitempty"`
	DisplayOn Location   `json:"display_on,omitempty" validate:"omitempty,oneof=home events activities gallery both"`
	SortOrder int        `json:"sort_order" validate:"gte=0"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (b Base) RecordID() string   { return string(b.ID) }
func (b Base) Location() Location { return b.DisplayOn }
func (b Base) Order() int         { return b.SortOrder }

type Event struct {
	Base
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description,omitempty" validate:"max=5000"`
	EventDate       string `json:"event_date,omitempty"`
	Venue           string `json:"venue,omitempty" validate:"max=200"`
	ImageURL        string `json:"image_url,omitempty" validate:"omitempty,url"`
	RegistrationURL string `json:"registration_url,omitempty" validate:"omitempty,url"`
}

// Date parses EventDate, which may be a date or a full timestamp
func (e Event) Date() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, e.EventDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type Activity struct {
	Base
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	Schedule    string `json:"schedule,omitempty" validate:"max=200"`
	Category    string `json:"category,omitempty" validate:"max=100"`
	ImageURL    string `json:"image_url,omitempty" validate:"omitempty,url"`
}

type GalleryImage struct {
	Base
	Title       string `json:"title" validate:"required,max=200"`
	Caption     string `json:"caption,omitempty" validate:"max=1000"`
	Category    string `json:"category,omitempty" validate:"max=100"`
	ImageURL    string `json:"image_url" validate:"required,url"`
	StoragePath string `json:"storage_path,omitempty"`
}

type TeamMember struct {
	Base
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role,omitempty" validate:"max=200"`
	Bio      string `json:"bio,omitempty" validate:"max=5000"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

type Volunteer struct {
	Base
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role,omitempty" validate:"max=200"`
	Bio      string `json:"bio,omitempty" validate:"max=5000"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
	Since    string `json:"since,omitempty" validate:"max=50"`
}

// Page is one page of an admin listing
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Size  int
}

// Pages returns the number of pages needed for Total rows
func (p Page[T]) Pages() int {
	if p.Size <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }
func (p Page[T]) HasNext() bool { return p.Page < p.Pages() }
