package content

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/briangreenhill/communitysite/internal/store"
)

// FieldKind drives admin form rendering and form decoding
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextArea FieldKind = "textarea"
	KindInt      FieldKind = "int"
	KindDate     FieldKind = "date"
	KindURL      FieldKind = "url"
	KindEmail    FieldKind = "email"
	KindImage    FieldKind = "image"
	KindLocation FieldKind = "location"
)

// Field describes one editable column
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Required bool
}

// Domain describes one content table and how it is read
type Domain[T Record] struct {
	// Name is the cache key prefix and the URL segment, eg. "events"
	Name  string
	Label string
	Table string
	// LocationColumn is empty for domains that are not filtered by location
	LocationColumn string
	Order          []store.Order
	SampleFile     string
	Fields         []Field
	SetSortOrder   func(*T, int)
	// Objects returns the storage paths owned by an item, if any
	Objects func(T) []string
}

var bySortOrder = []store.Order{{Column: "sort_order", Ascending: true}}

var EventsDomain = Domain[Event]{
	Name:           "events",
	Label:          "Events",
	Table:          "events",
	LocationColumn: "display_on",
	Order:          []store.Order{{Column: "sort_order", Ascending: true}, {Column: "event_date", Ascending: true}},
	SampleFile:     "sampledata/events.json",
	Fields: []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true},
		{Name: "description", Label: "Description", Kind: KindTextArea},
		{Name: "event_date", Label: "Date", Kind: KindDate},
		{Name: "venue", Label: "Venue", Kind: KindText},
		{Name: "image_url", Label: "Image URL", Kind: KindURL},
		{Name: "registration_url", Label: "Registration link", Kind: KindURL},
		{Name: "display_on", Label: "Show on", Kind: KindLocation},
	},
	SetSortOrder: func(e *Event, n int) { e.SortOrder = n },
}

var ActivitiesDomain = Domain[Activity]{
	Name:           "activities",
	Label:          "Activities",
	Table:          "activities",
	LocationColumn: "display_on",
	Order:          bySortOrder,
	SampleFile:     "sampledata/activities.json",
	Fields: []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true},
		{Name: "description", Label: "Description", Kind: KindTextArea},
		{Name: "schedule", Label: "Schedule", Kind: KindText},
		{Name: "category", Label: "Category", Kind: KindText},
		{Name: "image_url", Label: "Image URL", Kind: KindURL},
		{Name: "display_on", Label: "Show on", Kind: KindLocation},
	},
	SetSortOrder: func(a *Activity, n int) { a.SortOrder = n },
}

var GalleryDomain = Domain[GalleryImage]{
	Name:           "gallery",
	Label:          "Gallery",
	Table:          "gallery_images",
	LocationColumn: "display_on",
	Order:          bySortOrder,
	SampleFile:     "sampledata/gallery.json",
	Fields: []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true},
		{Name: "caption", Label: "Caption", Kind: KindTextArea},
		{Name: "category", Label: "Category", Kind: KindText},
		{Name: "image_url", Label: "Image", Kind: KindImage, Required: true},
		{Name: "display_on", Label: "Show on", Kind: KindLocation},
	},
	SetSortOrder: func(g *GalleryImage, n int) { g.SortOrder = n },
	Objects: func(g GalleryImage) []string {
		if g.StoragePath == "" {
			return nil
		}
		return []string{g.StoragePath}
	},
}

var TeamDomain = Domain[TeamMember]{
	Name:       "team",
	Label:      "Team",
	Table:      "team_members",
	Order:      bySortOrder,
	SampleFile: "sampledata/team.json",
	Fields: []Field{
		{Name: "name", Label: "Name", Kind: KindText, Required: true},
		{Name: "role", Label: "Role", Kind: KindText},
		{Name: "bio", Label: "Bio", Kind: KindTextArea},
		{Name: "photo_url", Label: "Photo URL", Kind: KindURL},
		{Name: "email", Label: "Email", Kind: KindEmail},
	},
	SetSortOrder: func(m *TeamMember, n int) { m.SortOrder = n },
}

var VolunteersDomain = Domain[Volunteer]{
	Name:       "volunteers",
	Label:      "Volunteers",
	Table:      "volunteers",
	Order:      bySortOrder,
	SampleFile: "sampledata/volunteers.json",
	Fields: []Field{
		{Name: "name", Label: "Name", Kind: KindText, Required: true},
		{Name: "role", Label: "Role", Kind: KindText},
		{Name: "bio", Label: "Bio", Kind: KindTextArea},
		{Name: "photo_url", Label: "Photo URL", Kind: KindURL},
		{Name: "since", Label: "Volunteering since", Kind: KindText},
	},
	SetSortOrder: func(v *Volunteer, n int) { v.SortOrder = n },
}

// ParseForm converts submitted form values into a row for the given fields.
// Empty optional values are left out so they keep their zero value. When
// partial is set (edits) required fields may be absent, and text fields
// submitted empty are cleared.
func ParseForm(fields []Field, form url.Values, partial bool) (map[string]any, error) {
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		vals, present := form[f.Name]
		raw := ""
		if len(vals) > 0 {
			raw = strings.TrimSpace(vals[0])
		}
		if raw == "" {
			switch {
			case !partial && f.Required:
				return nil, fmt.Errorf("%w: %s is required", ErrInvalid, f.Label)
			case partial && present && clearable(f.Kind):
				row[f.Name] = ""
			}
			continue
		}
		switch f.Kind {
		case KindInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a number", ErrInvalid, f.Label)
			}
			row[f.Name] = n
		case KindDate:
			if _, err := time.Parse("2006-01-02", raw); err != nil {
				return nil, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", ErrInvalid, f.Label)
			}
			row[f.Name] = raw
		case KindLocation:
			loc, err := ParseLocation(raw)
			if err != nil {
				return nil, err
			}
			if loc != "" {
				row[f.Name] = string(loc)
			}
		default:
			row[f.Name] = raw
		}
	}
	return row, nil
}

func clearable(k FieldKind) bool {
	switch k {
	case KindText, KindTextArea, KindDate, KindURL, KindEmail:
		return true
	}
	return false
}
