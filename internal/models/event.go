package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
)

// Provenance tells where an event lives.
type Provenance string

const (
	// ProvenanceExternal marks a CRM deal. Never persisted locally.
	ProvenanceExternal Provenance = "external"
	// ProvenanceLocal marks an event owned by the local store.
	ProvenanceLocal Provenance = "local"
)

// Sentinels for enrichment fields that could not be resolved.
const (
	SentinelAccessDenied = "AccessDenied"
	SentinelUnknown      = "Unknown"
)

// ParseProvenance accepts the canonical tags plus the legacy "zoho" and
// "mongo" values still sent by older frontends.
func ParseProvenance(s string) (Provenance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "external", "zoho":
		return ProvenanceExternal, true
	case "local", "mongo", "":
		return ProvenanceLocal, true
	default:
		return "", false
	}
}

// UnmarshalJSON normalizes aliases on input.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseProvenance(s)
	if !ok {
		return fmt.Errorf("unknown source %q", s)
	}
	*p = parsed
	return nil
}

// StatusRef is the display status attached to an event.
type StatusRef struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Event is the unified booking shape served to the calendar.
type Event struct {
	ID     string     `json:"id"`
	Source Provenance `json:"source"`

	StartDate *time.Time `json:"start_date,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	EventName  string  `json:"event_name"`
	ArtistName string  `json:"artist_name"`
	ArtistType string  `json:"artist_type"`
	City       string  `json:"city"`
	Venue      string  `json:"venue"`
	ArtistFee  float64 `json:"artist_amount"`

	PromoterName  string `json:"promoter_name"`
	PromoterPhone string `json:"promoter_phone"`
	PromoterEmail string `json:"promoter_email"`

	Status *StatusRef `json:"status"`
	// StatusID references a Status record for local events.
	StatusID string `json:"-"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CheckSchedule enforces end >= start for whichever pairs are present.
func (e *Event) CheckSchedule() error {
	if e.StartDate != nil && e.EndDate != nil && e.EndDate.Before(*e.StartDate) {
		return &errors.ErrValidation{Field: "end_date", Err: fmt.Errorf("must not be before start_date")}
	}
	if e.StartTime != nil && e.EndTime != nil && e.EndTime.Before(*e.StartTime) {
		return &errors.ErrValidation{Field: "end_time", Err: fmt.Errorf("must not be before start_time")}
	}
	return nil
}

// Validate checks the fields a local event must carry.
func (e *Event) Validate() error {
	required := []struct {
		field string
		ok    bool
	}{
		{"start_date", e.StartDate != nil},
		{"start_time", e.StartTime != nil},
		{"end_date", e.EndDate != nil},
		{"end_time", e.EndTime != nil},
		{"event_name", strings.TrimSpace(e.EventName) != ""},
		{"artist_name", strings.TrimSpace(e.ArtistName) != ""},
		{"artist_type", strings.TrimSpace(e.ArtistType) != ""},
		{"status", e.StatusID != ""},
	}
	for _, r := range required {
		if !r.ok {
			return &errors.ErrValidation{Field: r.field, Err: fmt.Errorf("is required")}
		}
	}
	if e.ArtistFee < 0 {
		return &errors.ErrValidation{Field: "artist_amount", Err: fmt.Errorf("must not be negative")}
	}
	return e.CheckSchedule()
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	if e.Status != nil {
		s := *e.Status
		out.Status = &s
	}
	return &out
}

// EventInput is a create or patch body. Nil fields are left untouched by Apply.
type EventInput struct {
	Source *Provenance `json:"source,omitempty"`

	StartDate *FlexTime `json:"start_date,omitempty"`
	StartTime *FlexTime `json:"start_time,omitempty"`
	EndDate   *FlexTime `json:"end_date,omitempty"`
	EndTime   *FlexTime `json:"end_time,omitempty"`

	EventName  *string  `json:"event_name,omitempty"`
	ArtistName *string  `json:"artist_name,omitempty"`
	ArtistType *string  `json:"artist_type,omitempty"`
	City       *string  `json:"city,omitempty"`
	Venue      *string  `json:"venue,omitempty"`
	ArtistFee  *float64 `json:"artist_amount,omitempty"`

	PromoterName  *string `json:"promoter_name,omitempty"`
	PromoterPhone *string `json:"promoter_phone,omitempty"`
	PromoterEmail *string `json:"promoter_email,omitempty"`

	// StatusID is sent as "status" by the calendar UI.
	StatusID *string `json:"status,omitempty"`
}

// IsExternal reports whether the input targets a CRM deal.
func (in *EventInput) IsExternal() bool {
	return in.Source != nil && *in.Source == ProvenanceExternal
}

// Apply copies every set field onto ev.
func (in *EventInput) Apply(ev *Event) {
	setTime := func(dst **time.Time, src *FlexTime) {
		if src != nil {
			t := src.Time
			*dst = &t
		}
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	if in.Source != nil {
		ev.Source = *in.Source
	}
	setTime(&ev.StartDate, in.StartDate)
	setTime(&ev.StartTime, in.StartTime)
	setTime(&ev.EndDate, in.EndDate)
	setTime(&ev.EndTime, in.EndTime)
	setString(&ev.EventName, in.EventName)
	setString(&ev.ArtistName, in.ArtistName)
	setString(&ev.ArtistType, in.ArtistType)
	setString(&ev.City, in.City)
	setString(&ev.Venue, in.Venue)
	if in.ArtistFee != nil {
		ev.ArtistFee = *in.ArtistFee
	}
	setString(&ev.PromoterName, in.PromoterName)
	setString(&ev.PromoterPhone, in.PromoterPhone)
	setString(&ev.PromoterEmail, in.PromoterEmail)
	setString(&ev.StatusID, in.StatusID)
}
