// Package calendar joins CRM deals and local bookings into the unified
// event shape served to the calendar UI.
package calendar

import (
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/models"
)

// FromDeal maps a deal and its enrichment onto a unified event. A deal
// timestamp fills both the date and the time field; a date-only value
// fills the date field alone, so ToDeal can write it back unchanged.
func FromDeal(d crm.Deal, e crm.Enrichment, status *models.StatusRef) *models.Event {
	ev := &models.Event{
		ID:            d.ID,
		Source:        models.ProvenanceExternal,
		EventName:     d.DealName,
		City:          d.City,
		ArtistType:    e.ArtistType,
		PromoterPhone: e.PromoterPhone,
		PromoterEmail: e.PromoterEmail,
		Status:        status,
	}
	ev.StartDate, ev.StartTime = splitDealTime(d.StartsAt)
	ev.EndDate, ev.EndTime = splitDealTime(d.EndsAt)
	if d.Artist != nil {
		ev.ArtistName = d.Artist.Name
	}
	if d.Venue != nil {
		ev.Venue = d.Venue.Name
	}
	if d.Account != nil {
		ev.PromoterName = d.Account.Name
	}
	if d.Fee != nil {
		ev.ArtistFee = *d.Fee
	}
	if ev.Status == nil {
		ev.Status = &models.StatusRef{Name: d.Stage}
	}
	return ev
}

// ToDeal is the inverse of FromDeal for the fields both shapes share.
// Relation ids are not part of the unified event and come back empty.
// Update tasks use it to spell out the requested deal values.
func ToDeal(ev *models.Event) crm.Deal {
	d := crm.Deal{
		ID:       ev.ID,
		DealName: ev.EventName,
		City:     ev.City,
		StartsAt: formatDealTime(ev.StartTime, ev.StartDate),
		EndsAt:   formatDealTime(ev.EndTime, ev.EndDate),
	}
	if ev.ArtistName != "" {
		d.Artist = &crm.Lookup{Name: ev.ArtistName}
	}
	if ev.Venue != "" {
		d.Venue = &crm.Lookup{Name: ev.Venue}
	}
	if ev.PromoterName != "" {
		d.Account = &crm.Lookup{Name: ev.PromoterName}
	}
	fee := ev.ArtistFee
	d.Fee = &fee
	if ev.Status != nil {
		d.Stage = ev.Status.Name
	}
	return d
}

// ResolveStage matches a deal stage against the status list by exact name.
// Unmatched stages keep their name with no color.
func ResolveStage(statuses []*models.Status, stage string) *models.StatusRef {
	for _, st := range statuses {
		if st.Name == stage {
			return st.Ref()
		}
	}
	return &models.StatusRef{Name: stage, Color: ""}
}

// splitDealTime returns the date and time parts of a deal timestamp. The
// time part is nil for date-only values and both are nil when s is empty
// or unparseable.
func splitDealTime(s string) (date, clock *time.Time) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := models.ParseTime(s)
	if err != nil {
		return nil, nil
	}
	d := t
	if len(s) == len(dayLayout) {
		return &d, nil
	}
	return &d, &t
}

func formatDealTime(clock, date *time.Time) string {
	switch {
	case clock != nil:
		return clock.Format(time.RFC3339)
	case date != nil:
		return date.Format(dayLayout)
	default:
		return ""
	}
}

// Merge returns external events followed by local ones, each in its own
// order. Nothing is de-duplicated.
func Merge(external, local []*models.Event) []*models.Event {
	out := make([]*models.Event, 0, len(external)+len(local))
	out = append(out, external...)
	return append(out, local...)
}
