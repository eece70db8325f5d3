package calendar

import (
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stagecal/stagecal/internal/models"
)

const productID = "-//stagecal//calendar//EN"

// WriteICS encodes events as one VCALENDAR. Events without any start are
// left out.
func WriteICS(w io.Writer, events []*models.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", "stagecal")

	for _, ev := range events {
		if vevent := toVEvent(ev, now); vevent != nil {
			cal.Children = append(cal.Children, vevent)
		}
	}
	return ical.NewEncoder(w).Encode(cal)
}

func toVEvent(ev *models.Event, now time.Time) *ical.Component {
	start := firstTime(ev.StartTime, ev.StartDate)
	if start == nil {
		return nil
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, string(ev.Source)+"-"+ev.ID+"@stagecal")
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	if end := firstTime(ev.EndTime, ev.EndDate); end != nil && !end.Before(*start) {
		ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	summary := ev.EventName
	if ev.ArtistName != "" {
		summary += " - " + ev.ArtistName
	}
	ve.Props.SetText(ical.PropSummary, summary)
	if loc := joinPlace(ev.Venue, ev.City); loc != "" {
		ve.Props.SetText(ical.PropLocation, loc)
	}
	ve.Props.SetText(ical.PropDescription, Describe(ev))
	if ev.Status != nil && ev.Status.Name != "" {
		ve.Props.SetText(ical.PropCategories, ev.Status.Name)
	}
	return ve
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}

func joinPlace(venue, city string) string {
	var parts []string
	for _, p := range []string{venue, city} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
