package calendar

import (
	"testing"
	"time"

	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fee(v float64) *float64 { return &v }

func sampleDeal() crm.Deal {
	return crm.Deal{
		ID:       "4876876000001",
		DealName: "Festival de Verano",
		StartsAt: "2026-07-04T21:30:00+02:00",
		EndsAt:   "2026-07-05T01:00:00+02:00",
		Artist:   &crm.Lookup{ID: "A1", Name: "Los Rayos"},
		City:     "Valencia",
		Venue:    &crm.Lookup{ID: "V1", Name: "Roig Arena"},
		Fee:      fee(12500.5),
		Account:  &crm.Lookup{ID: "P1", Name: "Sonora Live"},
		Stage:    "Confirmado",
	}
}

func TestFromDeal(t *testing.T) {
	e := crm.Enrichment{ArtistType: "Concierto", PromoterPhone: "+34 600", PromoterEmail: models.SentinelUnknown}
	ev := FromDeal(sampleDeal(), e, &models.StatusRef{ID: "st-1", Name: "Confirmado", Color: "#0f0"})

	assert.Equal(t, "4876876000001", ev.ID)
	assert.Equal(t, models.ProvenanceExternal, ev.Source)
	assert.Equal(t, "Festival de Verano", ev.EventName)
	require.NotNil(t, ev.StartDate)
	require.NotNil(t, ev.StartTime)
	assert.True(t, ev.StartTime.Equal(time.Date(2026, 7, 4, 19, 30, 0, 0, time.UTC)))
	assert.Equal(t, *ev.StartDate, *ev.StartTime)
	assert.Equal(t, "Los Rayos", ev.ArtistName)
	assert.Equal(t, "Concierto", ev.ArtistType)
	assert.Equal(t, "Roig Arena", ev.Venue)
	assert.Equal(t, 12500.5, ev.ArtistFee)
	assert.Equal(t, "Sonora Live", ev.PromoterName)
	assert.Equal(t, "+34 600", ev.PromoterPhone)
	assert.Equal(t, models.SentinelUnknown, ev.PromoterEmail)
	assert.Equal(t, "#0f0", ev.Status.Color)
}

func TestFromDealSparse(t *testing.T) {
	ev := FromDeal(crm.Deal{ID: "1", Stage: "Hold", StartsAt: "not a date"}, crm.Enrichment{}, nil)

	assert.Nil(t, ev.StartDate)
	assert.Nil(t, ev.EndTime)
	assert.Zero(t, ev.ArtistFee)
	assert.Empty(t, ev.ArtistName)
	assert.Equal(t, &models.StatusRef{Name: "Hold"}, ev.Status)
}

func TestRoundTrip(t *testing.T) {
	d := sampleDeal()
	back := ToDeal(FromDeal(d, crm.Enrichment{}, ResolveStage(nil, d.Stage)))

	assert.Equal(t, d.ID, back.ID)
	assert.Equal(t, d.DealName, back.DealName)
	assert.Equal(t, d.StartsAt, back.StartsAt)
	assert.Equal(t, d.EndsAt, back.EndsAt)
	assert.Equal(t, d.Artist.Name, back.Artist.Name)
	assert.Equal(t, d.City, back.City)
	assert.Equal(t, d.Venue.Name, back.Venue.Name)
	assert.Equal(t, *d.Fee, *back.Fee)
	assert.Equal(t, d.Account.Name, back.Account.Name)
	assert.Equal(t, d.Stage, back.Stage)
}

func TestRoundTripDateOnly(t *testing.T) {
	d := crm.Deal{ID: "9", StartsAt: "2026-01-10", Stage: "Hold"}
	ev := FromDeal(d, crm.Enrichment{}, nil)
	require.NotNil(t, ev.StartDate)
	assert.Nil(t, ev.StartTime, "a bare date carries no time of day")

	back := ToDeal(ev)
	assert.Equal(t, "2026-01-10", back.StartsAt)
	assert.Empty(t, back.EndsAt)
	assert.Nil(t, back.Artist)
}

func TestResolveStage(t *testing.T) {
	statuses := []*models.Status{
		{ID: "st-1", Name: "Confirmado", Color: "#0f0"},
		{ID: "st-2", Name: "confirmado", Color: "#f00"},
	}
	assert.Equal(t, &models.StatusRef{ID: "st-1", Name: "Confirmado", Color: "#0f0"}, ResolveStage(statuses, "Confirmado"))
	assert.Equal(t, &models.StatusRef{Name: "Cancelado", Color: ""}, ResolveStage(statuses, "Cancelado"))
}

func TestMerge(t *testing.T) {
	e1, e2 := &models.Event{ID: "E1"}, &models.Event{ID: "E2"}
	l1, l2 := &models.Event{ID: "L1"}, &models.Event{ID: "L2"}

	got := Merge([]*models.Event{e1, e2}, []*models.Event{l1, l2})
	assert.Equal(t, []*models.Event{e1, e2, l1, l2}, got)

	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, []*models.Event{l1}, Merge(nil, []*models.Event{l1}))
}

func TestMergeKeepsDuplicates(t *testing.T) {
	a := &models.Event{ID: "same"}
	assert.Len(t, Merge([]*models.Event{a}, []*models.Event{a}), 2)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("", "")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ParseRange("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "(Fecha_Inicio_Evento:between:(2026-03-01T00:00:00Z,2026-03-31T23:59:59Z))", r.Criteria())

	for _, tc := range [][2]string{
		{"2026-03-01", ""},
		{"", "2026-03-01"},
		{"03/01/2026", "2026-03-31"},
		{"2026-03-01", "2026-02-31"},
		{"2026-03-31", "2026-03-01"},
	} {
		_, err := ParseRange(tc[0], tc[1])
		assert.Error(t, err, "%v", tc)
	}
}
