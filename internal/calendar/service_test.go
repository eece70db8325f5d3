package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagecal/stagecal/internal/changefeed"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stagecal/stagecal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCRM struct {
	recordingTasks
	deals      []crm.Deal
	listErr    error
	lastRange  *crm.DateRange
	master     *models.MasterData
	enrichSeen int
}

func (f *fakeCRM) ListDeals(_ context.Context, _ crm.Session, r *crm.DateRange) ([]crm.Deal, error) {
	f.lastRange = r
	return f.deals, f.listErr
}

func (f *fakeCRM) GetDeal(_ context.Context, _ crm.Session, id string) (*crm.Deal, error) {
	for _, d := range f.deals {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, &errors.ErrNotFound{Kind: "deal", ID: id}
}

func (f *fakeCRM) Enrich(_ context.Context, _ crm.Session, deals []crm.Deal) []crm.Enrichment {
	f.enrichSeen += len(deals)
	out := make([]crm.Enrichment, len(deals))
	for i := range out {
		out[i] = crm.Enrichment{ArtistType: "Concierto", PromoterPhone: models.SentinelUnknown, PromoterEmail: models.SentinelUnknown}
	}
	return out
}

func (f *fakeCRM) Master(context.Context, crm.Session) (*models.MasterData, error) {
	return f.master, nil
}

type capturePublisher struct {
	topics []string
}

func (c *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	c.topics = append(c.topics, topic)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

type fixture struct {
	svc   *Service
	crm   *fakeCRM
	store *store.MemoryStore
	feed  *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{crm: &fakeCRM{}, store: store.NewMemoryStore(), feed: &capturePublisher{}}
	f.svc = NewService(Deps{
		CRM:      f.crm,
		Events:   f.store,
		Statuses: f.store,
		Feed:     changefeed.NewFeed(f.feed, "test", nil),
	})
	f.svc.now = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) status(t *testing.T, name, color string) *models.Status {
	t.Helper()
	st, err := f.svc.CreateStatus(context.Background(), models.StatusInput{Name: &name, Color: &color})
	require.NoError(t, err)
	return st
}

func eventInput(t *testing.T, statusID string) models.EventInput {
	t.Helper()
	body := `{
		"start_date": "2026-03-14", "start_time": "2026-03-14T20:00:00Z",
		"end_date": "2026-03-14", "end_time": "2026-03-14T23:00:00Z",
		"event_name": "Gala", "artist_name": "Los Rayos", "artist_type": "Concierto",
		"venue": "Sala Sol", "city": "Madrid", "artist_amount": 1500,
		"status": "` + statusID + `"
	}`
	var in models.EventInput
	require.NoError(t, json.Unmarshal([]byte(body), &in))
	return in
}

func TestCreateEventWithoutSessionSkipsNotifier(t *testing.T) {
	f := newFixture(t)
	st := f.status(t, "Hold", "#ff0")

	ev, err := f.svc.CreateEvent(context.Background(), nil, eventInput(t, st.ID))
	require.NoError(t, err)

	assert.Contains(t, ev.ID, "ev-")
	assert.Equal(t, models.ProvenanceLocal, ev.Source)
	assert.Equal(t, &models.StatusRef{ID: st.ID, Name: "Hold", Color: "#ff0"}, ev.Status)
	assert.Empty(t, f.crm.tasks)
	assert.Equal(t, []string{"test.status.created", "test.event.created"}, f.feed.topics)

	stored, err := f.store.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gala", stored.EventName)
}

func TestCreateEventNotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.crm.err = &errors.ErrTaskRejected{Code: "INVALID_DATA"}
	st := f.status(t, "Hold", "#ff0")

	ev, err := f.svc.CreateEvent(context.Background(), &crm.Session{AccessToken: "t", APIDomain: "d"}, eventInput(t, st.ID))
	require.NoError(t, err)
	require.Len(t, f.crm.tasks, 1)
	assert.Equal(t, "Create New Event: Gala", f.crm.tasks[0].Subject)

	_, err = f.store.GetEvent(context.Background(), ev.ID)
	assert.NoError(t, err)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateEvent(context.Background(), nil, eventInput(t, "st-missing"))
	var verr *errors.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	st := f.status(t, "Hold", "#ff0")
	in := eventInput(t, st.ID)
	early := models.FlexTime{Time: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)}
	in.EndTime = &early
	_, err = f.svc.CreateEvent(context.Background(), nil, in)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)

	events, err := f.store.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLocalEventsFollowStatusEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.status(t, "Hold", "#ff0")
	ev, err := f.svc.CreateEvent(ctx, nil, eventInput(t, st.ID))
	require.NoError(t, err)

	green := "#0f0"
	_, err = f.svc.UpdateStatus(ctx, st.ID, models.StatusInput{Color: &green})
	require.NoError(t, err)

	events, err := f.svc.LocalEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "#0f0", events[0].Status.Color)

	deleted, err := f.svc.DeleteStatus(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, deleted.ID)

	got, err := f.svc.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Status, "dangling status renders null")
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.status(t, "Hold", "#ff0")
	ev, err := f.svc.CreateEvent(ctx, nil, eventInput(t, st.ID))
	require.NoError(t, err)

	venue := "Palacio"
	updated, err := f.svc.UpdateEvent(ctx, ev.ID, models.EventInput{Venue: &venue})
	require.NoError(t, err)
	assert.Equal(t, "Palacio", updated.Venue)
	assert.Equal(t, "Gala", updated.EventName)

	_, err = f.svc.UpdateEvent(ctx, "ev-missing", models.EventInput{Venue: &venue})
	assert.True(t, errors.IsNotFound(err))

	removed, err := f.svc.DeleteEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Palacio", removed.Venue)

	_, err = f.svc.GetEvent(ctx, ev.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = f.svc.DeleteEvent(ctx, ev.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.Equal(t, []string{"test.status.created", "test.event.created", "test.event.updated", "test.event.deleted"}, f.feed.topics)
}

func TestRequestExternalUpdateLeavesStoreAlone(t *testing.T) {
	f := newFixture(t)
	f.crm.err = stderrors.New("crm down")
	ext := models.ProvenanceExternal
	name := "Renamed"

	_, err := f.svc.RequestExternalUpdate(context.Background(), crm.Session{}, "123", models.EventInput{Source: &ext, EventName: &name})
	require.Error(t, err)
	events, _ := f.store.ListEvents(context.Background())
	assert.Empty(t, events)

	f.crm.err = nil
	ev, err := f.svc.RequestExternalUpdate(context.Background(), crm.Session{}, "123", models.EventInput{Source: &ext, EventName: &name})
	require.NoError(t, err)
	assert.Equal(t, "123", ev.ID)
	assert.Equal(t, "Update Event: Renamed", f.crm.tasks[1].Subject)
	assert.Equal(t, "123", f.crm.tasks[1].WhatID.ID)
}

func TestAllEventsExternalFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.status(t, "Confirmado", "#0f0")
	f.crm.deals = []crm.Deal{sampleDeal(), {ID: "2", DealName: "Otra", Stage: "Unknown stage"}}

	local, err := f.svc.CreateEvent(ctx, nil, eventInput(t, st.ID))
	require.NoError(t, err)

	all, err := f.svc.AllEvents(ctx, crm.Session{}, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"4876876000001", "2", local.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "#0f0", all[0].Status.Color)
	assert.Equal(t, &models.StatusRef{Name: "Unknown stage"}, all[1].Status)
	assert.Nil(t, f.crm.lastRange)

	march := &crm.DateRange{Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)}
	all, err = f.svc.AllEvents(ctx, crm.Session{}, march)
	require.NoError(t, err)
	assert.Len(t, all, 3, "local events are never range filtered")
	assert.Same(t, march, f.crm.lastRange)
}

func TestExternalEventsPropagatesListFailure(t *testing.T) {
	f := newFixture(t)
	f.crm.listErr = &errors.ErrUpstream{Operation: "list_deals", StatusCode: 401}

	_, err := f.svc.ExternalEvents(context.Background(), crm.Session{}, nil)
	var up *errors.ErrUpstream
	require.ErrorAs(t, err, &up)
	assert.Equal(t, 401, up.StatusCode)
	assert.Zero(t, f.crm.enrichSeen)
}

func TestExternalEventsEmpty(t *testing.T) {
	f := newFixture(t)
	events, err := f.svc.ExternalEvents(context.Background(), crm.Session{}, &crm.DateRange{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

// The following run the real CRM client against a fake Zoho.

func zohoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/crm/v8/Deals/123", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, map[string]any{"data": []map[string]any{{
			"id": "123", "Deal_Name": "Gala", "Fecha_Inicio_Evento": "2026-03-14T20:00:00+01:00",
			"Artista": map[string]string{"id": "A1", "name": "Los Rayos"},
			"Account_Name": map[string]string{"id": "P1", "name": "Sonora"},
			"Ciudad": "Madrid", "Cach": 900, "Stage": "Hold",
		}}})
	})
	mux.HandleFunc("/crm/v8/Artistas/A1", func(w http.ResponseWriter, r *http.Request) {
		write(w, 403, map[string]any{"code": "NO_PERMISSION", "message": "permission denied"})
	})
	mux.HandleFunc("/crm/v8/Accounts/P1", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, map[string]any{"data": []map[string]any{{"id": "P1", "Tel_fono_Contratacion": "+34 600", "Correo_Contratacion": "p@sonora.test"}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExternalEventArtistAccessDenied(t *testing.T) {
	srv := zohoServer(t)
	svc := NewService(Deps{CRM: crm.NewClient(crm.Options{}), Events: store.NewMemoryStore(), Statuses: store.NewMemoryStore()})
	sess := crm.Session{AccessToken: "tok", APIDomain: srv.URL}

	ev, err := svc.ExternalEvent(context.Background(), sess, "123")
	require.NoError(t, err)
	assert.Equal(t, models.SentinelAccessDenied, ev.ArtistType)
	assert.Equal(t, "Los Rayos", ev.ArtistName)
	assert.Equal(t, "+34 600", ev.PromoterPhone)
	assert.Equal(t, "p@sonora.test", ev.PromoterEmail)
	assert.Equal(t, 900.0, ev.ArtistFee)

	again, err := svc.ExternalEvent(context.Background(), sess, "123")
	require.NoError(t, err)
	assert.Equal(t, ev, again, "fetching twice yields identical events")

	_, err = svc.ExternalEvent(context.Background(), sess, "404")
	assert.Error(t, err)
}

func TestWriteICS(t *testing.T) {
	ev := describedEvent()
	ev.Source = models.ProvenanceLocal
	ev.Status = &models.StatusRef{Name: "Hold"}
	noStart := &models.Event{ID: "x", EventName: "Undated"}

	var buf bytes.Buffer
	require.NoError(t, WriteICS(&buf, []*models.Event{ev, noStart}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PRODID:"+productID)
	assert.Contains(t, out, "UID:local-D1@stagecal")
	assert.Contains(t, out, "SUMMARY:Noche Flamenca - La Chispa")
	assert.Contains(t, out, "DTSTART:20260502T200000Z")
	assert.Contains(t, out, "DTEND:20260502T230000Z")
	assert.Contains(t, out, "CATEGORIES:Hold")
	assert.NotContains(t, out, "Undated")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("BEGIN:VEVENT")))
}

func TestServiceWithoutCRM(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := NewService(Deps{Events: mem, Statuses: mem})
	ctx := context.Background()

	_, err := svc.ExternalEvents(ctx, crm.Session{}, nil)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = svc.ExternalEvent(ctx, crm.Session{}, "1")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = svc.Master(ctx, crm.Session{})
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = svc.RequestExternalUpdate(ctx, crm.Session{}, "1", models.EventInput{})
	assert.ErrorIs(t, err, errors.ErrNotifierUnavailable)
	assert.False(t, errors.IsAuth(err))

	name, color := "Confirmado", "#0f0"
	st, err := svc.CreateStatus(ctx, models.StatusInput{Name: &name, Color: &color})
	require.NoError(t, err)
	ev, err := svc.CreateEvent(ctx, &crm.Session{AccessToken: "t"}, eventInput(t, st.ID))
	require.NoError(t, err, "local writes never need the CRM")
	assert.Equal(t, models.ProvenanceLocal, ev.Source)
}
