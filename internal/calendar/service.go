package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/stagecal/stagecal/internal/changefeed"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/idgen"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stagecal/stagecal/internal/store"
)

// CRM is the part of crm.Client the service uses.
type CRM interface {
	TaskCreator
	ListDeals(ctx context.Context, s crm.Session, r *crm.DateRange) ([]crm.Deal, error)
	GetDeal(ctx context.Context, s crm.Session, id string) (*crm.Deal, error)
	Enrich(ctx context.Context, s crm.Session, deals []crm.Deal) []crm.Enrichment
	Master(ctx context.Context, s crm.Session) (*models.MasterData, error)
}

var _ CRM = (*crm.Client)(nil)

// Deps wires a Service. Notifier, Feed, Logger and Metrics are optional.
type Deps struct {
	CRM      CRM
	Events   store.EventStore
	Statuses store.StatusStore
	Notifier *Notifier
	Feed     *changefeed.Feed
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
}

// Service serves external, local and aggregated events.
type Service struct {
	crm      CRM
	events   store.EventStore
	statuses store.StatusStore
	notifier *Notifier
	feed     *changefeed.Feed
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		crm:      d.CRM,
		events:   d.Events,
		statuses: d.Statuses,
		notifier: d.Notifier,
		feed:     d.Feed,
		logger:   d.Logger,
		metrics:  d.Metrics,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.feed == nil {
		s.feed = changefeed.NewFeed(nil, "", s.logger)
	}
	if s.notifier == nil && d.CRM != nil {
		s.notifier = NewNotifier(d.CRM, DefaultNotifierConfig(), s.logger, s.metrics)
	}
	return s
}

// External events

// ExternalEvents lists deals, optionally inside r, enriched and normalized.
// Without a CRM client every external call is ErrUnauthenticated.
func (s *Service) ExternalEvents(ctx context.Context, sess crm.Session, r *crm.DateRange) ([]*models.Event, error) {
	if s.crm == nil {
		return nil, errors.ErrUnauthenticated
	}
	deals, err := s.crm.ListDeals(ctx, sess, r)
	if err != nil {
		return nil, err
	}
	events, err := s.normalize(ctx, sess, deals)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEventsServed(string(models.ProvenanceExternal), len(events))
	return events, nil
}

// ExternalEvent fetches one deal. Unknown ids are *errors.ErrNotFound.
func (s *Service) ExternalEvent(ctx context.Context, sess crm.Session, id string) (*models.Event, error) {
	if s.crm == nil {
		return nil, errors.ErrUnauthenticated
	}
	deal, err := s.crm.GetDeal(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	events, err := s.normalize(ctx, sess, []crm.Deal{*deal})
	if err != nil {
		return nil, err
	}
	return events[0], nil
}

func (s *Service) normalize(ctx context.Context, sess crm.Session, deals []crm.Deal) ([]*models.Event, error) {
	events := make([]*models.Event, 0, len(deals))
	if len(deals) == 0 {
		return events, nil
	}

	statuses, err := s.statuses.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading statuses: %w", err)
	}
	enrichments := s.crm.Enrich(ctx, sess, deals)
	for i, d := range deals {
		events = append(events, FromDeal(d, enrichments[i], ResolveStage(statuses, d.Stage)))
	}
	return events, nil
}

// Master returns the CRM lookup lists for the booking form.
func (s *Service) Master(ctx context.Context, sess crm.Session) (*models.MasterData, error) {
	if s.crm == nil {
		return nil, errors.ErrUnauthenticated
	}
	return s.crm.Master(ctx, sess)
}

// AllEvents returns every external event followed by every local event.
// A non-nil range narrows the CRM listing only.
func (s *Service) AllEvents(ctx context.Context, sess crm.Session, r *crm.DateRange) ([]*models.Event, error) {
	external, err := s.ExternalEvents(ctx, sess, r)
	if err != nil {
		return nil, err
	}
	local, err := s.LocalEvents(ctx)
	if err != nil {
		return nil, err
	}
	return Merge(external, local), nil
}

// RequestExternalUpdate files an update task for deal id. The deal itself
// and the local store are left untouched; a notifier failure, including a
// missing notifier, is returned.
func (s *Service) RequestExternalUpdate(ctx context.Context, sess crm.Session, id string, in models.EventInput) (*models.Event, error) {
	if s.notifier == nil {
		return nil, errors.ErrNotifierUnavailable
	}
	ev := &models.Event{ID: id, Source: models.ProvenanceExternal}
	in.Apply(ev)
	ev.Source = models.ProvenanceExternal
	if err := s.notifier.NotifyUpdate(ctx, sess, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Local events

// LocalEvents lists local events with their status resolved.
func (s *Service) LocalEvents(ctx context.Context) ([]*models.Event, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := s.statuses.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Status, len(statuses))
	for _, st := range statuses {
		byID[st.ID] = st
	}
	for _, ev := range events {
		ev.Status = nil
		if st, ok := byID[ev.StatusID]; ok {
			ev.Status = st.Ref()
		}
	}
	s.metrics.RecordEventsServed(string(models.ProvenanceLocal), len(events))
	return events, nil
}

// GetEvent returns one local event.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ev), nil
}

// CreateEvent stores a new local event. With a CRM session a create task
// is filed as well; its failure does not fail the call.
func (s *Service) CreateEvent(ctx context.Context, sess *crm.Session, in models.EventInput) (*models.Event, error) {
	ev := &models.Event{}
	in.Apply(ev)
	ev.Source = models.ProvenanceLocal
	if err := s.checkEvent(ctx, ev); err != nil {
		return nil, err
	}

	id, err := idgen.New(idgen.EventPrefix)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ev.ID = id
	ev.CreatedAt, ev.UpdatedAt = &now, &now

	if err := s.events.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	ev = s.resolve(ctx, ev)

	if sess != nil && s.notifier != nil {
		// Logged inside the notifier.
		_ = s.notifier.NotifyCreate(ctx, *sess, ev)
	} else {
		s.logger.DebugWithContext(ctx, "create task skipped, no crm session", "event_id", ev.ID)
	}
	s.feed.EventChanged(ctx, changefeed.ActionCreated, ev)
	return ev, nil
}

// UpdateEvent applies a patch to a local event.
func (s *Service) UpdateEvent(ctx context.Context, id string, in models.EventInput) (*models.Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Apply(ev)
	ev.ID = id
	ev.Source = models.ProvenanceLocal
	if err := s.checkEvent(ctx, ev); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ev.UpdatedAt = &now

	if err := s.events.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	ev = s.resolve(ctx, ev)
	s.feed.EventChanged(ctx, changefeed.ActionUpdated, ev)
	return ev, nil
}

// DeleteEvent removes a local event and returns it as it was.
func (s *Service) DeleteEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.events.DeleteEvent(ctx, id); err != nil {
		return nil, err
	}
	ev = s.resolve(ctx, ev)
	s.feed.EventChanged(ctx, changefeed.ActionDeleted, ev)
	return ev, nil
}

func (s *Service) checkEvent(ctx context.Context, ev *models.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if _, err := s.statuses.GetStatus(ctx, ev.StatusID); err != nil {
		if errors.IsNotFound(err) {
			return &errors.ErrValidation{Field: "status", Err: fmt.Errorf("unknown status %q", ev.StatusID)}
		}
		return err
	}
	return nil
}

// resolve attaches the current status; a dangling reference leaves nil.
func (s *Service) resolve(ctx context.Context, ev *models.Event) *models.Event {
	ev.Status = nil
	if ev.StatusID == "" {
		return ev
	}
	st, err := s.statuses.GetStatus(ctx, ev.StatusID)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.logger.WarnWithContext(ctx, "status lookup failed", "status_id", ev.StatusID, "error", err)
		}
		return ev
	}
	ev.Status = st.Ref()
	return ev
}

// Statuses

func (s *Service) ListStatuses(ctx context.Context) ([]*models.Status, error) {
	return s.statuses.ListStatuses(ctx)
}

func (s *Service) GetStatus(ctx context.Context, id string) (*models.Status, error) {
	return s.statuses.GetStatus(ctx, id)
}

func (s *Service) CreateStatus(ctx context.Context, in models.StatusInput) (*models.Status, error) {
	st := &models.Status{}
	in.Apply(st)
	if err := st.Validate(); err != nil {
		return nil, err
	}
	id, err := idgen.New(idgen.StatusPrefix)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	st.ID = id
	st.CreatedAt, st.UpdatedAt = now, now

	if err := s.statuses.CreateStatus(ctx, st); err != nil {
		return nil, err
	}
	s.feed.StatusChanged(ctx, changefeed.ActionCreated, st)
	return st, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, in models.StatusInput) (*models.Status, error) {
	st, err := s.statuses.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Apply(st)
	if err := st.Validate(); err != nil {
		return nil, err
	}
	st.UpdatedAt = s.now().UTC()

	if err := s.statuses.UpdateStatus(ctx, st); err != nil {
		return nil, err
	}
	s.feed.StatusChanged(ctx, changefeed.ActionUpdated, st)
	return st, nil
}

// DeleteStatus removes a status. Events referencing it render status null.
func (s *Service) DeleteStatus(ctx context.Context, id string) (*models.Status, error) {
	st, err := s.statuses.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.statuses.DeleteStatus(ctx, id); err != nil {
		return nil, err
	}
	s.feed.StatusChanged(ctx, changefeed.ActionDeleted, st)
	return st, nil
}
