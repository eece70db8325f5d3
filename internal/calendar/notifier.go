package calendar

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
	"github.com/stagecal/stagecal/internal/models"
)

// TaskCreator writes follow-up tasks to the CRM.
type TaskCreator interface {
	CreateTask(ctx context.Context, s crm.Session, task crm.Task) (string, error)
}

// Notifier turns calendar edits into CRM follow-up tasks. Callers log a
// failed create task and carry on; a failed update task fails the edit.
type Notifier struct {
	tasks   TaskCreator
	cfg     config.NotifierConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNotifier creates a Notifier. cfg is expected to be validated.
func NewNotifier(tasks TaskCreator, cfg config.NotifierConfig, logger *logging.Logger, m *metrics.Metrics) *Notifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{tasks: tasks, cfg: cfg, logger: logger, metrics: m, now: time.Now}
}

// DefaultNotifierConfig is an enabled notifier with default task fields.
func DefaultNotifierConfig() config.NotifierConfig {
	cfg := config.NotifierConfig{Enabled: true}
	_ = cfg.Validate()
	return cfg
}

// NotifyCreate files a "Create New Event" task. Disabled notifiers do nothing.
func (n *Notifier) NotifyCreate(ctx context.Context, s crm.Session, ev *models.Event) error {
	if !n.cfg.Enabled {
		n.metrics.RecordTaskNotification("create", "skipped")
		return nil
	}
	task := n.baseTask(ev)
	task.Subject = "Create New Event: " + ev.EventName
	return n.send(ctx, s, "create", task)
}

// NotifyUpdate files an "Update Event" task linked to the deal ev.ID.
func (n *Notifier) NotifyUpdate(ctx context.Context, s crm.Session, ev *models.Event) error {
	task := n.baseTask(ev)
	task.Subject = "Update Event: " + ev.EventName
	if fields := requestedDealFields(ToDeal(ev)); fields != "" {
		task.Description += "\n\n: : : : Requested deal values : : : :\n" + fields
	}
	task.WhatID = &crm.Lookup{ID: ev.ID, Name: ev.EventName}
	task.SEModule = n.cfg.Module
	return n.send(ctx, s, "update", task)
}

func (n *Notifier) baseTask(ev *models.Event) crm.Task {
	return crm.Task{
		DueDate:     n.now().Add(n.cfg.DueIn).UTC().Format(dayLayout),
		Description: Describe(ev),
		Priority:    n.cfg.Priority,
		Status:      n.cfg.Status,
	}
}

func (n *Notifier) send(ctx context.Context, s crm.Session, kind string, task crm.Task) error {
	id, err := n.tasks.CreateTask(ctx, s, task)
	if err != nil {
		n.metrics.RecordTaskNotification(kind, "failed")
		n.logger.WarnWithContext(ctx, "crm task not created", "kind", kind, "subject", task.Subject, "error", err)
		return err
	}
	n.metrics.RecordTaskNotification(kind, "created")
	n.logger.InfoWithContext(ctx, "crm task created", "kind", kind, "task_id", id)
	return nil
}

// Describe renders the multi-line event summary used as task description.
func Describe(ev *models.Event) string {
	var sb strings.Builder
	line := func(label, value string) {
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteByte('\n')
	}

	sb.WriteString(": : : : Event details : : : :\n")
	line("Event Name", ev.EventName)
	sb.WriteByte('\n')
	line("Start Date", formatPart(ev.StartDate, dayLayout))
	line("Start Time", formatPart(ev.StartTime, "15:04:05"))
	sb.WriteByte('\n')
	line("End Date", formatPart(ev.EndDate, dayLayout))
	line("End Time", formatPart(ev.EndTime, "15:04:05"))
	sb.WriteByte('\n')
	line("Artist Name", ev.ArtistName)
	line("Artist Type", ev.ArtistType)
	line("Artist Amount", strconv.FormatFloat(ev.ArtistFee, 'f', -1, 64))
	sb.WriteByte('\n')
	line("Venue", ev.Venue)
	line("City", ev.City)
	sb.WriteByte('\n')
	line("Promoter Name", ev.PromoterName)
	line("Promoter Phone", ev.PromoterPhone)
	line("Promoter Email", ev.PromoterEmail)

	return strings.TrimSuffix(sb.String(), "\n")
}

// requestedDealFields lists the non-empty deal fields by their CRM API
// names, one "Field: value" per line.
func requestedDealFields(d crm.Deal) string {
	var lines []string
	add := func(field, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, field+": "+value)
		}
	}
	lookup := func(l *crm.Lookup) string {
		if l == nil {
			return ""
		}
		return l.Name
	}

	add("Deal_Name", d.DealName)
	add("Fecha_Inicio_Evento", d.StartsAt)
	add("Fecha_Fin_Evento", d.EndsAt)
	add("Artista", lookup(d.Artist))
	add("Recinto", lookup(d.Venue))
	add("Ciudad", d.City)
	add("Account_Name", lookup(d.Account))
	if d.Fee != nil && *d.Fee != 0 {
		add("Cach", strconv.FormatFloat(*d.Fee, 'f', -1, 64))
	}
	add("Stage", d.Stage)
	return strings.Join(lines, "\n")
}

func formatPart(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}
