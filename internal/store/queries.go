package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/models"
)

const eventColumns = `id, source, start_date, start_time, end_date, end_time,
	event_name, artist_name, artist_type, city, venue, artist_amount,
	promoter_name, promoter_phone, promoter_email, status_id, created_at, updated_at`

const statusColumns = `id, name, color, created_at, updated_at`

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanEvent(row scannable) (*models.Event, error) {
	var ev models.Event
	var source string
	var startDate, startTime, endDate, endTime, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&ev.ID, &source, &startDate, &startTime, &endDate, &endTime,
		&ev.EventName, &ev.ArtistName, &ev.ArtistType, &ev.City, &ev.Venue, &ev.ArtistFee,
		&ev.PromoterName, &ev.PromoterPhone, &ev.PromoterEmail, &ev.StatusID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Source, _ = models.ParseProvenance(source)
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&ev.StartDate, startDate},
		{&ev.StartTime, startTime},
		{&ev.EndDate, endDate},
		{&ev.EndTime, endTime},
		{&ev.CreatedAt, createdAt},
		{&ev.UpdatedAt, updatedAt},
	} {
		t, err := decodeTime(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = t
	}
	return &ev, nil
}

func scanStatus(row scannable) (*models.Status, error) {
	var (
		st                   models.Status
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Color, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if t, err := decodeTime(createdAt); err != nil {
		return nil, err
	} else if t != nil {
		st.CreatedAt = *t
	}
	if t, err := decodeTime(updatedAt); err != nil {
		return nil, err
	} else if t != nil {
		st.UpdatedAt = *t
	}
	return &st, nil
}

func eventArgs(ev *models.Event) []any {
	return []any{
		string(ev.Source),
		encodeTime(ev.StartDate), encodeTime(ev.StartTime), encodeTime(ev.EndDate), encodeTime(ev.EndTime),
		ev.EventName, ev.ArtistName, ev.ArtistType, ev.City, ev.Venue, ev.ArtistFee,
		ev.PromoterName, ev.PromoterPhone, ev.PromoterEmail, ev.StatusID,
		encodeTime(ev.CreatedAt), encodeTime(ev.UpdatedAt),
	}
}

// Event operations

func (s *SQLStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	args := append([]any{ev.ID}, eventArgs(ev)...)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create event", Err: err}
	}
	return nil
}

func (s *SQLStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)
	ev, err := scanEvent(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.ErrNotFound{Kind: "event", ID: id}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get event", Err: err}
	}
	return ev, nil
}

func (s *SQLStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list events", Err: err}
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan event", Err: err}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list events", Err: err}
	}
	return events, nil
}

func (s *SQLStore) UpdateEvent(ctx context.Context, ev *models.Event) error {
	args := append(eventArgs(ev), ev.ID)
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE events SET
			source = ?, start_date = ?, start_time = ?, end_date = ?, end_time = ?,
			event_name = ?, artist_name = ?, artist_type = ?, city = ?, venue = ?, artist_amount = ?,
			promoter_name = ?, promoter_phone = ?, promoter_email = ?, status_id = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?`), args...)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update event", Err: err}
	}
	return affectedOrNotFound(result, "event", ev.ID)
}

func (s *SQLStore) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM events WHERE id = ?`), id)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete event", Err: err}
	}
	return affectedOrNotFound(result, "event", id)
}

// Status operations

func (s *SQLStore) CreateStatus(ctx context.Context, st *models.Status) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO statuses (`+statusColumns+`) VALUES (?, ?, ?, ?, ?)`),
		st.ID, st.Name, st.Color, encodeTime(&st.CreatedAt), encodeTime(&st.UpdatedAt))
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create status", Err: err}
	}
	return nil
}

func (s *SQLStore) GetStatus(ctx context.Context, id string) (*models.Status, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+statusColumns+` FROM statuses WHERE id = ?`), id)
	st, err := scanStatus(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.ErrNotFound{Kind: "status", ID: id}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get status", Err: err}
	}
	return st, nil
}

func (s *SQLStore) ListStatuses(ctx context.Context) ([]*models.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM statuses ORDER BY seq`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list statuses", Err: err}
	}
	defer rows.Close()

	statuses := []*models.Status{}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan status", Err: err}
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list statuses", Err: err}
	}
	return statuses, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, st *models.Status) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE statuses SET name = ?, color = ?, updated_at = ? WHERE id = ?`),
		st.Name, st.Color, encodeTime(&st.UpdatedAt), st.ID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update status", Err: err}
	}
	return affectedOrNotFound(result, "status", st.ID)
}

func (s *SQLStore) DeleteStatus(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM statuses WHERE id = ?`), id)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete status", Err: err}
	}
	return affectedOrNotFound(result, "status", id)
}

// Session operations

func (s *SQLStore) GetCredentials(ctx context.Context, sessionID string) (*models.Credentials, error) {
	var c models.Credentials
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT access_token, refresh_token, expires_in, issued_at, api_domain
		FROM sessions WHERE id = ?`), sessionID).
		Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresIn, &c.IssuedAt, &c.APIDomain)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get credentials", Err: err}
	}
	return &c, nil
}

func (s *SQLStore) PutCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error {
	if err := creds.Validate(); err != nil {
		return &errors.ErrValidation{Field: "credentials", Err: err}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, access_token, refresh_token, expires_in, issued_at, api_domain, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_in = excluded.expires_in,
			issued_at = excluded.issued_at,
			api_domain = excluded.api_domain,
			updated_at = excluded.updated_at`),
		sessionID, creds.AccessToken, creds.RefreshToken, creds.ExpiresIn, creds.IssuedAt, creds.APIDomain, s.now().Unix())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "put credentials", Err: err}
	}
	return nil
}

func (s *SQLStore) DeleteCredentials(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), sessionID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete credentials", Err: err}
	}
	return nil
}

func (s *SQLStore) PurgeSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE updated_at < ?`), before.Unix())
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "purge sessions", Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "purge sessions", Err: err}
	}
	return int(n), nil
}

func affectedOrNotFound(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "rows affected", Err: err}
	}
	if n == 0 {
		return &errors.ErrNotFound{Kind: kind, ID: id}
	}
	return nil
}
