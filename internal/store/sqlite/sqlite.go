// Package sqlite implements the swap store on an embedded SQLite database.
// It is the default persistence for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/swap"
)

// timeLayout is RFC3339 with fixed-width nanoseconds so that string
// comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a SQLite database handle.
type Store struct {
	db *sql.DB
	q  querier
}

var _ swap.Store = (*Store)(nil)

// Open connects to the SQLite database at path and bootstraps the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids "database is locked" errors under
	// concurrent request handling.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, q: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('busy','swappable')),
		owner_id TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_owner_start ON events(owner_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		from_id TEXT NOT NULL REFERENCES users(id),
		to_id TEXT NOT NULL REFERENCES users(id),
		event_id TEXT NOT NULL REFERENCES events(id),
		status TEXT NOT NULL CHECK (status IN ('pending','accepted','rejected')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_unique_pending
		ON requests(from_id, to_id, event_id) WHERE status = 'pending';
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		token_hash TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		revoked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Users() swap.UserStore                 { return userStore{s.q} }
func (s *Store) Events() swap.EventStore               { return eventStore{s.q} }
func (s *Store) Requests() swap.RequestStore           { return requestStore{s.q} }
func (s *Store) Notifications() swap.NotificationStore { return notificationStore{s.q} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return refreshStore{s.q} }

// Atomic runs fn inside a transaction.
func (s *Store) Atomic(ctx context.Context, fn func(swap.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- users ---

type userStore struct{ q querier }

func (s userStore) Create(ctx context.Context, u *swap.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, boolToInt(u.IsAdmin), fmtTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return swap.ErrAlreadyExists
	}
	return err
}

func (s userStore) Find(ctx context.Context, id string) (*swap.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, is_admin, created_at
		FROM users WHERE id = ?
	`, id))
}

func (s userStore) FindByEmail(ctx context.Context, email string) (*swap.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, is_admin, created_at
		FROM users WHERE email = ?
	`, strings.ToLower(email)))
}

func (s userStore) scanOne(row *sql.Row) (*swap.User, error) {
	var (
		u         swap.User
		isAdmin   int
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &isAdmin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}

// --- events ---

type eventStore struct{ q querier }

const eventColumns = `id, title, description, start_time, end_time, status, owner_id, created_at, updated_at`

func (s eventStore) Create(ctx context.Context, e *swap.Event) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Title, e.Description, fmtTime(e.StartTime), fmtTime(e.EndTime),
		string(e.Status), e.OwnerID, fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	return err
}

func (s eventStore) Find(ctx context.Context, id string) (*swap.Event, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEventRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	return e, err
}

func (s eventStore) ListForOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]swap.Event, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND start_time >= ? AND start_time <= ?
		ORDER BY start_time ASC
	`, ownerID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.Event
	for rows.Next() {
		e, err := scanEventRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s eventStore) ListSwappable(ctx context.Context, excludeOwnerID string) ([]swap.MarketEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.id, e.title, e.description, e.start_time, e.end_time, e.status,
		       e.owner_id, e.created_at, e.updated_at, u.name, u.email
		FROM events e
		JOIN users u ON u.id = e.owner_id
		WHERE e.status = 'swappable' AND e.owner_id <> ?
		ORDER BY e.start_time ASC
	`, excludeOwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.MarketEvent
	for rows.Next() {
		var (
			m          swap.MarketEvent
			start, end string
			created    string
			updated    string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &start, &end, &m.Status,
			&m.OwnerID, &created, &updated, &m.Owner.Name, &m.Owner.Email); err != nil {
			return nil, err
		}
		m.Owner.ID = m.OwnerID
		if err := fillEventTimes(&m.Event, start, end, created, updated); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s eventStore) Update(ctx context.Context, e *swap.Event) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, start_time = ?, end_time = ?, status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, e.Title, e.Description, fmtTime(e.StartTime), fmtTime(e.EndTime),
		string(e.Status), fmtTime(e.UpdatedAt), e.ID, e.OwnerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s eventStore) UpdateStatus(ctx context.Context, id, ownerID string, status swap.EventStatus) (*swap.Event, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE events SET status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, string(status), fmtTime(time.Now()), id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

func (s eventStore) Reassign(ctx context.Context, id, newOwnerID string, status swap.EventStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE events SET owner_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, newOwnerID, string(status), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s eventStore) Delete(ctx context.Context, id, ownerID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanEventRow(scan func(dest ...any) error) (*swap.Event, error) {
	var e swap.Event
	var start, end, created, updated string
	if err := scan(&e.ID, &e.Title, &e.Description, &start, &end, &e.Status,
		&e.OwnerID, &created, &updated); err != nil {
		return nil, err
	}
	if err := fillEventTimes(&e, start, end, created, updated); err != nil {
		return nil, err
	}
	return &e, nil
}

func fillEventTimes(e *swap.Event, start, end, created, updated string) error {
	var err error
	if e.StartTime, err = parseTime(start); err != nil {
		return fmt.Errorf("parse start_time: %w", err)
	}
	if e.EndTime, err = parseTime(end); err != nil {
		return fmt.Errorf("parse end_time: %w", err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return fmt.Errorf("parse updated_at: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return swap.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- requests ---

type requestStore struct{ q querier }

func (s requestStore) Create(ctx context.Context, r *swap.Request) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO requests (id, from_id, to_id, event_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.FromID, r.ToID, r.EventID, string(r.Status), fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt))
	if isUniqueViolation(err) {
		return swap.ErrDuplicateRequest
	}
	return err
}

func (s requestStore) Find(ctx context.Context, id string) (*swap.Request, error) {
	var r swap.Request
	var created, updated string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, event_id, status, created_at, updated_at
		FROM requests WHERE id = ?
	`, id).Scan(&r.ID, &r.FromID, &r.ToID, &r.EventID, &r.Status, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &r, nil
}

func (s requestStore) UpdateStatus(ctx context.Context, id string, status swap.RequestStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE requests SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const requestViewQuery = `
	SELECT r.id, r.status, r.created_at, r.updated_at,
	       f.id, f.name, f.email,
	       t.id, t.name, t.email,
	       e.id, e.title, e.description, e.start_time, e.end_time, e.status, e.owner_id, e.created_at, e.updated_at
	FROM requests r
	JOIN users f ON f.id = r.from_id
	JOIN users t ON t.id = r.to_id
	JOIN events e ON e.id = r.event_id
`

func (s requestStore) View(ctx context.Context, id string) (*swap.RequestView, error) {
	row := s.q.QueryRowContext(ctx, requestViewQuery+` WHERE r.id = ?`, id)
	v, err := scanRequestView(row.Scan)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	return v, err
}

func (s requestStore) ListIncoming(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	return s.list(ctx, `r.to_id = ?`, userID, statuses)
}

func (s requestStore) ListOutgoing(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	return s.list(ctx, `r.from_id = ?`, userID, statuses)
}

func (s requestStore) list(ctx context.Context, where, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	query := requestViewQuery + ` WHERE ` + where
	args := []any{userID}
	if len(statuses) > 0 {
		query += ` AND r.status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.RequestView
	for rows.Next() {
		v, err := scanRequestView(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanRequestView(scan func(dest ...any) error) (*swap.RequestView, error) {
	var v swap.RequestView
	var created, updated string
	var evStart, evEnd, evCreated, evUpdated string
	if err := scan(&v.ID, &v.Status, &created, &updated,
		&v.From.ID, &v.From.Name, &v.From.Email,
		&v.To.ID, &v.To.Name, &v.To.Email,
		&v.Event.ID, &v.Event.Title, &v.Event.Description, &evStart, &evEnd,
		&v.Event.Status, &v.Event.OwnerID, &evCreated, &evUpdated); err != nil {
		return nil, err
	}
	var err error
	if v.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := fillEventTimes(&v.Event, evStart, evEnd, evCreated, evUpdated); err != nil {
		return nil, err
	}
	return &v, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// --- notifications ---

type notificationStore struct{ q querier }

func (s notificationStore) Create(ctx context.Context, n *swap.Notification) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Message, boolToInt(n.Read), fmtTime(n.CreatedAt))
	return err
}

func (s notificationStore) ListForUser(ctx context.Context, userID string) ([]swap.Notification, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, title, message, is_read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.Notification
	for rows.Next() {
		var (
			n       swap.Notification
			isRead  int
			created string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &isRead, &created); err != nil {
			return nil, err
		}
		n.Read = isRead != 0
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s notificationStore) MarkRead(ctx context.Context, id, userID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- refresh tokens ---

type refreshStore struct{ q querier }

func (s refreshStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tok.ID, tok.UserID, tok.TokenHash, fmtTime(tok.ExpiresAt), boolToInt(tok.Revoked), fmtTime(tok.CreatedAt))
	return err
}

func (s refreshStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var (
		tok              auth.RefreshToken
		revoked          int
		expires, created string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens WHERE id = ?
	`, id).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &expires, &revoked, &created)
	if err == sql.ErrNoRows {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tok.Revoked = revoked != 0
	if tok.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if tok.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &tok, nil
}

func (s refreshStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
