// Package pg implements the swap store on PostgreSQL via database/sql and the
// pgx stdlib driver. Schema management lives in migrations/ and cmd/migrate.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/swap"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
	q  querier
}

var _ swap.Store = (*Store)(nil)

// Open connects to PostgreSQL using the given DSN.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

// NewFromDB wraps an existing handle. Used by tests.
func NewFromDB(db *sql.DB) *Store { return &Store{db: db, q: db} }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() swap.UserStore                 { return userStore{s.q} }
func (s *Store) Events() swap.EventStore               { return eventStore{s.q} }
func (s *Store) Requests() swap.RequestStore           { return requestStore{s.q} }
func (s *Store) Notifications() swap.NotificationStore { return notificationStore{s.q} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return refreshStore{s.q} }

// Atomic runs fn inside a serializable transaction.
func (s *Store) Atomic(ctx context.Context, fn func(swap.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users ---

type userStore struct{ q querier }

func (s userStore) Create(ctx context.Context, u *swap.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.IsAdmin, u.CreatedAt)
	if isUniqueViolation(err) {
		return swap.ErrAlreadyExists
	}
	return err
}

func (s userStore) Find(ctx context.Context, id string) (*swap.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, is_admin, created_at
		FROM users WHERE id = $1
	`, id))
}

func (s userStore) FindByEmail(ctx context.Context, email string) (*swap.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, is_admin, created_at
		FROM users WHERE email = $1
	`, strings.ToLower(email)))
}

func (s userStore) scanOne(row *sql.Row) (*swap.User, error) {
	var u swap.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- events ---

type eventStore struct{ q querier }

const eventColumns = `id, title, description, start_time, end_time, status, owner_id, created_at, updated_at`

func (s eventStore) Create(ctx context.Context, e *swap.Event) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Title, e.Description, e.StartTime, e.EndTime, string(e.Status),
		e.OwnerID, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s eventStore) Find(ctx context.Context, id string) (*swap.Event, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	return e, err
}

func (s eventStore) ListForOwnerBetween(ctx context.Context, ownerID string, from, to time.Time) ([]swap.Event, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = $1 AND start_time >= $2 AND start_time <= $3
		ORDER BY start_time ASC
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
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
		WHERE e.status = 'swappable' AND e.owner_id <> $1
		ORDER BY e.start_time ASC
	`, excludeOwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.MarketEvent
	for rows.Next() {
		var m swap.MarketEvent
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.StartTime, &m.EndTime,
			&m.Status, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt,
			&m.Owner.Name, &m.Owner.Email); err != nil {
			return nil, err
		}
		m.Owner.ID = m.OwnerID
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s eventStore) Update(ctx context.Context, e *swap.Event) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, start_time = $3, end_time = $4, status = $5, updated_at = $6
		WHERE id = $7 AND owner_id = $8
	`, e.Title, e.Description, e.StartTime, e.EndTime, string(e.Status), e.UpdatedAt, e.ID, e.OwnerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s eventStore) UpdateStatus(ctx context.Context, id, ownerID string, status swap.EventStatus) (*swap.Event, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE events SET status = $1, updated_at = now()
		WHERE id = $2 AND owner_id = $3
		RETURNING `+eventColumns+`
	`, string(status), id, ownerID)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	return e, err
}

func (s eventStore) Reassign(ctx context.Context, id, newOwnerID string, status swap.EventStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE events SET owner_id = $1, status = $2, updated_at = now()
		WHERE id = $3
	`, newOwnerID, string(status), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s eventStore) Delete(ctx context.Context, id, ownerID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanEvent(scan func(dest ...any) error) (*swap.Event, error) {
	var e swap.Event
	if err := scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime,
		&e.Status, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
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

// --- requests ---

type requestStore struct{ q querier }

func (s requestStore) Create(ctx context.Context, r *swap.Request) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO requests (id, from_id, to_id, event_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.FromID, r.ToID, r.EventID, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return swap.ErrDuplicateRequest
	}
	return err
}

func (s requestStore) Find(ctx context.Context, id string) (*swap.Request, error) {
	var r swap.Request
	err := s.q.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, event_id, status, created_at, updated_at
		FROM requests WHERE id = $1
	`, id).Scan(&r.ID, &r.FromID, &r.ToID, &r.EventID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s requestStore) UpdateStatus(ctx context.Context, id string, status swap.RequestStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE requests SET status = $1, updated_at = now() WHERE id = $2
	`, string(status), id)
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
	row := s.q.QueryRowContext(ctx, requestViewQuery+` WHERE r.id = $1`, id)
	v, err := scanRequestView(row.Scan)
	if err == sql.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	return v, err
}

func (s requestStore) ListIncoming(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	return s.list(ctx, `r.to_id = $1`, userID, statuses)
}

func (s requestStore) ListOutgoing(ctx context.Context, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	return s.list(ctx, `r.from_id = $1`, userID, statuses)
}

func (s requestStore) list(ctx context.Context, where, userID string, statuses []swap.RequestStatus) ([]swap.RequestView, error) {
	query := requestViewQuery + ` WHERE ` + where
	args := []any{userID}
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			args = append(args, string(st))
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND r.status IN (` + strings.Join(marks, ", ") + `)`
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
	if err := scan(&v.ID, &v.Status, &v.CreatedAt, &v.UpdatedAt,
		&v.From.ID, &v.From.Name, &v.From.Email,
		&v.To.ID, &v.To.Name, &v.To.Email,
		&v.Event.ID, &v.Event.Title, &v.Event.Description, &v.Event.StartTime, &v.Event.EndTime,
		&v.Event.Status, &v.Event.OwnerID, &v.Event.CreatedAt, &v.Event.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- notifications ---

type notificationStore struct{ q querier }

func (s notificationStore) Create(ctx context.Context, n *swap.Notification) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Title, n.Message, n.Read, n.CreatedAt)
	return err
}

func (s notificationStore) ListForUser(ctx context.Context, userID string) ([]swap.Notification, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, title, message, is_read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swap.Notification
	for rows.Next() {
		var n swap.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s notificationStore) MarkRead(ctx context.Context, id, userID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
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
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.Revoked, tok.CreatedAt)
	return err
}

func (s refreshStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens WHERE id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.Revoked, &tok.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s refreshStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
