// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the persistence boundary consumed by the orchestrator and the
// health monitor.
type Store interface {
	GetAccount(ctx context.Context, username string) (Account, error)
	ListWaiting(ctx context.Context) ([]Account, error)
	// ListOpen returns accounts with an open browser and a status of
	// success or partial_failed, i.e. the health monitor's worklist.
	ListOpen(ctx context.Context) ([]Account, error)
	CreateAccount(ctx context.Context, username, password string) error
	UpdateAccount(ctx context.Context, username string, upd AccountUpdate) error
	// CloseAllOpen flips browser_open off for every open account and
	// records the given message. Returns the number of rows touched.
	CloseAllOpen(ctx context.Context, message string) (int64, error)

	CreateSession(ctx context.Context, username string, start time.Time) (string, error)
	UpdateSessionDuration(ctx context.Context, sessionID string, minutes int) error
	CloseSession(ctx context.Context, sessionID string, end time.Time, minutes int, status SessionStatus) error
	DailyStats(ctx context.Context, username string, day time.Time) (DailyStats, error)

	AppendLog(ctx context.Context, entry LogEntry) error
}

// DBPool abstracts pgxpool.Pool so the implementation can be exercised with
// pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Store implementation.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*Postgres)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const accountColumns = `username, password, status, browser_open, login_time, message, last_updated`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.Username, &a.Password, &a.Status, &a.BrowserOpen, &a.LoginTime, &a.Message, &a.LastUpdated)
	return a, err
}

// GetAccount fetches a single account by username.
func (p *Postgres) GetAccount(ctx context.Context, username string) (Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE username = $1;
	`, username)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("account %q: %w", username, ErrNotFound)
		}
		return Account{}, fmt.Errorf("failed to query account %q: %w", username, err)
	}
	return a, nil
}

func (p *Postgres) listAccounts(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during account row iteration: %w", err)
	}
	return accounts, nil
}

// ListWaiting returns accounts queued for an initial or recovery login.
func (p *Postgres) ListWaiting(ctx context.Context) ([]Account, error) {
	return p.listAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE status = $1
		ORDER BY last_updated ASC;
	`, StatusWaiting)
}

// ListOpen returns the health monitor's worklist.
func (p *Postgres) ListOpen(ctx context.Context) ([]Account, error) {
	return p.listAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE browser_open = TRUE AND status IN ($1, $2)
		ORDER BY username ASC;
	`, StatusSuccess, StatusPartialFailed)
}

// CreateAccount inserts a new waiting account. Re-importing an existing
// username refreshes its password but keeps its state.
func (p *Postgres) CreateAccount(ctx context.Context, username, password string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (username, password, status, browser_open, message, last_updated)
		VALUES ($1, $2, $3, FALSE, '', now())
		ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password;
	`, username, password, StatusWaiting)
	if err != nil {
		return fmt.Errorf("failed to create account %q: %w", username, err)
	}
	return nil
}

// UpdateAccount applies a partial update; nil fields keep their value.
func (p *Postgres) UpdateAccount(ctx context.Context, username string, upd AccountUpdate) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET
			status = COALESCE($2, status),
			browser_open = COALESCE($3, browser_open),
			login_time = COALESCE($4, login_time),
			message = COALESCE($5, message),
			last_updated = now()
		WHERE username = $1;
	`, username, upd.Status, upd.BrowserOpen, upd.LoginTime, upd.Message)
	if err != nil {
		return fmt.Errorf("failed to update account %q: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	return nil
}

// CloseAllOpen marks every open account as closed, e.g. on global shutdown.
func (p *Postgres) CloseAllOpen(ctx context.Context, message string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET browser_open = FALSE, message = $1, last_updated = now()
		WHERE browser_open = TRUE;
	`, message)
	if err != nil {
		return 0, fmt.Errorf("failed to close open accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateSession inserts a new active session record and returns its id.
func (p *Postgres) CreateSession(ctx context.Context, username string, start time.Time) (string, error) {
	id := uuid.NewString()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, username, start_time, duration, is_active, status)
		VALUES ($1, $2, $3, 0, TRUE, $4);
	`, id, username, start.UTC(), SessionActive)
	if err != nil {
		return "", fmt.Errorf("failed to create session for %q: %w", username, err)
	}
	return id, nil
}

// UpdateSessionDuration refreshes the running duration of an active session.
// Closed sessions are left alone, so a late tick cannot clobber the final
// duration written by CloseSession.
func (p *Postgres) UpdateSessionDuration(ctx context.Context, sessionID string, minutes int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions SET duration = $2
		WHERE id = $1 AND is_active = TRUE;
	`, sessionID, minutes)
	if err != nil {
		return fmt.Errorf("failed to update session %s duration: %w", sessionID, err)
	}
	return nil
}

// CloseSession finalizes a session record.
func (p *Postgres) CloseSession(ctx context.Context, sessionID string, end time.Time, minutes int, status SessionStatus) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions SET end_time = $2, duration = $3, is_active = FALSE, status = $4
		WHERE id = $1;
	`, sessionID, end.UTC(), minutes, status)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", sessionID, err)
	}
	return nil
}

// DailyStats aggregates session minutes for one account on one day.
func (p *Postgres) DailyStats(ctx context.Context, username string, day time.Time) (DailyStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats DailyStats
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(duration), 0),
		       COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0)
		FROM sessions
		WHERE username = $1 AND start_time >= $2 AND start_time < $3;
	`, username, dayStart.UTC(), dayEnd.UTC()).Scan(&stats.TotalDuration, &stats.ActiveSessions)
	if err != nil {
		return DailyStats{}, fmt.Errorf("failed to query daily stats for %q: %w", username, err)
	}
	return stats, nil
}

// AppendLog inserts one audit record. Logs are append-only.
func (p *Postgres) AppendLog(ctx context.Context, entry LogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	details := []byte("{}")
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			p.log.Warn("Failed to marshal log details, storing empty object.", zap.Error(err))
		} else {
			details = b
		}
	}

	var username any
	if entry.Username != "" {
		username = entry.Username
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO logs (username, ts, status, reason, details)
		VALUES ($1, $2, $3, $4, $5);
	`, username, ts.UTC(), entry.Status, entry.Reason, details)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}
