package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	st, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return st, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func accountRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"username", "password", "status", "browser_open", "login_time", "message", "last_updated",
	})
}

func TestGetAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the account", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		now := time.Now()
		mockPool.ExpectQuery(`SELECT .* FROM accounts WHERE username = \$1`).
			WithArgs("student1").
			WillReturnRows(accountRows().AddRow(
				"student1", "hunter2", StatusWaiting, false, (*time.Time)(nil), "", now,
			))

		a, err := st.GetAccount(ctx, "student1")
		require.NoError(t, err)
		assert.Equal(t, "student1", a.Username)
		assert.Equal(t, StatusWaiting, a.Status)
		assert.False(t, a.BrowserOpen)
		assert.Nil(t, a.LoginTime)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("maps no rows to ErrNotFound", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		mockPool.ExpectQuery(`SELECT .* FROM accounts WHERE username = \$1`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := st.GetAccount(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListOpen(t *testing.T) {
	st, mockPool := newMockStore(t)

	now := time.Now()
	loginTime := now.Add(-time.Hour)
	mockPool.ExpectQuery(`SELECT .* FROM accounts WHERE browser_open = TRUE AND status IN \(\$1, \$2\)`).
		WithArgs(StatusSuccess, StatusPartialFailed).
		WillReturnRows(accountRows().
			AddRow("a1", "p1", StatusSuccess, true, &loginTime, "healthy on both platforms", now).
			AddRow("a2", "p2", StatusPartialFailed, true, &loginTime, "classroom down", now))

	accounts, err := st.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "a1", accounts[0].Username)
	assert.Equal(t, StatusPartialFailed, accounts[1].Status)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreateAccount(t *testing.T) {
	st, mockPool := newMockStore(t)

	mockPool.ExpectExec(`INSERT INTO accounts`).
		WithArgs("student1", "hunter2", StatusWaiting).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.CreateAccount(context.Background(), "student1", "hunter2"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpdateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a partial update", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		upd := AccountUpdate{
			Status:      StatusPtr(StatusSuccess),
			BrowserOpen: BoolPtr(true),
			Message:     StringPtr("logged in on both platforms"),
		}
		mockPool.ExpectExec(`UPDATE accounts SET`).
			WithArgs("student1", upd.Status, upd.BrowserOpen, upd.LoginTime, upd.Message).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, st.UpdateAccount(ctx, "student1", upd))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		upd := AccountUpdate{Status: StatusPtr(StatusFailed)}
		mockPool.ExpectExec(`UPDATE accounts SET`).
			WithArgs("ghost", upd.Status, upd.BrowserOpen, upd.LoginTime, upd.Message).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := st.UpdateAccount(ctx, "ghost", upd)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCloseAllOpen(t *testing.T) {
	st, mockPool := newMockStore(t)

	mockPool.ExpectExec(`UPDATE accounts SET browser_open = FALSE`).
		WithArgs("Session terminated").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := st.CloseAllOpen(context.Background(), "Session terminated")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create returns a usable id", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		start := time.Now()
		mockPool.ExpectExec(`INSERT INTO sessions`).
			WithArgs(pgxmock.AnyArg(), "student1", start.UTC(), SessionActive).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		id, err := st.CreateSession(ctx, "student1", start)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("duration update only touches active sessions", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		mockPool.ExpectExec(flexibleSQLMatcher(`
			UPDATE sessions SET duration = $2
			WHERE id = $1 AND is_active = TRUE;
		`)).
			WithArgs("sess-1", 42).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, st.UpdateSessionDuration(ctx, "sess-1", 42))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("close finalizes the record", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		end := time.Now()
		mockPool.ExpectExec(`UPDATE sessions SET end_time`).
			WithArgs("sess-1", end.UTC(), 240, SessionCompleted).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, st.CloseSession(ctx, "sess-1", end, 240, SessionCompleted))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestDailyStats(t *testing.T) {
	st, mockPool := newMockStore(t)

	mockPool.ExpectQuery(`SELECT COALESCE\(SUM\(duration\), 0\)`).
		WithArgs("student1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active"}).AddRow(125, 1))

	stats, err := st.DailyStats(context.Background(), "student1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 125, stats.TotalDuration)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAppendLog(t *testing.T) {
	ctx := context.Background()

	t.Run("stores details as JSON", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		mockPool.ExpectExec(`INSERT INTO logs`).
			WithArgs("student1", pgxmock.AnyArg(), "success", "logged in", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := st.AppendLog(ctx, LogEntry{
			Username: "student1",
			Status:   "success",
			Reason:   "logged in",
			Details:  map[string]any{"session_id": "sess-1"},
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("system events carry a null username", func(t *testing.T) {
		st, mockPool := newMockStore(t)

		mockPool.ExpectExec(`INSERT INTO logs`).
			WithArgs(nil, pgxmock.AnyArg(), "shutdown", "engine stopped", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := st.AppendLog(ctx, LogEntry{
			Status: "shutdown",
			Reason: "engine stopped",
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
