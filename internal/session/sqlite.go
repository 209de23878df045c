package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
)

// SQLiteStore persists sessions in a SQLite database so conversations
// survive restarts.
type SQLiteStore struct {
	db      *sql.DB
	policy  Policy
	logger  *zap.SugaredLogger
	now     func() time.Time
	janitor *janitor
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, policy Policy, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.CodeSessionUnavailable, "cannot create session directory", errors.CategorySystem)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSessionUnavailable, "cannot open session database "+path, errors.CategorySystem)
	}

	s := &SQLiteStore{
		db:     db,
		policy: policy,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeSessionUnavailable, "cannot initialize session database", errors.CategorySystem)
	}

	if policy.TTL > 0 {
		s.janitor = startJanitor(policy.sweepEvery(), func() (int, error) {
			return s.Sweep(context.Background())
		}, s.logger)
	}
	return s, nil
}

// openDB opens a single SQLite database with optimal settings.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer; turns are already serialized per session
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		updated_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS session_messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id      TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		tool_calls_json TEXT,
		tool_call_id    TEXT NOT NULL DEFAULT '',
		name            TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_session_messages ON session_messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// updatedAt returns the last touch of a live session.
func (s *SQLiteStore) updatedAt(ctx context.Context, q querier, id string) (time.Time, bool, error) {
	var nanos int64
	err := q.QueryRowContext(ctx, `SELECT updated_at FROM sessions WHERE id = ?`, id).Scan(&nanos)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	updated := time.Unix(0, nanos)
	if s.policy.expired(updated, s.now()) {
		return time.Time{}, false, nil
	}
	return updated, true, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append implements Store. Messages and trimming commit in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, id string, msgs ...model.Message) error {
	if err := checkID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin append")
	}
	defer tx.Rollback()

	if _, live, err := s.updatedAt(ctx, tx, id); err != nil {
		return unavailable(err, "read session")
	} else if !live {
		// drop an expired log before reuse
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return unavailable(err, "reset session")
		}
	}

	if err := s.touch(ctx, tx, id); err != nil {
		return err
	}

	for _, m := range msgs {
		var calls sql.NullString
		if len(m.ToolCalls) > 0 {
			raw, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return errors.Wrap(err, errors.CodeSessionUnavailable, "cannot encode tool calls", errors.CategorySystem)
			}
			calls = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_messages (session_id, role, content, tool_calls_json, tool_call_id, name)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(m.Role), m.Content, calls, m.ToolCallID, m.Name); err != nil {
			return unavailable(err, "append message")
		}
	}

	if s.policy.MaxMessages > 0 {
		if err := s.trim(ctx, tx, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit append")
	}
	return nil
}

func (s *SQLiteStore) touch(ctx context.Context, q querier, id string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sessions (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, s.now().UnixNano())
	if err != nil {
		return unavailable(err, "touch session")
	}
	return nil
}

// trim applies the max-messages policy inside tx.
func (s *SQLiteStore) trim(ctx context.Context, tx *sql.Tx, id string) error {
	rows, err := tx.QueryContext(ctx, `SELECT seq, role FROM session_messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return unavailable(err, "scan session")
	}
	var (
		seqs  []int64
		roles []model.Message
	)
	for rows.Next() {
		var (
			seq  int64
			role string
		)
		if err := rows.Scan(&seq, &role); err != nil {
			rows.Close()
			return unavailable(err, "scan session")
		}
		seqs = append(seqs, seq)
		roles = append(roles, model.Message{Role: model.Role(role)})
	}
	if err := rows.Close(); err != nil {
		return unavailable(err, "scan session")
	}

	start := trimStart(roles, s.policy.MaxMessages)
	if start == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ? AND seq < ?`, id, seqs[start]); err != nil {
		return unavailable(err, "trim session")
	}
	s.logger.Debugw("session_trimmed", "session", id, "dropped", start, "kept", len(seqs)-start)
	return nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, id string) ([]model.Message, error) {
	if _, live, err := s.updatedAt(ctx, s.db, id); err != nil {
		return nil, unavailable(err, "read session")
	} else if !live {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_calls_json, tool_call_id, name
		FROM session_messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, unavailable(err, "read messages")
	}
	defer rows.Close()

	var history []model.Message
	for rows.Next() {
		var (
			m     model.Message
			role  string
			calls sql.NullString
		)
		if err := rows.Scan(&role, &m.Content, &calls, &m.ToolCallID, &m.Name); err != nil {
			return nil, unavailable(err, "read messages")
		}
		m.Role = model.Role(role)
		if calls.Valid {
			if err := json.Unmarshal([]byte(calls.String), &m.ToolCalls); err != nil {
				return nil, errors.Wrap(err, errors.CodeSessionUnavailable, "corrupt tool calls in session "+id, errors.CategorySystem)
			}
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "read messages")
	}
	return history, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin clear")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return unavailable(err, "clear session")
	}
	if err := s.touch(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit clear")
	}
	return nil
}

// Info implements Store.
func (s *SQLiteStore) Info(ctx context.Context, id string) (Info, error) {
	updated, live, err := s.updatedAt(ctx, s.db, id)
	if err != nil {
		return Info{}, unavailable(err, "read session")
	}
	if !live {
		return Info{ID: id}, nil
	}

	info := Info{ID: id, Exists: true, UpdatedAt: updated}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, id).Scan(&info.MessageCount)
	if err != nil {
		return Info{}, unavailable(err, "count messages")
	}
	return info, nil
}

// Sweep deletes expired sessions and their messages.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	if s.policy.TTL <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.policy.TTL).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, unavailable(err, "sweep sessions")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close stops the janitor and closes the database.
func (s *SQLiteStore) Close() error {
	s.janitor.Stop()
	return s.db.Close()
}

func unavailable(err error, op string) error {
	return errors.Wrap(err, errors.CodeSessionUnavailable, "session store: "+op, errors.CategorySystem)
}
