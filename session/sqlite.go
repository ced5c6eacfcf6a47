package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
	// mu serializes writers so Order assignment never races inside SQLite's
	// deferred transactions.
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// runs migrations. path may be ":memory:".
func NewSQLiteStore(path string) (Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("session: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}
	// One connection keeps pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: pragma %q: %w", p, err)
		}
	}

	s := &sqliteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: migration: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			board_id   TEXT    NOT NULL,
			owner_id   TEXT    NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1,
			created_at TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_board_owner ON sessions(board_id, owner_id);

		CREATE TABLE IF NOT EXISTS board_current_session (
			board_id   TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT    PRIMARY KEY,
			session_id   TEXT    NOT NULL REFERENCES sessions(id),
			ord          INTEGER NOT NULL,
			role         TEXT    NOT NULL,
			content      TEXT    NOT NULL,
			tool_call_id TEXT,
			tool_calls   TEXT,
			created_at   TEXT    NOT NULL,
			UNIQUE(session_id, ord)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) CreateSession(ctx context.Context, boardID, ownerID string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        newID(),
		BoardID:   boardID,
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, board_id, owner_id, active, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		sess.ID, sess.BoardID, sess.OwnerID, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *sqliteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, board_id, owner_id, active, created_at, updated_at FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (*Session, error) {
	var (
		sess             Session
		active           int
		created, updated string
	)
	dest := append([]any{&sess.ID, &sess.BoardID, &sess.OwnerID, &active, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	sess.Active = active != 0
	var err error
	if sess.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("session %s: bad created_at: %w", sess.ID, err)
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("session %s: bad updated_at: %w", sess.ID, err)
	}
	return &sess, nil
}

func (s *sqliteStore) ListSessions(ctx context.Context, boardID, ownerID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.board_id, s.owner_id, s.active, s.created_at, s.updated_at,
		       (c.session_id IS NOT NULL) AS current,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		FROM sessions s
		LEFT JOIN board_current_session c ON c.board_id = s.board_id AND c.session_id = s.id
		WHERE s.board_id = ? AND s.owner_id = ?
		ORDER BY s.updated_at DESC, s.id DESC`,
		boardID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			current int
			count   int
		)
		sess, err := scanSession(rows, &current, &count)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Session: *sess, Current: current != 0, MessageCount: count})
	}
	return out, rows.Err()
}

func (s *sqliteStore) CurrentSession(ctx context.Context, boardID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.board_id, s.owner_id, s.active, s.created_at, s.updated_at
		FROM board_current_session c JOIN sessions s ON s.id = c.session_id
		WHERE c.board_id = ?`, boardID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no current session for board %s", ErrNotFound, boardID)
	}
	return sess, err
}

func (s *sqliteStore) SetCurrent(ctx context.Context, boardID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO board_current_session (board_id, session_id)
		SELECT board_id, id FROM sessions WHERE id = ? AND board_id = ?
		ON CONFLICT(board_id) DO UPDATE SET session_id = excluded.session_id`,
		sessionID, boardID,
	)
	if err != nil {
		return fmt.Errorf("failed to set current session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

func (s *sqliteStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ord, role, content, tool_call_id, tool_calls, created_at
		FROM messages WHERE session_id = ? ORDER BY ord ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m          Message
			role       string
			toolCallID sql.NullString
			toolCalls  sql.NullString
			created    string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Order, &role, &m.Content, &toolCallID, &toolCalls, &created); err != nil {
			return nil, err
		}
		m.Role = protocol.Role(role)
		m.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("message %s: bad tool_calls: %w", m.ID, err)
			}
		}
		if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("message %s: bad created_at: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) AppendMessages(ctx context.Context, sessionID string, msgs ...protocol.Message) ([]Message, error) {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now.Format(timeLayout), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	stored := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return nil, fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		var toolCallID any
		if m.ToolCallID != "" {
			toolCallID = m.ToolCallID
		}

		id := newID()
		var order int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (id, session_id, ord, role, content, tool_call_id, tool_calls, created_at)
			SELECT ?, ?, COALESCE(MAX(ord), 0) + 1, ?, ?, ?, ?, ?
			FROM messages WHERE session_id = ?
			RETURNING ord`,
			id, sessionID, string(m.Role), m.Content, toolCallID, toolCalls, now.Format(timeLayout), sessionID,
		).Scan(&order)
		if err != nil {
			return nil, fmt.Errorf("failed to append message: %w", err)
		}

		stored = append(stored, Message{
			Message:   m.Clone(),
			ID:        id,
			SessionID: sessionID,
			Order:     order,
			CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit messages: %w", err)
	}
	return stored, nil
}
