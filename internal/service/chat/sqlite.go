package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	knowledge_base_id TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session_created
	ON messages(session_id, created_at_ms);
`

// SQLiteRepository stores sessions and transcripts in a SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteRepository opens (and if needed creates) the database at path.
// ":memory:" is accepted for tests.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	logger := logging.Component("chat-store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// 单连接避免 :memory: 数据库在多个连接间丢失
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite chat store initialized")
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) InsertSession(ctx context.Context, session chat.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, knowledge_base_id, created_at_ms) VALUES (?, ?, ?)`,
		session.ID, session.KnowledgeBaseID, session.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var (
		session   chat.Session
		createdMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, knowledge_base_id, created_at_ms FROM sessions WHERE id = ?`, sessionID,
	).Scan(&session.ID, &session.KnowledgeBaseID, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("querying session: %w", err)
	}
	session.CreatedAt = time.UnixMilli(createdMs).UTC()
	return session, nil
}

func (r *SQLiteRepository) AppendMessage(ctx context.Context, message chat.Message) error {
	if _, err := r.GetSession(ctx, message.SessionID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, sender, content, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Sender, message.Content, message.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, sender, content, created_at_ms FROM messages
		 WHERE session_id = ? ORDER BY created_at_ms, rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			msg       chat.Message
			createdMs int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &createdMs); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdMs).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
