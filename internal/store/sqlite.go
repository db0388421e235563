package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/batepapo.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/batepapo.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// _txlock=immediate takes the write lock at BEGIN, so read-then-write
	// transactions cannot interleave.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS participants (
		name TEXT PRIMARY KEY,
		last_status INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		from_name TEXT NOT NULL,
		to_name TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		time TEXT NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_last_status ON participants(last_status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// Join inserts a participant unless the name is already taken.
func (s *SQLiteStore) Join(ctx context.Context, name string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants (name, last_status) VALUES (?, ?)`,
		name, now.UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	return affected(res, ErrAlreadyExists)
}

// Refresh moves the heartbeat of an existing participant.
func (s *SQLiteStore) Refresh(ctx context.Context, name string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_status = ? WHERE name = ?`,
		now.UnixMilli(), name)
	if err != nil {
		return unavailable(err)
	}
	return affected(res, ErrNotFound)
}

// affected returns none when the statement touched no row.
func affected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return none
	}
	return nil
}

// Participant returns a single participant.
func (s *SQLiteStore) Participant(ctx context.Context, name string) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, last_status FROM participants WHERE name = ?`, name,
	).Scan(&p.Name, &p.LastHeartbeat)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return p, nil
}

// Participants returns every registered participant, sorted by name.
func (s *SQLiteStore) Participants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, last_status FROM participants ORDER BY name`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.Name, &p.LastHeartbeat); err != nil {
			return nil, unavailable(err)
		}
		participants = append(participants, p)
	}
	return participants, classify(rows.Err())
}

// Evict removes a participant whose heartbeat is older than cutoff.
func (s *SQLiteStore) Evict(ctx context.Context, name string, cutoff time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE name = ? AND last_status < ?`,
		name, cutoff.UnixMilli())
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Append stores a new message.
func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	msg.Stamp(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.From, msg.To, msg.Text, string(msg.Type), msg.Time, msg.Timestamp)
	return classify(err)
}

// Get returns a message by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanSQLMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return msg, nil
}

// Edit replaces the mutable fields of a message owned by requester.
func (s *SQLiteStore) Edit(ctx context.Context, id, requester string, edit models.MessageEdit) (*models.Message, error) {
	var msg *models.Message
	err := s.withOwnedMessage(ctx, id, requester, func(tx *sql.Tx, m *models.Message) error {
		m.Apply(edit)
		msg = m
		_, err := tx.ExecContext(ctx,
			`UPDATE messages SET to_name = ?, text = ?, type = ? WHERE id = ?`,
			m.To, m.Text, string(m.Type), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes a message owned by requester.
func (s *SQLiteStore) Delete(ctx context.Context, id, requester string) error {
	return s.withOwnedMessage(ctx, id, requester, func(tx *sql.Tx, _ *models.Message) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
		return err
	})
}

func (s *SQLiteStore) withOwnedMessage(ctx context.Context, id, requester string, fn func(tx *sql.Tx, m *models.Message) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanSQLMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	if msg.From != requester {
		return ErrNotOwner
	}

	if err := fn(tx, msg); err != nil {
		return unavailable(err)
	}
	return classify(tx.Commit())
}

// Messages returns the log oldest first.
func (s *SQLiteStore) Messages(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY seq`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLMessage(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		messages = append(messages, *msg)
	}
	return messages, classify(rows.Err())
}

// Count returns the number of messages in the log.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLMessage(row sqlScanner) (*models.Message, error) {
	msg := &models.Message{}
	var typ string
	err := row.Scan(
		&msg.ID,
		&msg.From,
		&msg.To,
		&msg.Text,
		&typ,
		&msg.Time,
		&msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(typ)
	return msg, nil
}
