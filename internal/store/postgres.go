package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/batepapo/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS participants (
	name        TEXT PRIMARY KEY,
	last_status BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq       BIGSERIAL PRIMARY KEY,
	id        TEXT UNIQUE NOT NULL,
	from_name TEXT NOT NULL,
	to_name   TEXT NOT NULL,
	text      TEXT NOT NULL,
	type      TEXT NOT NULL,
	time      TEXT NOT NULL,
	ts        BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participants_last_status ON participants(last_status);
`

const messageColumns = `id, from_name, to_name, text, type, time, ts`

// RunMigrations creates the schema if it does not exist yet.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

// Join inserts a participant unless the name is already taken.
func (s *PostgresStore) Join(ctx context.Context, name string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO participants (name, last_status)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, now.UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Refresh moves the heartbeat of an existing participant.
func (s *PostgresStore) Refresh(ctx context.Context, name string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET last_status = $2 WHERE name = $1`,
		name, now.UnixMilli())
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Participant returns a single participant.
func (s *PostgresStore) Participant(ctx context.Context, name string) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.pool.QueryRow(ctx,
		`SELECT name, last_status FROM participants WHERE name = $1`, name,
	).Scan(&p.Name, &p.LastHeartbeat)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return p, nil
}

// Participants returns every registered participant, sorted by name.
func (s *PostgresStore) Participants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, last_status FROM participants ORDER BY name`)
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
func (s *PostgresStore) Evict(ctx context.Context, name string, cutoff time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM participants WHERE name = $1 AND last_status < $2`,
		name, cutoff.UnixMilli())
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Append stores a new message.
func (s *PostgresStore) Append(ctx context.Context, msg *models.Message) error {
	msg.Stamp(time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.From, msg.To, msg.Text, string(msg.Type), msg.Time, msg.Timestamp)
	return classify(err)
}

// Get returns a message by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return msg, nil
}

// Edit replaces the mutable fields of a message owned by requester. The row
// is locked for the duration of the ownership check and the update.
func (s *PostgresStore) Edit(ctx context.Context, id, requester string, edit models.MessageEdit) (*models.Message, error) {
	var msg *models.Message
	err := s.withOwnedMessage(ctx, id, requester, func(tx pgx.Tx, m *models.Message) error {
		m.Apply(edit)
		msg = m
		_, err := tx.Exec(ctx,
			`UPDATE messages SET to_name = $2, text = $3, type = $4 WHERE id = $1`,
			id, m.To, m.Text, string(m.Type))
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes a message owned by requester.
func (s *PostgresStore) Delete(ctx context.Context, id, requester string) error {
	return s.withOwnedMessage(ctx, id, requester, func(tx pgx.Tx, _ *models.Message) error {
		_, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
		return err
	})
}

func (s *PostgresStore) withOwnedMessage(ctx context.Context, id, requester string, fn func(tx pgx.Tx, m *models.Message) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	return classify(tx.Commit(ctx))
}

// Messages returns the log oldest first.
func (s *PostgresStore) Messages(ctx context.Context) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY seq`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		messages = append(messages, *msg)
	}
	return messages, classify(rows.Err())
}

// Count returns the number of messages in the log.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
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
