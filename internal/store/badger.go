package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// InMemoryPath opens badger without touching the disk.
const InMemoryPath = ":memory:"

const (
	participantPrefix = "participant:"
	messagePrefix     = "message:"

	// optimistic transactions that lose a conflict are replayed
	maxTxnRetries = 16
)

// BadgerStore is the embedded backend. Every operation runs in its own
// badger transaction; conflicting writers on the same key are detected at
// commit and replayed, which gives per-key compare-and-swap.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == InMemoryPath {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is still open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return unavailable(errors.New("badger: database closed"))
	}
	return nil
}

func participantKey(name string) []byte {
	return []byte(participantPrefix + name)
}

func messageKey(id string) []byte {
	return []byte(messagePrefix + id)
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	for i := 0; ; i++ {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && i < maxTxnRetries {
			continue
		}
		return classify(err)
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// Join inserts a participant unless the name is already taken.
func (s *BadgerStore) Join(ctx context.Context, name string, now time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(participantKey(name))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, participantKey(name), models.Participant{
			Name:          name,
			LastHeartbeat: now.UnixMilli(),
		})
	})
}

// Refresh moves the heartbeat of an existing participant.
func (s *BadgerStore) Refresh(ctx context.Context, name string, now time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		var p models.Participant
		if err := getJSON(txn, participantKey(name), &p); err != nil {
			return err
		}
		p.LastHeartbeat = now.UnixMilli()
		return setJSON(txn, participantKey(name), p)
	})
}

// Participant returns a single participant.
func (s *BadgerStore) Participant(ctx context.Context, name string) (*models.Participant, error) {
	var p models.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, participantKey(name), &p)
	})
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

// Participants returns every registered participant.
func (s *BadgerStore) Participants(ctx context.Context) ([]models.Participant, error) {
	participants := []models.Participant{}
	err := s.scan(participantPrefix, func(val []byte) error {
		var p models.Participant
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		participants = append(participants, p)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return participants, nil
}

// Evict removes a participant whose heartbeat is older than cutoff.
func (s *BadgerStore) Evict(ctx context.Context, name string, cutoff time.Time) (bool, error) {
	evicted := false
	err := s.update(func(txn *badger.Txn) error {
		evicted = false
		var p models.Participant
		err := getJSON(txn, participantKey(name), &p)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.LastHeartbeat >= cutoff.UnixMilli() {
			return nil
		}
		evicted = true
		return txn.Delete(participantKey(name))
	})
	if err != nil {
		return false, err
	}
	return evicted, nil
}

// Append stores a new message. ULIDs sort by creation time, so the key
// order is the insertion order.
func (s *BadgerStore) Append(ctx context.Context, msg *models.Message) error {
	msg.Stamp(time.Now())
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(msg.ID), msg)
	})
}

// Get returns a message by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messageKey(id), &msg)
	})
	if err != nil {
		return nil, classify(err)
	}
	return &msg, nil
}

// Edit replaces the mutable fields of a message owned by requester.
func (s *BadgerStore) Edit(ctx context.Context, id, requester string, edit models.MessageEdit) (*models.Message, error) {
	var msg models.Message
	err := s.update(func(txn *badger.Txn) error {
		msg = models.Message{}
		if err := getJSON(txn, messageKey(id), &msg); err != nil {
			return err
		}
		if msg.From != requester {
			return ErrNotOwner
		}
		msg.Apply(edit)
		return setJSON(txn, messageKey(id), msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message owned by requester.
func (s *BadgerStore) Delete(ctx context.Context, id, requester string) error {
	return s.update(func(txn *badger.Txn) error {
		var msg models.Message
		if err := getJSON(txn, messageKey(id), &msg); err != nil {
			return err
		}
		if msg.From != requester {
			return ErrNotOwner
		}
		return txn.Delete(messageKey(id))
	})
}

// Messages returns the log oldest first.
func (s *BadgerStore) Messages(ctx context.Context) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.scan(messagePrefix, func(val []byte) error {
		var msg models.Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return messages, nil
}

// Count returns the number of messages in the log.
func (s *BadgerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (s *BadgerStore) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
