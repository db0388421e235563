package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/batepapo/internal/models"
)

const (
	participantsKey = "participants"
	messagesKey     = "messages"
)

// refreshScript moves a heartbeat only if the participant is still present.
var refreshScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// evictScript removes a participant only if its heartbeat is older than the cutoff.
var evictScript = redis.NewScript(`
local hb = redis.call('HGET', KEYS[1], ARGV[1])
if hb and tonumber(hb) < tonumber(ARGV[2]) then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// RedisStore keeps participants in a hash (name -> heartbeat ms) and the
// log as JSON strings indexed by a sorted set scored by insertion time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err())
}

func redisMessageKey(id string) string {
	return "message:" + id
}

// Join inserts a participant unless the name is already taken.
func (s *RedisStore) Join(ctx context.Context, name string, now time.Time) error {
	created, err := s.client.HSetNX(ctx, participantsKey, name, now.UnixMilli()).Result()
	if err != nil {
		return unavailable(err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

// Refresh moves the heartbeat of an existing participant.
func (s *RedisStore) Refresh(ctx context.Context, name string, now time.Time) error {
	updated, err := refreshScript.Run(ctx, s.client, []string{participantsKey}, name, now.UnixMilli()).Int()
	if err != nil {
		return unavailable(err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

// Participant returns a single participant.
func (s *RedisStore) Participant(ctx context.Context, name string) (*models.Participant, error) {
	hb, err := s.client.HGet(ctx, participantsKey, name).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &models.Participant{Name: name, LastHeartbeat: hb}, nil
}

// Participants returns every registered participant, sorted by name.
func (s *RedisStore) Participants(ctx context.Context) ([]models.Participant, error) {
	all, err := s.client.HGetAll(ctx, participantsKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	participants := make([]models.Participant, 0, len(all))
	for name, raw := range all {
		hb, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		participants = append(participants, models.Participant{Name: name, LastHeartbeat: hb})
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Name < participants[j].Name
	})
	return participants, nil
}

// Evict removes a participant whose heartbeat is older than cutoff.
func (s *RedisStore) Evict(ctx context.Context, name string, cutoff time.Time) (bool, error) {
	evicted, err := evictScript.Run(ctx, s.client, []string{participantsKey}, name, cutoff.UnixMilli()).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return evicted == 1, nil
}

// Append stores a message and indexes it by insertion time.
func (s *RedisStore) Append(ctx context.Context, msg *models.Message) error {
	msg.Stamp(time.Now())

	data, err := json.Marshal(msg)
	if err != nil {
		return classify(err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisMessageKey(msg.ID), data, 0)
		pipe.ZAdd(ctx, messagesKey, redis.Z{
			Score:  float64(msg.Timestamp),
			Member: msg.ID,
		})
		return nil
	})
	return classify(err)
}

// Get returns a message by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Message, error) {
	data, err := s.client.Get(ctx, redisMessageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, unavailable(err)
	}
	return &msg, nil
}

// Edit replaces the mutable fields of a message owned by requester. The
// message key is watched, so a concurrent edit or delete aborts and replays
// this one.
func (s *RedisStore) Edit(ctx context.Context, id, requester string, edit models.MessageEdit) (*models.Message, error) {
	key := redisMessageKey(id)
	var msg models.Message

	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := ownedMessage(ctx, tx, key, requester)
		if err != nil {
			return err
		}
		current.Apply(edit)
		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		msg = *current
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message owned by requester.
func (s *RedisStore) Delete(ctx context.Context, id, requester string) error {
	key := redisMessageKey(id)

	return s.watch(ctx, func(tx *redis.Tx) error {
		if _, err := ownedMessage(ctx, tx, key, requester); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, messagesKey, id)
			return nil
		})
		return err
	}, key)
}

func ownedMessage(ctx context.Context, tx *redis.Tx, key, requester string) (*models.Message, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.From != requester {
		return nil, ErrNotOwner
	}
	return &msg, nil
}

func (s *RedisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxnRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return classify(err)
	}
	return unavailable(redis.TxFailedErr)
}

// Messages returns the log oldest first.
func (s *RedisStore) Messages(ctx context.Context) ([]models.Message, error) {
	ids, err := s.client.ZRange(ctx, messagesKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	messages := make([]models.Message, 0, len(ids))
	if len(ids) == 0 {
		return messages, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisMessageKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and MGET
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Count returns the number of messages in the log.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, messagesKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
