package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreamware/ridefleet/internal/cluster"
)

// lockScript performs the Lock CAS atomically: it only sets the lock fields
// if the stored document's "locked" field is false, returning the updated
// document. Redis Lua scripts run atomically with respect to all other
// commands, which is what makes this the CAS primitive §4.A requires.
var lockScript = redis.NewScript(`
local key = KEYS[1]
local txID = ARGV[1]
local raw = redis.call("GET", key)
if raw == false then
	return {err = "not_found"}
end
local doc = cjson.decode(raw)
if doc.locked then
	if doc.transactionId == txID then
		return raw
	end
	return {err = "already_locked"}
end
doc.locked = true
doc.transactionId = txID
doc.handoffStatus = "PREPARING"
local encoded = cjson.encode(doc)
redis.call("SET", key, encoded)
return encoded
`)

// unlockScript performs the inverse CAS: it clears the lock fields only if
// the stored document's transactionId matches txID.
var unlockScript = redis.NewScript(`
local key = KEYS[1]
local txID = ARGV[1]
local raw = redis.call("GET", key)
if raw == false then
	return {err = "not_found"}
end
local doc = cjson.decode(raw)
if doc.transactionId ~= txID then
	return {err = "wrong_tx"}
end
doc.locked = false
doc.transactionId = ""
doc.handoffStatus = ""
redis.call("SET", key, cjson.encode(doc))
return "ok"
`)

// finalizeScript clears the lock fields and marks the handoff complete,
// guarded by the same transactionId check as unlock.
var finalizeScript = redis.NewScript(`
local key = KEYS[1]
local txID = ARGV[1]
local raw = redis.call("GET", key)
if raw == false then
	return {err = "not_found"}
end
local doc = cjson.decode(raw)
if doc.transactionId ~= txID then
	return {err = "wrong_tx"}
end
doc.locked = false
doc.transactionId = ""
doc.handoffStatus = "COMPLETED"
redis.call("SET", key, cjson.encode(doc))
return "ok"
`)

// deleteScript performs the Delete CAS atomically: it only deletes the key
// if the stored document's transactionId matches txID, guarding against a
// concurrent re-lock landing between the caller's read and the delete.
var deleteScript = redis.NewScript(`
local key = KEYS[1]
local txID = ARGV[1]
local raw = redis.call("GET", key)
if raw == false then
	return {err = "not_found"}
end
local doc = cjson.decode(raw)
if doc.transactionId ~= txID then
	return {err = "wrong_tx"}
end
redis.call("DEL", key)
return "ok"
`)

// RedisStore is a Store backed by Redis, using SETNX for unique insert and
// Lua scripts for the CAS lock/unlock/finalize/delete operations. It is the
// production-shaped backend; MemoryStore remains the default for tests and
// the single-process demo.
type RedisStore struct {
	client    *redis.Client
	region    string
	keyPrefix string
}

// NewRedisStore builds a RedisStore scoped to one region's key namespace.
// region is reported as the Health primaryId.
func NewRedisStore(client *redis.Client, region string) *RedisStore {
	return &RedisStore{
		client:    client,
		region:    region,
		keyPrefix: "ridefleet:ride:",
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func (s *RedisStore) GetRide(id string) (*cluster.Ride, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var ride cluster.Ride
	if err := json.Unmarshal([]byte(raw), &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (s *RedisStore) InsertRide(ride *cluster.Ride) error {
	if ride == nil || ride.RideID == "" {
		return errors.New("store: ride id required")
	}

	ctx, cancel := s.ctx()
	defer cancel()

	encoded, err := json.Marshal(ride)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(ride.RideID), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) DeleteRide(id, txID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := deleteScript.Run(ctx, s.client, []string{s.key(id)}, txID).Result()
	return scriptErr(err)
}

func (s *RedisStore) Lock(id, txID string) (*cluster.Ride, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := lockScript.Run(ctx, s.client, []string{s.key(id)}, txID).Result()
	if err != nil {
		return nil, scriptErr(err)
	}

	raw, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("store: unexpected lock script result %T", res)
	}
	var ride cluster.Ride
	if err := json.Unmarshal([]byte(raw), &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (s *RedisStore) Unlock(id, txID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := unlockScript.Run(ctx, s.client, []string{s.key(id)}, txID).Result()
	return scriptErr(err)
}

func (s *RedisStore) Finalize(id, txID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := finalizeScript.Run(ctx, s.client, []string{s.key(id)}, txID).Result()
	return scriptErr(err)
}

// scriptErr maps the {err=...} sentinel tables the Lua scripts return into
// package sentinel errors. go-redis surfaces a Lua `return {err=...}` as a
// plain error whose message is the string, not a structured value.
func scriptErr(err error) error {
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "not_found":
		return ErrNotFound
	case "already_locked":
		return ErrAlreadyLocked
	case "wrong_tx":
		return ErrWrongTransaction
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *RedisStore) Search(filter SearchFilter) ([]*cluster.Ride, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []*cluster.Ride
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var ride cluster.Ride
		if err := json.Unmarshal([]byte(raw), &ride); err != nil {
			continue
		}
		if matches(&ride, filter) {
			out = append(out, &ride)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sortByTimestampDesc(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *RedisStore) Stats() (Stats, error) {
	rides, err := s.Search(SearchFilter{})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByStatus: make(map[string]int)}
	var fareSum float64
	for _, r := range rides {
		stats.Total++
		stats.ByStatus[r.Status]++
		fareSum += r.Fare
	}
	if stats.Total > 0 {
		stats.AvgFare = fareSum / float64(stats.Total)
	}
	return stats, nil
}

func (s *RedisStore) Health() (HealthInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return HealthInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return HealthInfo{
		PrimaryID:        s.region,
		ReplicationLagMs: time.Since(start).Milliseconds(),
		LastWriteAt:      time.Now(),
	}, nil
}
