package room

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for room hashes.
	KeyPrefix = "room:"

	// WaitingIndexKey is the sorted set of waiting room IDs scored by
	// deadline (unix ms). Rooms leave the index on any transition out of
	// waiting and on deletion.
	WaitingIndexKey = "rooms:waiting"
)

// Join result codes returned by the capacity-guarded join script.
const (
	JoinOK         = 1  // member added
	JoinPromote    = 2  // member added and the room is now at capacity
	JoinNotFound   = -1 // room does not exist
	JoinNotWaiting = -2 // room is not in waiting status
	JoinDuplicate  = -3 // user is already a member
	JoinFull       = -4 // room is at capacity
)

// Store manages room documents in Redis.
type Store struct {
	rdb              *redis.Client
	joinScript       *redis.Script
	leaveScript      *redis.Script
	transitionScript *redis.Script
}

// NewStore creates a room store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:              rdb,
		joinScript:       redis.NewScript(joinLua),
		leaveScript:      redis.NewScript(leaveLua),
		transitionScript: redis.NewScript(transitionLua),
	}
}

func key(id string) string        { return KeyPrefix + id }
func membersKey(id string) string { return KeyPrefix + id + ":members" }

// Create persists a new waiting room with its first member and registers it
// in the deadline index.
func (s *Store) Create(ctx context.Context, r *Room, firstMember string) error {
	r.Status = StatusWaiting
	r.CreatedAt = time.Now()
	r.Members = []string{firstMember}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key(r.ID), map[string]interface{}{
		"status":      r.Status,
		"deadline":    r.Deadline.UnixMilli(),
		"min_members": r.MinMembers,
		"max_members": r.MaxMembers,
		"created_at":  r.CreatedAt.UnixMilli(),
	})
	pipe.RPush(ctx, membersKey(r.ID), firstMember)
	pipe.ZAdd(ctx, WaitingIndexKey, redis.Z{Score: float64(r.Deadline.UnixMilli()), Member: r.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("room: create %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves a room with its member list. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Room, error) {
	pipe := s.rdb.Pipeline()
	hashCmd := pipe.HGetAll(ctx, key(id))
	membersCmd := pipe.LRange(ctx, membersKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("room: get %s: %w", id, err)
	}

	fields := hashCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	deadline, _ := strconv.ParseInt(fields["deadline"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	minMembers, _ := strconv.Atoi(fields["min_members"])
	maxMembers, _ := strconv.Atoi(fields["max_members"])

	return &Room{
		ID:         id,
		Status:     fields["status"],
		Deadline:   time.UnixMilli(deadline),
		MinMembers: minMembers,
		MaxMembers: maxMembers,
		CreatedAt:  time.UnixMilli(createdAt),
		Members:    membersCmd.Val(),
	}, nil
}

// Members returns the room's member IDs in join order.
func (s *Store) Members(ctx context.Context, id string) ([]string, error) {
	return s.rdb.LRange(ctx, membersKey(id), 0, -1).Result()
}

// Join atomically adds a member to a waiting room. The capacity check and
// the member append run in one script, so the member count can never exceed
// max_members even under concurrent joins. Returns one of the Join* codes.
func (s *Store) Join(ctx context.Context, roomID, userID string) (int, error) {
	result, err := s.joinScript.Run(ctx, s.rdb,
		[]string{key(roomID), membersKey(roomID)}, userID).Int()
	if err != nil {
		return JoinNotFound, fmt.Errorf("room: join %s: %w", roomID, err)
	}
	return result, nil
}

// Leave atomically removes a member. When the last member leaves, the room
// hash, member list, and index entry are deleted in the same script.
// Returns the remaining member count, or -1 if the user was not a member.
func (s *Store) Leave(ctx context.Context, roomID, userID string) (int, error) {
	result, err := s.leaveScript.Run(ctx, s.rdb,
		[]string{key(roomID), membersKey(roomID), WaitingIndexKey}, userID, roomID).Int()
	if err != nil {
		return -1, fmt.Errorf("room: leave %s: %w", roomID, err)
	}
	return result, nil
}

// Transition moves a room from one status to another only if it still holds
// the expected status, and drops it from the waiting index. Returns false
// when the room was missing or already transitioned, which makes promotion
// and expiry idempotent under overlapping sweeps.
func (s *Store) Transition(ctx context.Context, roomID, from, to string) (bool, error) {
	result, err := s.transitionScript.Run(ctx, s.rdb,
		[]string{key(roomID), WaitingIndexKey}, from, to, roomID).Int()
	if err != nil {
		return false, fmt.Errorf("room: transition %s: %w", roomID, err)
	}
	return result == 1, nil
}

// Delete removes a room document, its member list, and its index entry.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key(roomID))
	pipe.Del(ctx, membersKey(roomID))
	pipe.ZRem(ctx, WaitingIndexKey, roomID)
	_, err := pipe.Exec(ctx)
	return err
}

// Unindex drops a room from the waiting index without touching its hash.
// Used by the sweeper to clear stale index entries.
func (s *Store) Unindex(ctx context.Context, roomID string) error {
	return s.rdb.ZRem(ctx, WaitingIndexKey, roomID).Err()
}

// WaitingIDs returns the IDs of all rooms currently in the waiting index,
// ordered by deadline.
func (s *Store) WaitingIDs(ctx context.Context) ([]string, error) {
	return s.rdb.ZRange(ctx, WaitingIndexKey, 0, -1).Result()
}

// DueIDs returns the IDs of waiting rooms whose deadline is at or before t.
func (s *Store) DueIDs(ctx context.Context, t time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, WaitingIndexKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
}

// joinLua guards the capacity check and the member append in one atomic
// step. KEYS[1] = room hash, KEYS[2] = member list, ARGV[1] = user ID.
const joinLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status ~= 'waiting' then return -2 end

local members = redis.call('LRANGE', KEYS[2], 0, -1)
for _, m in ipairs(members) do
    if m == ARGV[1] then return -3 end
end

local max = tonumber(redis.call('HGET', KEYS[1], 'max_members'))
if #members >= max then return -4 end

redis.call('RPUSH', KEYS[2], ARGV[1])
if #members + 1 >= max then return 2 end
return 1
`

// leaveLua removes a member and deletes the room when it empties.
// KEYS[1] = room hash, KEYS[2] = member list, KEYS[3] = waiting index,
// ARGV[1] = user ID, ARGV[2] = room ID.
const leaveLua = `
local removed = redis.call('LREM', KEYS[2], 1, ARGV[1])
if removed == 0 then return -1 end

local remaining = redis.call('LLEN', KEYS[2])
if remaining == 0 then
    redis.call('DEL', KEYS[1])
    redis.call('DEL', KEYS[2])
    redis.call('ZREM', KEYS[3], ARGV[2])
end
return remaining
`

// transitionLua applies a conditional status change and removes the room
// from the waiting index. KEYS[1] = room hash, KEYS[2] = waiting index,
// ARGV[1] = expected status, ARGV[2] = new status, ARGV[3] = room ID.
const transitionLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status ~= ARGV[1] then return 0 end

redis.call('HSET', KEYS[1], 'status', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[3])
return 1
`
