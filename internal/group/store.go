package group

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for group hashes.
	KeyPrefix = "group:"

	// VotingIndexKey is the sorted set of voting group IDs scored by
	// voting deadline (unix ms).
	VotingIndexKey = "groups:voting"
)

// Vote result codes returned by the guarded vote script.
const (
	VoteOK        = 1
	VoteNotFound  = -1
	VoteNotVoting = -2
	VoteNotMember = -3
)

// Store manages group documents in Redis.
type Store struct {
	rdb              *redis.Client
	voteScript       *redis.Script
	removeScript     *redis.Script
	transitionScript *redis.Script
}

// NewStore creates a group store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:              rdb,
		voteScript:       redis.NewScript(voteLua),
		removeScript:     redis.NewScript(removeMemberLua),
		transitionScript: redis.NewScript(transitionLua),
	}
}

func key(id string) string         { return KeyPrefix + id }
func membersKey(id string) string  { return KeyPrefix + id + ":members" }
func votesKey(id string) string    { return KeyPrefix + id + ":votes" }
func checkinsKey(id string) string { return KeyPrefix + id + ":checkins" }

// Create persists a new voting group with the given members and registers
// it in the voting deadline index.
func (s *Store) Create(ctx context.Context, g *Group, members []string) error {
	g.Status = StatusVoting
	g.CreatedAt = time.Now()
	g.Members = members

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key(g.ID), map[string]interface{}{
		"room_id":    g.RoomID,
		"status":     g.Status,
		"deadline":   g.Deadline.UnixMilli(),
		"created_at": g.CreatedAt.UnixMilli(),
	})
	for _, m := range members {
		pipe.RPush(ctx, membersKey(g.ID), m)
	}
	pipe.ZAdd(ctx, VotingIndexKey, redis.Z{Score: float64(g.Deadline.UnixMilli()), Member: g.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("group: create %s: %w", g.ID, err)
	}
	return nil
}

// Get retrieves a group with its member list. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Group, error) {
	pipe := s.rdb.Pipeline()
	hashCmd := pipe.HGetAll(ctx, key(id))
	membersCmd := pipe.LRange(ctx, membersKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("group: get %s: %w", id, err)
	}

	fields := hashCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	deadline, _ := strconv.ParseInt(fields["deadline"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	return &Group{
		ID:             id,
		RoomID:         fields["room_id"],
		Status:         fields["status"],
		Deadline:       time.UnixMilli(deadline),
		CreatedAt:      time.UnixMilli(createdAt),
		Members:        membersCmd.Val(),
		RestaurantID:   fields["restaurant_id"],
		RestaurantName: fields["restaurant_name"],
	}, nil
}

// Members returns the group's member IDs in join order.
func (s *Store) Members(ctx context.Context, id string) ([]string, error) {
	return s.rdb.LRange(ctx, membersKey(id), 0, -1).Result()
}

// Votes returns the persisted userID -> restaurantID vote map.
func (s *Store) Votes(ctx context.Context, id string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, votesKey(id)).Result()
}

// CastVote records (or overwrites) a member's vote, guarded on group status
// and membership. Returns one of the Vote* codes.
func (s *Store) CastVote(ctx context.Context, groupID, userID, restaurantID string) (int, error) {
	result, err := s.voteScript.Run(ctx, s.rdb,
		[]string{key(groupID), membersKey(groupID), votesKey(groupID)},
		userID, restaurantID).Int()
	if err != nil {
		return VoteNotFound, fmt.Errorf("group: vote %s: %w", groupID, err)
	}
	return result, nil
}

// RemoveMember removes a member along with their vote and check-in in one
// atomic step. When the last member leaves, the group document is deleted
// entirely. Returns the remaining member count, or -1 if the user was not a
// member.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) (int, error) {
	result, err := s.removeScript.Run(ctx, s.rdb,
		[]string{key(groupID), membersKey(groupID), votesKey(groupID), VotingIndexKey, checkinsKey(groupID)},
		userID, groupID).Int()
	if err != nil {
		return -1, fmt.Errorf("group: remove member %s: %w", groupID, err)
	}
	return result, nil
}

// Transition moves a group between statuses only if it still holds the
// expected status, dropping it from the voting index. Idempotent under
// overlapping sweeps.
func (s *Store) Transition(ctx context.Context, groupID, from, to string) (bool, error) {
	result, err := s.transitionScript.Run(ctx, s.rdb,
		[]string{key(groupID), VotingIndexKey}, from, to, groupID).Int()
	if err != nil {
		return false, fmt.Errorf("group: transition %s: %w", groupID, err)
	}
	return result == 1, nil
}

// SetRestaurant stores the confirmed restaurant snapshot on the group hash.
func (s *Store) SetRestaurant(ctx context.Context, groupID, restaurantID, name string) error {
	return s.rdb.HSet(ctx, key(groupID),
		"restaurant_id", restaurantID,
		"restaurant_name", name,
	).Err()
}

// SetCheckIn marks a member as arrived at the meetup, recording the arrival
// time.
func (s *Store) SetCheckIn(ctx context.Context, groupID, userID string) error {
	return s.rdb.HSet(ctx, checkinsKey(groupID), userID, time.Now().UnixMilli()).Err()
}

// CheckIns returns the userID -> arrival time (unix ms) map of members who
// checked in.
func (s *Store) CheckIns(ctx context.Context, groupID string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, checkinsKey(groupID)).Result()
}

// Delete removes a group document, its member list, votes, check-ins, and
// index entry.
func (s *Store) Delete(ctx context.Context, groupID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key(groupID))
	pipe.Del(ctx, membersKey(groupID))
	pipe.Del(ctx, votesKey(groupID))
	pipe.Del(ctx, checkinsKey(groupID))
	pipe.ZRem(ctx, VotingIndexKey, groupID)
	_, err := pipe.Exec(ctx)
	return err
}

// VotingIDs returns the IDs of all groups currently in the voting phase.
func (s *Store) VotingIDs(ctx context.Context) ([]string, error) {
	return s.rdb.ZRange(ctx, VotingIndexKey, 0, -1).Result()
}

// DueIDs returns the IDs of voting groups whose deadline is at or before t.
func (s *Store) DueIDs(ctx context.Context, t time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, VotingIndexKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
}

// voteLua guards a vote on group status and membership.
// KEYS[1] = group hash, KEYS[2] = member list, KEYS[3] = votes hash,
// ARGV[1] = user ID, ARGV[2] = restaurant ID.
const voteLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status ~= 'voting' then return -2 end

local members = redis.call('LRANGE', KEYS[2], 0, -1)
local found = false
for _, m in ipairs(members) do
    if m == ARGV[1] then found = true end
end
if not found then return -3 end

redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return 1
`

// removeMemberLua removes a member plus their vote and check-in, deleting
// the group when it empties. KEYS[1] = group hash, KEYS[2] = member list,
// KEYS[3] = votes hash, KEYS[4] = voting index, KEYS[5] = check-ins hash,
// ARGV[1] = user ID, ARGV[2] = group ID.
const removeMemberLua = `
local removed = redis.call('LREM', KEYS[2], 1, ARGV[1])
if removed == 0 then return -1 end

redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])

local remaining = redis.call('LLEN', KEYS[2])
if remaining == 0 then
    redis.call('DEL', KEYS[1])
    redis.call('DEL', KEYS[2])
    redis.call('DEL', KEYS[3])
    redis.call('DEL', KEYS[5])
    redis.call('ZREM', KEYS[4], ARGV[2])
end
return remaining
`

// transitionLua applies a conditional status change and removes the group
// from the voting index. KEYS[1] = group hash, KEYS[2] = voting index,
// ARGV[1] = expected status, ARGV[2] = new status, ARGV[3] = group ID.
const transitionLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status ~= ARGV[1] then return 0 end

redis.call('HSET', KEYS[1], 'status', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[3])
return 1
`
