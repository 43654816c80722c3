package user

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feastfriends/feastfriends/internal/geo"
)

// KeyPrefix is the Redis key prefix for user hashes.
const KeyPrefix = "user:"

// Store manages user documents in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a user store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(id string) string { return KeyPrefix + id }

// Create persists a new user document. Credibility defaults to
// DefaultCredibility when zero.
func (s *Store) Create(ctx context.Context, u *User) error {
	if u.Credibility == 0 {
		u.Credibility = DefaultCredibility
	}
	if u.Status == "" {
		u.Status = StatusOnline
	}
	now := time.Now().Unix()
	u.CreatedAt = now
	u.LastActive = now

	fields := map[string]interface{}{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"cuisines":    strings.Join(u.Cuisines, ","),
		"budget":      u.Budget,
		"radius_km":   u.RadiusKm,
		"credibility": u.Credibility,
		"location":    encodeLocation(u.Location),
		"status":      u.Status,
		"room_id":     u.RoomID,
		"group_id":    u.GroupID,
		"created_at":  now,
		"last_active": now,
	}
	return s.rdb.HSet(ctx, key(u.ID), fields).Err()
}

// Get retrieves a user document. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	result, err := s.rdb.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("user: get %s: %w", id, err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return decode(id, result), nil
}

// GetMany retrieves several user documents with one pipeline round trip.
// Missing users are omitted from the result, preserving input order for the
// rest.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("user: get many: %w", err)
	}

	users := make([]*User, 0, len(ids))
	for i, cmd := range cmds {
		result, err := cmd.Result()
		if err != nil || len(result) == 0 {
			continue
		}
		users = append(users, decode(ids[i], result))
	}
	return users, nil
}

// UpdatePreferences overwrites the preference bundle used for matching.
func (s *Store) UpdatePreferences(ctx context.Context, id string, prefs Preferences) error {
	return s.rdb.HSet(ctx, key(id),
		"cuisines", strings.Join(prefs.Cuisines, ","),
		"budget", prefs.Budget,
		"radius_km", prefs.RadiusKm,
		"last_active", time.Now().Unix(),
	).Err()
}

// SetLocation stores the user's resolved geographic point.
func (s *Store) SetLocation(ctx context.Context, id string, p geo.Point) error {
	return s.rdb.HSet(ctx, key(id), "location", encodeLocation(&p)).Err()
}

// SetRoom points the user at a waiting room. The group pointer is cleared in
// the same HSET so the membership exclusivity invariant holds per write.
func (s *Store) SetRoom(ctx context.Context, id, roomID string) error {
	return s.rdb.HSet(ctx, key(id),
		"room_id", roomID,
		"group_id", "",
		"status", StatusInWaitingRoom,
		"last_active", time.Now().Unix(),
	).Err()
}

// SetGroup moves the user's pointer from room to group in one write.
func (s *Store) SetGroup(ctx context.Context, id, groupID string) error {
	return s.rdb.HSet(ctx, key(id),
		"room_id", "",
		"group_id", groupID,
		"status", StatusInGroup,
		"last_active", time.Now().Unix(),
	).Err()
}

// ClearMembership returns the user to the unattached online state.
func (s *Store) ClearMembership(ctx context.Context, id string) error {
	return s.rdb.HSet(ctx, key(id),
		"room_id", "",
		"group_id", "",
		"status", StatusOnline,
		"last_active", time.Now().Unix(),
	).Err()
}

// SetCredibility overwrites the stored credibility score.
func (s *Store) SetCredibility(ctx context.Context, id string, score float64) error {
	return s.rdb.HSet(ctx, key(id), "credibility", score).Err()
}

// SetStatus updates only the presence status field.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	return s.rdb.HSet(ctx, key(id), "status", status, "last_active", time.Now().Unix()).Err()
}

// Delete removes a user document.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}

func encodeLocation(p *geo.Point) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%g,%g", p.Lng, p.Lat)
}

func decodeLocation(v string) *geo.Point {
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return nil
	}
	lng, err1 := strconv.ParseFloat(parts[0], 64)
	lat, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &geo.Point{Lng: lng, Lat: lat}
}

func decode(id string, fields map[string]string) *User {
	budget, _ := strconv.ParseFloat(fields["budget"], 64)
	radius, _ := strconv.ParseFloat(fields["radius_km"], 64)
	cred, _ := strconv.ParseFloat(fields["credibility"], 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastActive, _ := strconv.ParseInt(fields["last_active"], 10, 64)

	var cuisines []string
	if fields["cuisines"] != "" {
		cuisines = strings.Split(fields["cuisines"], ",")
	}

	return &User{
		ID:          id,
		Name:        fields["name"],
		Email:       fields["email"],
		Cuisines:    cuisines,
		Budget:      budget,
		RadiusKm:    radius,
		Credibility: cred,
		Location:    decodeLocation(fields["location"]),
		Status:      fields["status"],
		RoomID:      fields["room_id"],
		GroupID:     fields["group_id"],
		CreatedAt:   createdAt,
		LastActive:  lastActive,
	}
}
