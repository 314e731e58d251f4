package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prudhvinik1/boardsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix  = "presence:"
	boardMembersFormat = "board:%s:members"

	DefaultPresenceTTL = 90 * time.Second
)

type RedisPresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresenceRepository(client *redis.Client, ttl time.Duration) *RedisPresenceRepository {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresenceRepository{client: client, ttl: ttl}
}

// SetPresence records a connection in a board room with automatic TTL.
// Heartbeats keep it alive through Touch.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()
	if presence.Status == "" {
		presence.Status = string(models.StatusOnline)
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	membersKey := boardMembersKey(presence.BoardID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(presence.BoardID, presence.ConnID), data, r.ttl)
		pipe.SAdd(ctx, membersKey, presence.ConnID)
		pipe.Expire(ctx, membersKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

// Touch extends the TTL of an existing entry. Returns ErrNotFound when the
// entry already expired and must be recreated with SetPresence.
func (r *RedisPresenceRepository) Touch(ctx context.Context, boardID, connID string) error {
	ok, err := r.client.Expire(ctx, presenceKey(boardID, connID), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	if err := r.client.Expire(ctx, boardMembersKey(boardID), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh board members: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, boardID, connID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(boardID, connID))
		pipe.SRem(ctx, boardMembersKey(boardID), connID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// ListBoardPresence returns every live connection in a board room, across all
// nodes, ordered by connection id. Members whose entry expired are pruned.
func (r *RedisPresenceRepository) ListBoardPresence(ctx context.Context, boardID string) ([]models.Presence, error) {
	membersKey := boardMembersKey(boardID)
	connIDs, err := r.client.SMembers(ctx, membersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get board members: %w", err)
	}
	if len(connIDs) == 0 {
		return []models.Presence{}, nil
	}

	keys := make([]string, len(connIDs))
	for i, id := range connIDs {
		keys[i] = presenceKey(boardID, id)
	}

	// MGet retrieves every entry in one round trip
	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get board presence: %w", err)
	}

	presences := make([]models.Presence, 0, len(results))
	var expiredIDs []interface{}

	for i, result := range results {
		data, ok := result.(string)
		if !ok {
			expiredIDs = append(expiredIDs, connIDs[i])
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			slog.Warn("Invalid presence entry", "board_id", boardID, "conn_id", connIDs[i], "error", err)
			expiredIDs = append(expiredIDs, connIDs[i])
			continue
		}
		presences = append(presences, presence)
	}

	// Clean up expired members
	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, membersKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune board members: %w", err)
		}
	}

	sort.Slice(presences, func(i, j int) bool { return presences[i].ConnID < presences[j].ConnID })
	return presences, nil
}

func presenceKey(boardID, connID string) string {
	return presenceKeyPrefix + boardID + ":" + connID
}

func boardMembersKey(boardID string) string {
	return fmt.Sprintf(boardMembersFormat, boardID)
}
