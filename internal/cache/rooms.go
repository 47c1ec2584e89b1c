// Package cache is the redis-backed room persistence store. Each room
// actor writes its full snapshot under room/{roomId}; no other component
// writes those keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// persistDeadline is the hard budget for one snapshot write. Exceeding
// it surfaces PERSIST_FAILED to the originating event.
const persistDeadline = 5 * time.Second

// ErrNoSnapshot means no state is persisted for the room.
var ErrNoSnapshot = errors.New("cache: no snapshot")

// NewClient connects a go-redis client and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return rdb, nil
}

// RoomStore persists room snapshots as atomic whole-value replacements.
type RoomStore struct {
	rdb redis.Cmdable
}

// NewRoomStore wraps a redis client.
func NewRoomStore(rdb redis.Cmdable) *RoomStore {
	return &RoomStore{rdb: rdb}
}

func roomKey(roomID string) string { return "room/" + roomID }

// SaveRoom atomically replaces the snapshot for roomID.
func (s *RoomStore) SaveRoom(ctx context.Context, roomID string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, persistDeadline)
	defer cancel()
	if err := s.rdb.Set(ctx, roomKey(roomID), data, 0).Err(); err != nil {
		return fmt.Errorf("cache: save %s: %w", roomKey(roomID), err)
	}
	return nil
}

// LoadRoom returns the last persisted snapshot, or ErrNoSnapshot.
func (s *RoomStore) LoadRoom(ctx context.Context, roomID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, persistDeadline)
	defer cancel()
	data, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load %s: %w", roomKey(roomID), err)
	}
	return data, nil
}

// DeleteRoom purges the snapshot on room teardown.
func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, persistDeadline)
	defer cancel()
	if err := s.rdb.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", roomKey(roomID), err)
	}
	return nil
}
