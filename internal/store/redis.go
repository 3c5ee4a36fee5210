package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
)

// DefaultArchiveKeep bounds the per-facility archive list in Redis.
const DefaultArchiveKeep = 256

const facilityIndexKey = "magnate:facilities"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps one snapshot document per facility plus a capped archive
// list, with an index set for discovery.
type RedisStore struct {
	client *redis.Client

	// ArchiveKeep caps the archive list length; zero means DefaultArchiveKeep.
	ArchiveKeep int64
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func snapshotKey(facility string) string {
	return fmt.Sprintf("magnate:snapshot:%s", facility)
}

func archiveKey(facility string) string {
	return fmt.Sprintf("magnate:archive:%s", facility)
}

// SaveSnapshot upserts the snapshot document and indexes the facility.
func (s *RedisStore) SaveSnapshot(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(snap.Facility), data, 0)
	pipe.SAdd(ctx, facilityIndexKey, snap.Facility)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Facility, err)
	}
	return nil
}

// LoadSnapshot fetches and decodes the facility's snapshot.
func (s *RedisStore) LoadSnapshot(ctx context.Context, facility string) (*scheduler.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(facility)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, facility)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", facility, err)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", facility, err)
	}
	return &snap, nil
}

// ListFacilities returns the index set, sorted.
func (s *RedisStore) ListFacilities(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, facilityIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendArchive pushes the entry onto the facility's archive list and trims
// it to the keep bound.
func (s *RedisStore) AppendArchive(ctx context.Context, facility string, entry scheduler.ArchiveEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}
	keep := s.ArchiveKeep
	if keep <= 0 {
		keep = DefaultArchiveKeep
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, archiveKey(facility), data)
	pipe.LTrim(ctx, archiveKey(facility), -keep, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append archive %s: %w", facility, err)
	}
	return nil
}
