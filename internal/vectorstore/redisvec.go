// RedisStore implements Store against Valkey/Redis, storing each
// sector-vector as a hash at key `vec:<sector>:<memoryId>` with fields
// {v, dim, user_id, id, sector} per spec §6.4. Similarity search is
// brute-force over a per-(sector,user) index set (SMEMBERS) since FT.SEARCH/KNN requires
// the RediSearch module, which is optional (spec §6.4 "optional
// FT.SEARCH index").
package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorops"
)

type RedisStore struct {
	client *redis.Client
	cache  *Cache
}

func NewRedisStore(client *redis.Client, cache *Cache) *RedisStore {
	return &RedisStore{client: client, cache: cache}
}

func vecKey(sector model.Sector, memoryID string) string {
	return fmt.Sprintf("vec:%s:%s", sector, memoryID)
}

func userIDString(userID *string) string {
	if userID == nil {
		return ""
	}
	return *userID
}

func (s *RedisStore) StoreVector(ctx context.Context, id string, sector model.Sector, vec []float32, dim int, userID *string, metadata map[string]any) error {
	if len(vec) != dim {
		return errs.Validation("vector length does not match dim", nil)
	}
	key := vecKey(sector, id)
	if err := s.client.HSet(ctx, key, map[string]any{
		"v":       string(persistence.EncodeVector(vec)),
		"dim":     dim,
		"user_id": userIDString(userID),
		"id":      id,
		"sector":  string(sector),
	}).Err(); err != nil {
		return errs.Storage("redis vector store failed", err)
	}
	s.client.SAdd(ctx, sectorIndexKey(sector, userID), id)
	s.cache.Invalidate(id)
	return nil
}

func sectorIndexKey(sector model.Sector, userID *string) string {
	return fmt.Sprintf("vecidx:%s:%s", sector, userIDString(userID))
}

func (s *RedisStore) StoreVectors(ctx context.Context, items []Item) error {
	for _, it := range items {
		if err := s.StoreVector(ctx, it.MemoryID, it.Sector, it.Values, it.Dim, it.UserID, it.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) SearchSimilar(ctx context.Context, sector model.Sector, queryVec []float32, topK int, userID *string, filter *Filter) ([]Hit, error) {
	ids, err := s.client.SMembers(ctx, sectorIndexKey(sector, userID)).Result()
	if err != nil {
		return nil, errs.Storage("redis index scan failed", err)
	}
	candidates := make(map[string][]float32, len(ids))
	for _, id := range ids {
		raw, err := s.client.HGet(ctx, vecKey(sector, id), "v").Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, errs.Storage("redis vector fetch failed", err)
		}
		candidates[id] = persistence.DecodeVector([]byte(raw))
	}
	scored := vectorops.BatchTopKCosine(queryVec, candidates, topK)
	out := make([]Hit, len(scored))
	for i, sc := range scored {
		out[i] = Hit{MemoryID: sc.ID, Score: sc.Score}
	}
	return out, nil
}

func (s *RedisStore) DeleteVector(ctx context.Context, id string) error {
	s.cache.Invalidate(id)
	for _, sector := range model.AllSectors {
		s.client.Del(ctx, vecKey(sector, id))
	}
	return nil
}

func (s *RedisStore) DeleteVectorSector(ctx context.Context, id string, sector model.Sector) error {
	s.cache.Invalidate(id)
	return s.client.Del(ctx, vecKey(sector, id)).Err()
}

func (s *RedisStore) DeleteVectorsByUser(ctx context.Context, userID *string) error {
	for _, sector := range model.AllSectors {
		key := sectorIndexKey(sector, userID)
		ids, err := s.client.SMembers(ctx, key).Result()
		if err != nil {
			return errs.Storage("redis index scan failed", err)
		}
		for _, id := range ids {
			s.client.Del(ctx, vecKey(sector, id))
			s.cache.Invalidate(id)
		}
		s.client.Del(ctx, key)
	}
	return nil
}

func (s *RedisStore) GetVectorsByIDs(ctx context.Context, ids []string, userID *string) (map[string][]*model.Vector, error) {
	out := make(map[string][]*model.Vector, len(ids))
	var misses []string
	for _, id := range ids {
		if v, ok := s.cache.Get(id); ok {
			out[id] = v
			continue
		}
		misses = append(misses, id)
	}
	for start := 0; start < len(misses); start += getVectorsBatchSize {
		end := start + getVectorsBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		for _, id := range misses[start:end] {
			var vectors []*model.Vector
			for _, sector := range model.AllSectors {
				m, err := s.client.HGetAll(ctx, vecKey(sector, id)).Result()
				if err != nil || len(m) == 0 {
					continue
				}
				dim, _ := strconv.Atoi(m["dim"])
				var uid *string
				if v := m["user_id"]; v != "" {
					uid = &v
				}
				vectors = append(vectors, &model.Vector{
					MemoryID: id, Sector: sector, UserID: uid, Dim: dim,
					Values: persistence.DecodeVector([]byte(m["v"])),
				})
			}
			out[id] = vectors
			s.cache.Set(id, vectors)
		}
	}
	return out, nil
}

func (s *RedisStore) IterateVectorIDs(ctx context.Context, userID *string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, sector := range model.AllSectors {
		ids, err := s.client.SMembers(ctx, sectorIndexKey(sector, userID)).Result()
		if err != nil {
			return nil, errs.Storage("redis index scan failed", err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// CleanupOrphanedVectors cannot determine memory-row existence from Redis
// alone; it always returns 0 and deletes nothing, so orphaned Redis
// vectors are not removed by this backend.
func (s *RedisStore) CleanupOrphanedVectors(ctx context.Context, userID *string) (int, error) {
	return 0, nil
}
