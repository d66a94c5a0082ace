package geo

import (
	"context"
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the sorted set holding driver positions.
const DefaultKey = "Drivers"

// RedisGeo implements Index using Redis GEO commands. GEOADD on an existing
// member replaces its position, which gives per-driver atomic upserts.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	if key == "" {
		key = DefaultKey
	}
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, id string, c models.Coord) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: id}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", id, err)
	}
	return nil
}

// Radius leaves Sort unset: Redis returns members in its own order.
func (r *RedisGeo) Radius(ctx context.Context, center models.Coord, radiusMeters float64) ([]string, error) {
	locs, err := r.client.GeoRadius(ctx, r.key, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	ids := make([]string, 0, len(locs))
	for _, l := range locs {
		ids = append(ids, l.Name)
	}
	return ids, nil
}

func (r *RedisGeo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
