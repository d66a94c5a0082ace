package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// Index is a mutable spatial index of entity positions. Upserts for one id are
// atomic; there is no consistency guarantee across ids.
type Index interface {
	Upsert(ctx context.Context, id string, c models.Coord) error
	// Radius returns the ids within radiusMeters of center. Callers must not
	// assume nearest-first ordering.
	Radius(ctx context.Context, center models.Coord, radiusMeters float64) ([]string, error)
}

// MemoryIndex keeps positions in a sync.Map so writers for different ids
// never contend on a shared lock.
type MemoryIndex struct {
	positions sync.Map // id -> models.Coord
}

func NewIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (g *MemoryIndex) Upsert(_ context.Context, id string, c models.Coord) error {
	g.positions.Store(id, c)
	return nil
}

// naive scan; ids come back sorted so results are reproducible
func (g *MemoryIndex) Radius(_ context.Context, center models.Coord, radiusMeters float64) ([]string, error) {
	var ids []string
	g.positions.Range(func(k, v any) bool {
		c := v.(models.Coord)
		if Haversine(center.Lat, center.Lon, c.Lat, c.Lon) <= radiusMeters {
			ids = append(ids, k.(string))
		}
		return true
	})
	sort.Strings(ids)
	return ids, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
