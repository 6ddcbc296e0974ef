package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/models"
)

// NearbyCab is one entry from the live cab index.
type NearbyCab struct {
	CabID          int64
	Location       models.Location
	Status         models.CabStatus
	DistanceMeters float64
}

// CabIndex is the live geospatial view of the fleet, kept in Redis GEO.
// It serves read-mostly proximity lookups (nearby-cab listings, surge
// supply). It is NOT the source of truth for booking: the booking
// transaction reads candidate trips from Postgres under row locks.
type CabIndex struct {
	client *redis.Client
	key    string
}

// NewCabIndex wraps an existing Redis client. key is the GEO set name.
func NewCabIndex(client *redis.Client, key string) *CabIndex {
	return &CabIndex{client: client, key: key}
}

// Upsert records the cab's current position and status.
func (x *CabIndex) Upsert(ctx context.Context, cabID int64, loc models.Location, status models.CabStatus) error {
	name := strconv.FormatInt(cabID, 10)
	if err := x.client.GeoAdd(ctx, x.key, &redis.GeoLocation{
		Longitude: loc.Lon,
		Latitude:  loc.Lat,
		Name:      name,
	}).Err(); err != nil {
		return err
	}
	return x.client.HSet(ctx, metaKey(name), map[string]interface{}{
		"status":  string(status),
		"updated": time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

// Remove drops a cab from the index (e.g. when it goes offline).
func (x *CabIndex) Remove(ctx context.Context, cabID int64) error {
	name := strconv.FormatInt(cabID, 10)
	if err := x.client.ZRem(ctx, x.key, name).Err(); err != nil {
		return err
	}
	return x.client.Del(ctx, metaKey(name)).Err()
}

// Nearby returns up to limit cabs within radiusM of the point, nearest
// first. Offline cabs are filtered out via the metadata hash.
func (x *CabIndex) Nearby(ctx context.Context, loc models.Location, radiusM float64, limit int) ([]NearbyCab, error) {
	res, err := x.client.GeoRadius(ctx, x.key, loc.Lon, loc.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusM,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]NearbyCab, 0, len(res))
	for _, g := range res {
		id, err := strconv.ParseInt(g.Name, 10, 64)
		if err != nil {
			continue
		}
		nc := NearbyCab{
			CabID:          id,
			Location:       models.Location{Lat: g.Latitude, Lon: g.Longitude},
			DistanceMeters: g.Dist,
			Status:         models.CabOffline,
		}
		if m, err := x.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["status"]; ok {
				nc.Status = models.CabStatus(v)
			}
		}
		if !nc.Status.Bookable() {
			continue
		}
		out = append(out, nc)
	}
	return out, nil
}

func metaKey(name string) string { return "cab:meta:" + name }
