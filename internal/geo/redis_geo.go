package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-console/internal/models"
)

// RedisIndex implements Index on Redis GEO commands so driver positions
// survive a console restart and can be shared with other consumers.
type RedisIndex struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, ctx: context.Background()}
}

func (r *RedisIndex) Upsert(d models.Driver) {
	// position as GEOADD, the rest as a meta hash
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Lng, Latitude: d.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(d.ID), map[string]interface{}{
		"name":    d.Name,
		"status":  string(d.Status),
		"class":   string(d.ServiceClass),
		"rating":  fmt.Sprintf("%f", d.Rating),
		"trust":   fmt.Sprintf("%f", d.TrustScore),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Nearby(lat, lng float64, limit int) []models.Driver {
	res, err := r.client.GeoRadius(r.ctx, r.key, lng, lat, &redis.GeoRadiusQuery{Radius: 5000, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name, Lat: g.Latitude, Lng: g.Longitude}
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			d.Name = m["name"]
			d.Status = models.DriverStatus(m["status"])
			d.ServiceClass = models.ServiceClass(m["class"])
			if v, ok := m["rating"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					d.Rating = f
				}
			}
			if v, ok := m["trust"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					d.TrustScore = f
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }
