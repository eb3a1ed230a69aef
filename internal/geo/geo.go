package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/dispatch-console/internal/models"
)

// Index is the minimal position-index interface used by the handlers and
// the refresh loop. Implementations: in-memory map or Redis GEO.
type Index interface {
	Nearby(lat, lng float64, limit int) []models.Driver
	Upsert(d models.Driver)
}

type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
	updated map[string]time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.Driver), updated: make(map[string]time.Time)}
}

func (g *MemoryIndex) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.ID] = d
	g.updated[d.ID] = time.Now()
}

// naive scan; in prod use geo-hash or H3
func (g *MemoryIndex) Nearby(lat, lng float64, limit int) []models.Driver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if d.Status == models.DriverOffline {
			continue
		}
		arr = append(arr, pair{d, DistanceKm(lat, lng, d.Lat, d.Lng)})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out
}

// EarthRadiusKm is the haversine sphere radius shared by every distance
// figure the console shows.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two coordinates in
// kilometers. Pure and symmetric; inputs are not validated, out-of-range
// coordinates yield a degenerate but finite result (see ValidCoord).
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// ValidCoord reports whether a lat/lng pair is inside the WGS84 range.
// Mutating callers check this so degenerate distances never reach the ledger.
func ValidCoord(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
