package matcher

import (
	"sort"
	"strings"

	"github.com/example/dispatch-console/internal/geo"
	"github.com/example/dispatch-console/internal/models"
)

// FilterRides returns rides whose id, passenger name, pickup address or
// dropoff address contains q (case-insensitive). Empty q matches all.
func FilterRides(rides []models.Ride, q string) []models.Ride {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rides
	}
	out := make([]models.Ride, 0, len(rides))
	for _, r := range rides {
		if containsFold(r.ID, q) ||
			containsFold(r.Passenger.Name, q) ||
			containsFold(r.Pickup.Address, q) ||
			containsFold(r.Dropoff.Address, q) {
			out = append(out, r)
		}
	}
	return out
}

// FilterDrivers returns drivers whose id, name or vehicle plate contains
// q. When a ride is selected the result is additionally restricted to
// class-compatible drivers and sorted by distance to its pickup.
func FilterDrivers(drivers []models.Driver, q string, ride *models.Ride) []models.Driver {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.Driver, 0, len(drivers))
	for _, d := range drivers {
		if q != "" {
			plate := ""
			if d.Vehicle != nil {
				plate = d.Vehicle.Plate
			}
			if !containsFold(d.ID, q) && !containsFold(d.Name, q) && !containsFold(plate, q) {
				continue
			}
		}
		if ride != nil && !ClassCompatible(ride.ServiceClass, d.ServiceClass) {
			continue
		}
		out = append(out, d)
	}
	if ride != nil {
		sort.SliceStable(out, func(i, j int) bool {
			di := geo.DistanceKm(out[i].Lat, out[i].Lng, ride.Pickup.Lat, ride.Pickup.Lng)
			dj := geo.DistanceKm(out[j].Lat, out[j].Lng, ride.Pickup.Lat, ride.Pickup.Lng)
			return di < dj
		})
	}
	return out
}

func containsFold(s, lowered string) bool {
	return strings.Contains(strings.ToLower(s), lowered)
}
