package matcher

import (
	"math"
	"sort"

	"github.com/example/dispatch-console/internal/geo"
	"github.com/example/dispatch-console/internal/models"
)

// Policy knobs. These encode dispatch policy, not mechanism, so they live
// here as named defaults and can be overridden per Engine.
const (
	// DefaultTieBandKm: candidates whose pickup distances differ by no
	// more than this are ranked by rating instead of raw distance.
	DefaultTieBandKm = 0.5
	// DefaultEtaMinutesPerKm: fixed city-speed heuristic (24 km/h).
	DefaultEtaMinutesPerKm = 2.5
)

// Engine ranks the driver pool against a ride. Zero-valued knobs fall
// back to the defaults above.
type Engine struct {
	TieBandKm       float64
	EtaMinutesPerKm float64
}

func (e *Engine) tieBand() float64 {
	if e.TieBandKm > 0 {
		return e.TieBandKm
	}
	return DefaultTieBandKm
}

func (e *Engine) etaPerKm() float64 {
	if e.EtaMinutesPerKm > 0 {
		return e.EtaMinutesPerKm
	}
	return DefaultEtaMinutesPerKm
}

// EtaMinutes converts a pickup distance into the console's arrival
// estimate. This is a heuristic, not a routing call.
func (e *Engine) EtaMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm * e.etaPerKm()))
}

// ClassCompatible implements the cross-class substitution rule: exact
// class match, or a car serving a taxi request. Nothing else substitutes.
func ClassCompatible(ride models.ServiceClass, driver models.ServiceClass) bool {
	if ride == driver {
		return true
	}
	return ride == models.ClassTaxi && driver == models.ClassCar
}

// Dispatchable reports whether the driver's operational status allows
// new work. A busy set (drivers holding an active assignment) is applied
// by the caller on top of this.
func Dispatchable(d models.Driver) bool {
	return d.Status == models.DriverAvailable || d.Status == models.DriverIdle
}

// Eligible is the full candidacy check for one ride/driver pair.
func Eligible(ride models.Ride, d models.Driver) bool {
	return Dispatchable(d) && ClassCompatible(ride.ServiceClass, d.ServiceClass)
}

// Recommend returns the eligible drivers ranked for the ride. busy holds
// driver ids excluded because they already carry an active assignment;
// it may be nil.
//
// Ordering is banded, not strict: within the tie band the better-rated
// driver wins, equal ratings fall back to raw distance, and trust score
// breaks the last tie. Outside the band plain distance decides.
func (e *Engine) Recommend(ride models.Ride, drivers []models.Driver, busy map[string]bool) []models.Candidate {
	band := e.tieBand()
	out := make([]models.Candidate, 0, len(drivers))
	for _, d := range drivers {
		if busy[d.ID] || !Eligible(ride, d) {
			continue
		}
		km := geo.DistanceKm(d.Lat, d.Lng, ride.Pickup.Lat, ride.Pickup.Lng)
		out = append(out, models.Candidate{Driver: d, DistanceKm: km, EtaMinutes: e.EtaMinutes(km)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if math.Abs(a.DistanceKm-b.DistanceKm) <= band && a.Driver.Rating != b.Driver.Rating {
			return a.Driver.Rating > b.Driver.Rating
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.Driver.TrustScore > b.Driver.TrustScore
	})
	return out
}

// AutoSuggest returns the best match for the ride, or false when no
// driver qualifies.
func (e *Engine) AutoSuggest(ride models.Ride, drivers []models.Driver, busy map[string]bool) (models.Candidate, bool) {
	ranked := e.Recommend(ride, drivers, busy)
	if len(ranked) == 0 {
		return models.Candidate{}, false
	}
	return ranked[0], true
}
