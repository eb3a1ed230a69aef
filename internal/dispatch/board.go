package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/example/dispatch-console/internal/geo"
	"github.com/example/dispatch-console/internal/matcher"
	"github.com/example/dispatch-console/internal/models"
	"github.com/example/dispatch-console/internal/observability"
	"github.com/example/dispatch-console/internal/storage"
)

// Notifier pushes a fresh assignment to the matched driver's device.
type Notifier interface {
	Notify(driverID string, a models.Assignment) error
}

// EventSink receives assignment lifecycle events for downstream audit.
type EventSink interface {
	PublishAssignment(kind string, a models.Assignment) error
}

// Board owns the ride queue, the driver pool and the assignment ledger.
// One mutex guards all three: the refresh tick and an operator's
// assign/cancel are the only writers, and neither may observe the others'
// half-applied state (a refresh overwriting the pool must not race an
// assign that just read a driver as eligible).
type Board struct {
	Engine *matcher.Engine
	Store  storage.AssignmentStore
	Notify Notifier  // optional
	Events EventSink // optional
	Now    func() time.Time

	mu          sync.Mutex
	rides       map[string]models.Ride
	drivers     map[string]models.Driver
	assignments map[string]models.Assignment
	order       []string             // assignment ids, creation order
	busy        map[string]string    // driver id -> active assignment id
	consumed    map[string]bool      // ride ids already turned into assignments
	requested   map[string]time.Time // assignment id -> ride request time

	selectedRide   string
	selectedDriver string
}

func NewBoard(engine *matcher.Engine, store storage.AssignmentStore) *Board {
	if engine == nil {
		engine = &matcher.Engine{}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Board{
		Engine:      engine,
		Store:       store,
		Now:         time.Now,
		rides:       make(map[string]models.Ride),
		drivers:     make(map[string]models.Driver),
		assignments: make(map[string]models.Assignment),
		busy:        make(map[string]string),
		consumed:    make(map[string]bool),
		requested:   make(map[string]time.Time),
	}
}

// UpsertRides merges a snapshot from the request feed into the queue.
// Rides already consumed by an assignment, and rides the feed no longer
// reports as requested, are skipped. Nothing is evicted here: the queue
// only shrinks through Assign.
func (b *Board) UpsertRides(rides []models.Ride) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rides {
		if r.Status != models.RideRequested || b.consumed[r.ID] {
			continue
		}
		b.rides[r.ID] = r
	}
}

// UpsertDrivers merges a snapshot from the location feed into the pool.
func (b *Board) UpsertDrivers(drivers []models.Driver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range drivers {
		b.drivers[d.ID] = d
	}
}

// UpsertDriver records a single live beacon.
func (b *Board) UpsertDriver(d models.Driver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drivers[d.ID] = d
}

// JitterFunc perturbs one coordinate pair. Injected by the scheduler so
// tests can replace or disable movement simulation.
type JitterFunc func(lat, lng float64) (float64, float64)

// ApplyJitter runs the strategy over every driver in the pool.
func (b *Board) ApplyJitter(fn JitterFunc) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, d := range b.drivers {
		d.Lat, d.Lng = fn(d.Lat, d.Lng)
		b.drivers[id] = d
	}
}

func (b *Board) ListRides() []models.Ride {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Ride, 0, len(b.rides))
	for _, r := range b.rides {
		out = append(out, r)
	}
	return out
}

func (b *Board) ListDrivers() []models.Driver {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Driver, 0, len(b.drivers))
	for _, d := range b.drivers {
		out = append(out, d)
	}
	return out
}

// ListAssignments returns the ledger in creation order. The ledger only
// grows; records are status-transitioned, never deleted.
func (b *Board) ListAssignments() []models.Assignment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Assignment, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.assignments[id])
	}
	return out
}

func (b *Board) GetRide(id string) (models.Ride, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rides[id]
	return r, ok
}

func (b *Board) GetAssignment(id string) (models.Assignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.assignments[id]
	return a, ok
}

// RestoreAssignments reloads persisted ledger history, in store order,
// into a freshly constructed board. Non-terminal records keep their
// driver marked busy, and every restored ride id stays consumed so a
// lagging feed cannot re-queue a ride that already produced an
// assignment before the restart.
func (b *Board) RestoreAssignments(history []models.Assignment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range history {
		if _, ok := b.assignments[a.ID]; ok {
			continue
		}
		b.assignments[a.ID] = a
		b.order = append(b.order, a.ID)
		b.consumed[a.RideID] = true
		if !terminal(a.Status) {
			b.busy[a.DriverID] = a.ID
		}
	}
}

// Recommend ranks the current pool against a queued ride.
func (b *Board) Recommend(rideID string) ([]models.Candidate, error) {
	b.mu.Lock()
	ride, ok := b.rides[rideID]
	if !ok {
		b.mu.Unlock()
		return nil, ErrRideNotFound
	}
	drivers := make([]models.Driver, 0, len(b.drivers))
	for _, d := range b.drivers {
		drivers = append(drivers, d)
	}
	busy := make(map[string]bool, len(b.busy))
	for id := range b.busy {
		busy[id] = true
	}
	b.mu.Unlock()
	// ranking is pure, no reason to hold the lock for it
	return b.Engine.Recommend(ride, drivers, busy), nil
}

// AutoSuggest returns the top-ranked candidate for the ride, if any.
func (b *Board) AutoSuggest(rideID string) (models.Candidate, error) {
	ranked, err := b.Recommend(rideID)
	if err != nil {
		return models.Candidate{}, err
	}
	if len(ranked) == 0 {
		return models.Candidate{}, ErrDriverNotFound
	}
	return ranked[0], nil
}

// Assign consumes a queued ride and binds it to a driver, producing one
// pending assignment. The whole precondition check and mutation run under
// the board lock, so a concurrent refresh or a second assign can never
// double-book the driver. Preconditions fail all-or-nothing.
func (b *Board) Assign(ctx context.Context, rideID, driverID, actor string) (models.Assignment, error) {
	b.mu.Lock()
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		return models.Assignment{}, err
	}
	ride, ok := b.rides[rideID]
	if !ok {
		b.mu.Unlock()
		return models.Assignment{}, ErrRideNotFound
	}
	d, ok := b.drivers[driverID]
	if !ok {
		b.mu.Unlock()
		return models.Assignment{}, ErrDriverNotFound
	}
	if _, taken := b.busy[driverID]; taken {
		b.mu.Unlock()
		return models.Assignment{}, ErrDriverBusy
	}
	if !matcher.Eligible(ride, d) {
		b.mu.Unlock()
		return models.Assignment{}, ErrDriverNotEligible
	}
	if !geo.ValidCoord(ride.Pickup.Lat, ride.Pickup.Lng) || !geo.ValidCoord(d.Lat, d.Lng) {
		b.mu.Unlock()
		return models.Assignment{}, ErrBadCoordinates
	}

	now := b.Now()
	km := geo.DistanceKm(d.Lat, d.Lng, ride.Pickup.Lat, ride.Pickup.Lng)
	if actor == "" {
		actor = "system"
	}
	a := models.Assignment{
		ID:             newID(),
		RideID:         ride.ID,
		PickupAddress:  ride.Pickup.Address,
		DropoffAddress: ride.Dropoff.Address,
		DriverID:       d.ID,
		DriverName:     d.Name,
		AssignedBy:     actor,
		CreatedAt:      now,
		Status:         models.AssignmentPending,
		DistanceKm:     km,
		EtaMinutes:     b.Engine.EtaMinutes(km),
	}

	delete(b.rides, ride.ID)
	b.consumed[ride.ID] = true
	b.assignments[a.ID] = a
	b.order = append(b.order, a.ID)
	b.busy[d.ID] = a.ID
	b.requested[a.ID] = ride.RequestedAt
	d.LastAssignedAt = now
	b.drivers[d.ID] = d
	b.selectedRide, b.selectedDriver = "", ""
	b.mu.Unlock()

	observability.AssignmentsTotal.Inc()
	// audit sinks are best-effort; ledger state above is the authority
	if err := b.Store.SaveAssignment(ctx, a); err != nil {
		observability.StoreErrors.Inc()
	}
	if b.Events != nil {
		_ = b.Events.PublishAssignment("created", a)
	}
	if b.Notify != nil {
		_ = b.Notify.Notify(d.ID, a)
	}
	return a, nil
}

// Accept moves a pending assignment to accepted.
func (b *Board) Accept(ctx context.Context, id string) (models.Assignment, error) {
	return b.transition(ctx, id, models.AssignmentAccepted)
}

// Reject moves a pending assignment to rejected. The ride is not
// requeued: the ledger is history, and the upstream feed re-emits any
// ride it still considers pending on the next refresh tick.
func (b *Board) Reject(ctx context.Context, id string) (models.Assignment, error) {
	return b.transition(ctx, id, models.AssignmentRejected)
}

// Complete moves an accepted assignment to completed.
func (b *Board) Complete(ctx context.Context, id string) (models.Assignment, error) {
	return b.transition(ctx, id, models.AssignmentCompleted)
}

// Cancel moves a non-terminal assignment to cancelled. Re-cancelling a
// terminal assignment is rejected with ErrTerminalState.
func (b *Board) Cancel(ctx context.Context, id string) (models.Assignment, error) {
	return b.transition(ctx, id, models.AssignmentCancelled)
}

var transitions = map[models.AssignmentStatus][]models.AssignmentStatus{
	models.AssignmentPending:  {models.AssignmentAccepted, models.AssignmentRejected, models.AssignmentCancelled},
	models.AssignmentAccepted: {models.AssignmentCompleted, models.AssignmentCancelled},
}

func canTransition(from, to models.AssignmentStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func terminal(s models.AssignmentStatus) bool {
	_, live := transitions[s]
	return !live
}

func (b *Board) transition(ctx context.Context, id string, to models.AssignmentStatus) (models.Assignment, error) {
	b.mu.Lock()
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		return models.Assignment{}, err
	}
	a, ok := b.assignments[id]
	if !ok {
		b.mu.Unlock()
		return models.Assignment{}, ErrAssignmentNotFound
	}
	if terminal(a.Status) {
		b.mu.Unlock()
		return models.Assignment{}, ErrTerminalState
	}
	if !canTransition(a.Status, to) {
		b.mu.Unlock()
		return models.Assignment{}, ErrInvalidTransition
	}
	a.Status = to
	b.assignments[id] = a
	if terminal(to) {
		delete(b.busy, a.DriverID)
	}
	b.mu.Unlock()

	observability.TransitionsTotal.WithLabelValues(string(to)).Inc()
	if err := b.Store.UpdateAssignmentStatus(ctx, a.ID, a.Status); err != nil {
		observability.StoreErrors.Inc()
	}
	if b.Events != nil {
		_ = b.Events.PublishAssignment(string(to), a)
	}
	return a, nil
}

// SelectRide sets the console's ride cursor.
func (b *Board) SelectRide(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rides[id]; !ok {
		return ErrRideNotFound
	}
	b.selectedRide = id
	return nil
}

// SelectDriver sets the console's driver cursor.
func (b *Board) SelectDriver(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drivers[id]; !ok {
		return ErrDriverNotFound
	}
	b.selectedDriver = id
	return nil
}

// Selection returns the current cursor; both ids are empty right after a
// successful assign.
func (b *Board) Selection() (rideID, driverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selectedRide, b.selectedDriver
}

// Stats re-derives the console header from the live collections. Nothing
// here is a persisted counter.
func (b *Board) Stats() models.DispatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	var s models.DispatchStats
	s.PendingCount = len(b.rides)
	for id, d := range b.drivers {
		if _, taken := b.busy[id]; !taken && matcher.Dispatchable(d) {
			s.AvailableCount++
		}
	}
	now := b.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var totalSec float64
	var timed int
	for _, id := range b.order {
		a := b.assignments[id]
		if a.CreatedAt.Before(midnight) {
			continue
		}
		s.AssignedToday++
		if req, ok := b.requested[id]; ok && !req.IsZero() && !a.CreatedAt.Before(req) {
			totalSec += a.CreatedAt.Sub(req).Seconds()
			timed++
		}
	}
	if timed > 0 {
		s.AvgAssignmentTimeSeconds = totalSec / float64(timed)
	}
	return s
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
