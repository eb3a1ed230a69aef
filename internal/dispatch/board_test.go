package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/dispatch-console/internal/matcher"
	"github.com/example/dispatch-console/internal/models"
)

func testRide(id string) models.Ride {
	return models.Ride{
		ID:           id,
		Status:       models.RideRequested,
		ServiceClass: models.ClassTaxi,
		Passenger:    models.Passenger{ID: "p1", Name: "Maria Santos"},
		Pickup:       models.Place{Address: "Ayala Ave", Lat: 14.60, Lng: 120.98},
		Dropoff:      models.Place{Address: "NAIA T3", Lat: 14.51, Lng: 121.02},
		RequestedAt:  time.Now().Add(-time.Minute),
	}
}

func testDriver(id string, lat, lng, rating float64) models.Driver {
	return models.Driver{ID: id, Name: "Driver " + id, Status: models.DriverAvailable, ServiceClass: models.ClassTaxi, Lat: lat, Lng: lng, Rating: rating}
}

func newTestBoard() *Board {
	return NewBoard(&matcher.Engine{}, nil)
}

func TestAssignConsumesRide(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.598, 120.983, 4.8)})

	a, err := b.Assign(context.Background(), "R1", "D1", "op-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.Status != models.AssignmentPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	if a.RideID != "R1" || a.DriverID != "D1" || a.AssignedBy != "op-1" {
		t.Fatalf("bad assignment: %+v", a)
	}
	if a.PickupAddress != "Ayala Ave" || a.DropoffAddress != "NAIA T3" {
		t.Fatalf("addresses not snapshotted: %+v", a)
	}
	if a.DistanceKm <= 0 || a.EtaMinutes <= 0 {
		t.Fatalf("expected computed distance/eta, got %+v", a)
	}
	for _, r := range b.ListRides() {
		if r.ID == "R1" {
			t.Fatal("assigned ride still in queue")
		}
	}
	ledger := b.ListAssignments()
	if len(ledger) != 1 || ledger[0].ID != a.ID {
		t.Fatalf("expected exactly one ledger entry, got %d", len(ledger))
	}
}

func TestAssignScenario(t *testing.T) {
	// D1 is closer and outside the tie band, so it must be suggested
	// first; assigning it leaves one pending assignment and R1 gone.
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{
		testDriver("D1", 14.598, 120.983, 4.8),
		testDriver("D2", 14.63, 121.01, 4.9),
	})

	ranked, err := b.Recommend("R1")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(ranked) != 2 || ranked[0].Driver.ID != "D1" || ranked[1].Driver.ID != "D2" {
		t.Fatalf("expected [D1 D2], got %+v", ranked)
	}

	if _, err := b.Assign(context.Background(), "R1", "D1", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(b.ListRides()) != 0 {
		t.Fatal("R1 still pending")
	}
	got := b.ListAssignments()
	if len(got) != 1 || got[0].Status != models.AssignmentPending {
		t.Fatalf("expected one pending assignment, got %+v", got)
	}
}

func TestAutoSuggestPicksHead(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})

	if _, err := b.AutoSuggest("R1"); !errors.Is(err, ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound on empty pool, got %v", err)
	}

	b.UpsertDrivers([]models.Driver{
		testDriver("D1", 14.598, 120.983, 4.8),
		testDriver("D2", 14.63, 121.01, 4.9),
	})
	best, err := b.AutoSuggest("R1")
	if err != nil {
		t.Fatalf("autosuggest: %v", err)
	}
	if best.Driver.ID != "D1" {
		t.Fatalf("expected D1 suggested, got %s", best.Driver.ID)
	}
	if _, err := b.AutoSuggest("nope"); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestAssignNotFound(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})

	if _, err := b.Assign(context.Background(), "missing", "D1", ""); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
	if _, err := b.Assign(context.Background(), "R1", "missing", ""); !errors.Is(err, ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
	// failed assigns leave state untouched
	if len(b.ListRides()) != 1 || len(b.ListAssignments()) != 0 {
		t.Fatal("failed assign mutated state")
	}
}

func TestAssignRejectsIneligibleDriver(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	moto := testDriver("M1", 14.6, 120.98, 4.9)
	moto.ServiceClass = models.ClassMoto
	offline := testDriver("O1", 14.6, 120.98, 4.9)
	offline.Status = models.DriverOffline
	b.UpsertDrivers([]models.Driver{moto, offline})

	if _, err := b.Assign(context.Background(), "R1", "M1", ""); !errors.Is(err, ErrDriverNotEligible) {
		t.Fatalf("expected ErrDriverNotEligible for moto, got %v", err)
	}
	if _, err := b.Assign(context.Background(), "R1", "O1", ""); !errors.Is(err, ErrDriverNotEligible) {
		t.Fatalf("expected ErrDriverNotEligible for offline, got %v", err)
	}
}

func TestAssignCarForTaxiRide(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	car := testDriver("C1", 14.6, 120.98, 4.5)
	car.ServiceClass = models.ClassCar
	b.UpsertDrivers([]models.Driver{car})

	if _, err := b.Assign(context.Background(), "R1", "C1", ""); err != nil {
		t.Fatalf("car driver must serve taxi ride, got %v", err)
	}
}

func TestAssignRejectsBadCoordinates(t *testing.T) {
	b := newTestBoard()
	r := testRide("R1")
	r.Pickup.Lat = 123.0
	b.UpsertRides([]models.Ride{r})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})

	if _, err := b.Assign(context.Background(), "R1", "D1", ""); !errors.Is(err, ErrBadCoordinates) {
		t.Fatalf("expected ErrBadCoordinates, got %v", err)
	}
}

func TestNoDoubleBooking(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1"), testRide("R2")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, rideID := range []string{"R1", "R2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := b.Assign(context.Background(), id, "D1", "")
			errs <- err
		}(rideID)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrDriverBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful assign, got %d", success)
	}
}

func TestTransitionsAndTerminality(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})
	ctx := context.Background()

	a, err := b.Assign(ctx, "R1", "D1", "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := b.Complete(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->completed must fail, got %v", err)
	}
	if _, err := b.Accept(ctx, a.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := b.Reject(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accepted->rejected must fail, got %v", err)
	}
	if _, err := b.Complete(ctx, a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// completed is terminal: re-cancel is rejected explicitly
	if _, err := b.Cancel(ctx, a.ID); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("cancel on completed must return ErrTerminalState, got %v", err)
	}
	if _, err := b.Cancel(ctx, "nope"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestTerminalTransitionFreesDriver(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1"), testRide("R2")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})
	ctx := context.Background()

	a, err := b.Assign(ctx, "R1", "D1", "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := b.Assign(ctx, "R2", "D1", ""); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("expected ErrDriverBusy while pending, got %v", err)
	}
	if _, err := b.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := b.Assign(ctx, "R2", "D1", ""); err != nil {
		t.Fatalf("driver must be free after cancellation, got %v", err)
	}
}

func TestCancelDoesNotRequeueRide(t *testing.T) {
	b := newTestBoard()
	ride := testRide("R1")
	b.UpsertRides([]models.Ride{ride})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})
	ctx := context.Background()

	a, err := b.Assign(ctx, "R1", "D1", "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := b.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(b.ListRides()) != 0 {
		t.Fatal("cancelled assignment must not requeue the ride")
	}
	// even a refresh that still carries the ride must not resurrect it:
	// the ledger consumed it exactly once
	b.UpsertRides([]models.Ride{ride})
	if len(b.ListRides()) != 0 {
		t.Fatal("refresh resurrected a consumed ride")
	}
	got, _ := b.GetAssignment(a.ID)
	if got.Status != models.AssignmentCancelled {
		t.Fatalf("ledger record lost: %+v", got)
	}
}

func TestUpsertRidesSkipsNonRequested(t *testing.T) {
	b := newTestBoard()
	done := testRide("R9")
	done.Status = models.RideCompleted
	b.UpsertRides([]models.Ride{testRide("R1"), done})
	if len(b.ListRides()) != 1 {
		t.Fatalf("expected 1 queued ride, got %d", len(b.ListRides()))
	}
}

func TestSelectionClearedOnAssign(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})

	if err := b.SelectRide("R1"); err != nil {
		t.Fatalf("select ride: %v", err)
	}
	if err := b.SelectDriver("D1"); err != nil {
		t.Fatalf("select driver: %v", err)
	}
	if r, d := b.Selection(); r != "R1" || d != "D1" {
		t.Fatalf("selection not recorded: %s %s", r, d)
	}
	if _, err := b.Assign(context.Background(), "R1", "D1", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if r, d := b.Selection(); r != "" || d != "" {
		t.Fatalf("selection must clear on assign, got %s %s", r, d)
	}
	if err := b.SelectRide("nope"); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestApplyJitter(t *testing.T) {
	b := newTestBoard()
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})
	b.ApplyJitter(func(lat, lng float64) (float64, float64) { return lat + 1, lng - 1 })
	d := b.ListDrivers()[0]
	if d.Lat != 15.6 || d.Lng != 119.98 {
		t.Fatalf("jitter not applied: %+v", d)
	}
	b.ApplyJitter(nil) // no-op, must not panic
}

func TestStatsDerivation(t *testing.T) {
	b := newTestBoard()
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b.Now = func() time.Time { return fixed }

	r1 := testRide("R1")
	r1.RequestedAt = fixed.Add(-90 * time.Second)
	r2 := testRide("R2")
	r2.RequestedAt = fixed.Add(-30 * time.Second)
	b.UpsertRides([]models.Ride{r1, r2, testRide("R3")})
	b.UpsertDrivers([]models.Driver{
		testDriver("D1", 14.6, 120.98, 4.5),
		testDriver("D2", 14.61, 120.99, 4.2),
	})
	ctx := context.Background()

	s := b.Stats()
	if s.PendingCount != 3 || s.AvailableCount != 2 || s.AssignedToday != 0 {
		t.Fatalf("unexpected initial stats: %+v", s)
	}

	if _, err := b.Assign(ctx, "R1", "D1", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := b.Assign(ctx, "R2", "D2", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}

	s = b.Stats()
	if s.PendingCount != 1 {
		t.Fatalf("expected 1 pending, got %d", s.PendingCount)
	}
	if s.AvailableCount != 0 {
		t.Fatalf("busy drivers still counted available: %d", s.AvailableCount)
	}
	if s.AssignedToday != 2 {
		t.Fatalf("expected 2 assigned today, got %d", s.AssignedToday)
	}
	if s.AvgAssignmentTimeSeconds != 60 {
		t.Fatalf("expected avg 60s (90+30)/2, got %f", s.AvgAssignmentTimeSeconds)
	}
}

func TestRestoreAssignmentsRebuildsLedger(t *testing.T) {
	b := newTestBoard()
	history := []models.Assignment{
		{ID: "a1", RideID: "R1", DriverID: "D1", DriverName: "Driver D1", Status: models.AssignmentPending, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "a2", RideID: "R2", DriverID: "D2", DriverName: "Driver D2", Status: models.AssignmentCompleted, CreatedAt: time.Now().Add(-30 * time.Minute)},
	}
	b.RestoreAssignments(history)

	got := b.ListAssignments()
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("history not restored in order: %+v", got)
	}

	b.UpsertRides([]models.Ride{testRide("R3")})
	b.UpsertDrivers([]models.Driver{
		testDriver("D1", 14.6, 120.98, 4.5),
		testDriver("D2", 14.6, 120.98, 4.5),
	})

	// D1 still holds the restored pending assignment
	if _, err := b.Assign(context.Background(), "R3", "D1", ""); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("expected ErrDriverBusy for restored pending assignment, got %v", err)
	}
	// D2's restored assignment is terminal, the driver is free
	if _, err := b.Assign(context.Background(), "R3", "D2", ""); err != nil {
		t.Fatalf("driver with terminal history must be assignable, got %v", err)
	}
	// rides consumed before the restart stay consumed
	b.UpsertRides([]models.Ride{testRide("R1")})
	for _, r := range b.ListRides() {
		if r.ID == "R1" {
			t.Fatal("restored ride id re-queued by a lagging feed")
		}
	}
	// restoring the same history twice must not duplicate records
	b.RestoreAssignments(history)
	if n := len(b.ListAssignments()); n != 3 {
		t.Fatalf("expected 3 ledger entries after re-restore, got %d", n)
	}
}

func TestAssignHonorsContext(t *testing.T) {
	b := newTestBoard()
	b.UpsertRides([]models.Ride{testRide("R1")})
	b.UpsertDrivers([]models.Driver{testDriver("D1", 14.6, 120.98, 4.5)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Assign(ctx, "R1", "D1", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(b.ListRides()) != 1 {
		t.Fatal("expired assign mutated the queue")
	}
}
