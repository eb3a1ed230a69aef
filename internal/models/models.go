package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a geocoded address as shown on the console.
type Place struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type RideStatus string

const (
	RideRequested  RideStatus = "requested"
	RideAssigned   RideStatus = "assigned"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in-progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

type ServiceClass string

const (
	ClassTaxi     ServiceClass = "taxi"
	ClassMoto     ServiceClass = "moto"
	ClassDelivery ServiceClass = "delivery"
	ClassCar      ServiceClass = "car"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Passenger struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Ride is a pending dispatch request held in the ride queue.
type Ride struct {
	ID            string       `json:"id"`
	Status        RideStatus   `json:"status"`
	ServiceClass  ServiceClass `json:"service_class"`
	Priority      Priority     `json:"priority"`
	Passenger     Passenger    `json:"passenger"`
	Pickup        Place        `json:"pickup"`
	Dropoff       Place        `json:"dropoff"`
	Fare          float64      `json:"fare"`
	PaymentMethod string       `json:"payment_method"`
	RequestedAt   time.Time    `json:"requested_at"`
	Note          string       `json:"note,omitempty"`
}

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverIdle      DriverStatus = "idle"
	DriverOnTrip    DriverStatus = "on-trip"
	DriverOffline   DriverStatus = "offline"
)

type Vehicle struct {
	Type  string `json:"type"`
	Plate string `json:"plate"`
	Color string `json:"color"`
}

// Driver is a dispatch-eligible agent with a live position.
type Driver struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Status         DriverStatus `json:"status"`
	ServiceClass   ServiceClass `json:"service_class"`
	Lat            float64      `json:"lat"`
	Lng            float64      `json:"lng"`
	Rating         float64      `json:"rating"`      // 0..5
	TrustScore     float64      `json:"trust_score"` // 0..100
	CompletedTrips int          `json:"completed_trips"`
	Vehicle        *Vehicle     `json:"vehicle,omitempty"`
	LastAssignedAt time.Time    `json:"last_assigned_at,omitzero"`
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentRejected  AssignmentStatus = "rejected"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Assignment binds one ride to one driver. Pickup/dropoff addresses are
// denormalized so the record stays readable after the ride leaves the queue.
type Assignment struct {
	ID             string           `json:"id"`
	RideID         string           `json:"ride_id"`
	PickupAddress  string           `json:"pickup_address"`
	DropoffAddress string           `json:"dropoff_address"`
	DriverID       string           `json:"driver_id"`
	DriverName     string           `json:"driver_name"`
	AssignedBy     string           `json:"assigned_by"` // "system" or dispatcher name
	CreatedAt      time.Time        `json:"created_at"`
	Status         AssignmentStatus `json:"status"`
	DistanceKm     float64          `json:"distance_km"`
	EtaMinutes     int              `json:"eta_minutes"`
}

// Candidate is a driver annotated with its distance to a ride's pickup.
type Candidate struct {
	Driver     Driver  `json:"driver"`
	DistanceKm float64 `json:"distance_km"`
	EtaMinutes int     `json:"eta_minutes"`
}

// DispatchStats is the console's aggregate header, re-derived on each read.
type DispatchStats struct {
	PendingCount             int     `json:"pending_count"`
	AvailableCount           int     `json:"available_count"`
	AssignedToday            int     `json:"assigned_today"`
	AvgAssignmentTimeSeconds float64 `json:"avg_assignment_time_seconds"`
}
