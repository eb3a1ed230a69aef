package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/dispatch-console/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveAssignment(ctx context.Context, a models.Assignment) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO assignments(id, ride_id, pickup_address, dropoff_address, driver_id, driver_name, assigned_by, status, distance_km, eta_minutes, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.RideID, a.PickupAddress, a.DropoffAddress, a.DriverID, a.DriverName, a.AssignedBy, a.Status, a.DistanceKm, a.EtaMinutes, a.CreatedAt, a.CreatedAt)
	return err
}

func (p *PostgresStore) UpdateAssignmentStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	_, err := p.db.ExecContext(ctx, `UPDATE assignments SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	return err
}

func (p *PostgresStore) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, ride_id, pickup_address, dropoff_address, driver_id, driver_name, assigned_by, status, distance_km, eta_minutes, created_at FROM assignments ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.RideID, &a.PickupAddress, &a.DropoffAddress, &a.DriverID, &a.DriverName, &a.AssignedBy, &a.Status, &a.DistanceKm, &a.EtaMinutes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
