package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the fleet registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateTruckType inserts a truck type.
func (r *Repository) CreateTruckType(ctx context.Context, input TruckTypeInput) (*TruckType, error) {
	query := `
		INSERT INTO truck_types (name, service_type, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at`

	var tt TruckType
	err := r.pool.QueryRow(ctx, query, input.Name, input.ServiceType).
		Scan(&tt.ID, &tt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("fleet: create truck type: %w", err)
	}
	tt.Name = input.Name
	tt.ServiceType = input.ServiceType
	return &tt, nil
}

// CreateTruck inserts a truck.
func (r *Repository) CreateTruck(ctx context.Context, input TruckInput) (*Truck, error) {
	query := `
		INSERT INTO trucks (
			truck_type_id, registration, max_pickups, max_dropoffs, max_capacity,
			daily_operating_cost, is_available, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING id, created_at`

	var t Truck
	err := r.pool.QueryRow(ctx, query,
		input.TruckTypeID,
		input.Registration,
		input.MaxPickups,
		input.MaxDropoffs,
		input.MaxCapacity,
		input.DailyOperatingCost,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("fleet: create truck: %w", err)
	}

	t.TruckTypeID = input.TruckTypeID
	t.Registration = input.Registration
	t.MaxPickups = input.MaxPickups
	t.MaxDropoffs = input.MaxDropoffs
	t.MaxCapacity = input.MaxCapacity
	t.DailyOperatingCost = input.DailyOperatingCost
	t.IsAvailable = true
	return &t, nil
}

// GetTruck retrieves a truck by id.
func (r *Repository) GetTruck(ctx context.Context, id int64) (*Truck, error) {
	query := `
		SELECT id, truck_type_id, registration, max_pickups, max_dropoffs, max_capacity,
			daily_operating_cost, is_available, available_from, available_until, created_at
		FROM trucks
		WHERE id = $1`

	t, err := scanTruck(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fleet: truck %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTruckType retrieves a truck type by id.
func (r *Repository) GetTruckType(ctx context.Context, id int64) (*TruckType, error) {
	query := `SELECT id, name, service_type, created_at FROM truck_types WHERE id = $1`

	var tt TruckType
	err := r.pool.QueryRow(ctx, query, id).Scan(&tt.ID, &tt.Name, &tt.ServiceType, &tt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fleet: truck type %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// ListTrucksByServiceType returns trucks whose type serves the given service,
// cheapest daily cost first with id as tie break.
func (r *Repository) ListTrucksByServiceType(ctx context.Context, serviceType string) ([]Truck, error) {
	query := `
		SELECT t.id, t.truck_type_id, t.registration, t.max_pickups, t.max_dropoffs,
			t.max_capacity, t.daily_operating_cost, t.is_available,
			t.available_from, t.available_until, t.created_at
		FROM trucks t
		JOIN truck_types tt ON tt.id = t.truck_type_id
		WHERE tt.service_type = $1
		ORDER BY t.daily_operating_cost, t.id`

	rows, err := r.pool.Query(ctx, query, serviceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trucks []Truck
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, err
		}
		trucks = append(trucks, *t)
	}
	return trucks, rows.Err()
}

// ListTruckTypes returns all truck types.
func (r *Repository) ListTruckTypes(ctx context.Context) ([]TruckType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, service_type, created_at FROM truck_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []TruckType
	for rows.Next() {
		var tt TruckType
		if err := rows.Scan(&tt.ID, &tt.Name, &tt.ServiceType, &tt.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return types, rows.Err()
}

func scanTruck(row pgx.Row) (*Truck, error) {
	var t Truck
	var from, until pgtype.Timestamptz
	err := row.Scan(
		&t.ID, &t.TruckTypeID, &t.Registration, &t.MaxPickups, &t.MaxDropoffs,
		&t.MaxCapacity, &t.DailyOperatingCost, &t.IsAvailable, &from, &until, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if from.Valid {
		t.AvailableFrom = &from.Time
	}
	if until.Valid {
		t.AvailableUntil = &until.Time
	}
	return &t, nil
}
