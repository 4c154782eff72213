package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-logistics/meridian/internal/fleet"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/platform/db"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// Repository persists truck allocations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a serializable transaction. Isolation
// conflicts are translated so the service can retry them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("allocation: %w", shared.ErrConcurrencyConflict)
	}
	return err
}

// ListAllocations returns reservations for a logistics detail.
func (r *Repository) ListAllocations(ctx context.Context, logisticsDetailsID int64) ([]TruckAllocation, error) {
	query := `
		SELECT logistics_details_id, truck_id, quantity, created_at, released_at
		FROM truck_allocations
		WHERE logistics_details_id = $1
		ORDER BY truck_id`

	rows, err := r.pool.Query(ctx, query, logisticsDetailsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []TruckAllocation
	for rows.Next() {
		var a TruckAllocation
		var releasedAt pgtype.Timestamptz
		if err := rows.Scan(&a.LogisticsDetailsID, &a.TruckID, &a.Quantity, &a.CreatedAt, &releasedAt); err != nil {
			return nil, err
		}
		if releasedAt.Valid {
			a.ReleasedAt = &releasedAt.Time
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// GetLogisticsDetails reads the fulfilment record outside a transaction.
func (r *Repository) GetLogisticsDetails(ctx context.Context, logisticsDetailsID int64) (*orders.LogisticsDetails, error) {
	return scanDetails(r.pool.QueryRow(ctx, detailsQuery, logisticsDetailsID), logisticsDetailsID)
}

const detailsQuery = `
	SELECT id, pickup_id, service_type, quantity, scheduled_pickup_at, scheduled_delivery_at,
		simulated_pickup_at, simulated_delivery_at, status, created_at, updated_at
	FROM logistics_details
	WHERE id = $1`

func scanDetails(row pgx.Row, id int64) (*orders.LogisticsDetails, error) {
	var d orders.LogisticsDetails
	var simPickup, simDelivery pgtype.Timestamptz
	err := row.Scan(
		&d.ID, &d.PickupID, &d.ServiceType, &d.Quantity,
		&d.ScheduledPickupAt, &d.ScheduledDeliveryAt,
		&simPickup, &simDelivery, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("allocation: logistics details %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if simPickup.Valid {
		d.SimulatedPickupAt = &simPickup.Time
	}
	if simDelivery.Valid {
		d.SimulatedDeliveryAt = &simDelivery.Time
	}
	return &d, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetLogisticsDetailsForUpdate(ctx context.Context, logisticsDetailsID int64) (*orders.LogisticsDetails, error) {
	return scanDetails(t.tx.QueryRow(ctx, detailsQuery+` FOR UPDATE`, logisticsDetailsID), logisticsDetailsID)
}

// LockCandidateTrucks locks the available trucks of the requested service type
// for the duration of the allocation transaction.
func (t *txRepo) LockCandidateTrucks(ctx context.Context, serviceType string, windowStart, windowEnd time.Time) ([]fleet.Truck, error) {
	query := `
		SELECT t.id, t.truck_type_id, t.registration, t.max_pickups, t.max_dropoffs,
			t.max_capacity, t.daily_operating_cost, t.is_available,
			t.available_from, t.available_until, t.created_at
		FROM trucks t
		JOIN truck_types tt ON tt.id = t.truck_type_id
		WHERE tt.service_type = $1 AND t.is_available
		ORDER BY t.id
		FOR UPDATE OF t`

	rows, err := t.tx.Query(ctx, query, serviceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trucks []fleet.Truck
	for rows.Next() {
		var truck fleet.Truck
		var from, until pgtype.Timestamptz
		err := rows.Scan(
			&truck.ID, &truck.TruckTypeID, &truck.Registration,
			&truck.MaxPickups, &truck.MaxDropoffs, &truck.MaxCapacity,
			&truck.DailyOperatingCost, &truck.IsAvailable, &from, &until, &truck.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if from.Valid {
			truck.AvailableFrom = &from.Time
		}
		if until.Valid {
			truck.AvailableUntil = &until.Time
		}
		trucks = append(trucks, truck)
	}
	return trucks, rows.Err()
}

// GetActiveUsage recomputes committed pickups, dropoffs and quantity per truck
// from allocations whose logistics detail has not reached a terminal status.
func (t *txRepo) GetActiveUsage(ctx context.Context, truckIDs []int64) (map[int64]Usage, error) {
	usage := make(map[int64]Usage, len(truckIDs))
	if len(truckIDs) == 0 {
		return usage, nil
	}

	query := `
		SELECT ta.truck_id, COUNT(*), COALESCE(SUM(ta.quantity), 0)
		FROM truck_allocations ta
		JOIN logistics_details ld ON ld.id = ta.logistics_details_id
		WHERE ta.truck_id = ANY($1)
			AND ta.released_at IS NULL
			AND ld.status NOT IN ('DELIVERED', 'CANCELLED')
		GROUP BY ta.truck_id`

	rows, err := t.tx.Query(ctx, query, truckIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var truckID int64
		var count, quantity int
		if err := rows.Scan(&truckID, &count, &quantity); err != nil {
			return nil, err
		}
		// Each active allocation holds one pickup leg and one dropoff leg.
		usage[truckID] = Usage{Pickups: count, Dropoffs: count, Quantity: quantity}
	}
	return usage, rows.Err()
}

func (t *txRepo) InsertAllocation(ctx context.Context, allocation TruckAllocation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO truck_allocations (logistics_details_id, truck_id, quantity, created_at)
		VALUES ($1, $2, $3, $4)`,
		allocation.LogisticsDetailsID, allocation.TruckID, allocation.Quantity, allocation.CreatedAt)
	if err != nil && db.IsUniqueViolation(err) {
		return fmt.Errorf("allocation: truck %d already allocated to details %d: %w",
			allocation.TruckID, allocation.LogisticsDetailsID, shared.ErrConcurrencyConflict)
	}
	return err
}

func (t *txRepo) UpdateLogisticsStatus(ctx context.Context, logisticsDetailsID int64, status orders.LogisticsStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE logistics_details SET status = $2, updated_at = NOW() WHERE id = $1`,
		logisticsDetailsID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("allocation: logistics details %d: %w", logisticsDetailsID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) ReleaseAllocations(ctx context.Context, logisticsDetailsID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE truck_allocations SET released_at = NOW()
		WHERE logistics_details_id = $1 AND released_at IS NULL`,
		logisticsDetailsID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
