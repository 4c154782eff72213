package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads reporting aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountPickupsByStatus groups pickups by payment and logistics status.
func (r *Repository) CountPickupsByStatus(ctx context.Context) ([]StatusCount, error) {
	query := `
		SELECT p.payment_status, ld.status, COUNT(*)
		FROM pickups p
		JOIN logistics_details ld ON ld.pickup_id = p.id
		GROUP BY p.payment_status, ld.status
		ORDER BY p.payment_status, ld.status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.PaymentStatus, &c.LogisticsStatus, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RevenueByMonth sums credited payments per calendar month in the range.
// Revenue is derived from the ledger, never from the cached invoice flag.
func (r *Repository) RevenueByMonth(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	query := `
		SELECT to_char(date_trunc('month', le.transaction_date), 'YYYY-MM') AS period,
			COALESCE(SUM(le.amount), 0),
			COUNT(DISTINCT le.invoice_id)
		FROM transaction_ledger le
		WHERE le.transaction_type = 'PAYMENT_RECEIVED'
			AND le.transaction_date >= $1 AND le.transaction_date < $2
		GROUP BY period
		ORDER BY period`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []RevenuePoint
	for rows.Next() {
		var p RevenuePoint
		if err := rows.Scan(&p.Period, &p.Revenue, &p.Invoices); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// OutstandingInvoices lists unpaid invoices with their ledger-derived balance.
func (r *Repository) OutstandingInvoices(ctx context.Context) ([]OutstandingInvoice, error) {
	query := `
		SELECT i.id, i.reference_number, c.id, c.name, i.total_amount,
			COALESCE(SUM(le.amount), 0) AS balance
		FROM invoices i
		JOIN pickups p ON p.invoice_id = i.id
		JOIN companies c ON c.id = p.company_id
		LEFT JOIN transaction_ledger le ON le.invoice_id = i.id
		WHERE NOT i.paid AND p.payment_status <> 'CANCELLED'
		GROUP BY i.id, i.reference_number, c.id, c.name, i.total_amount
		ORDER BY i.created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []OutstandingInvoice
	for rows.Next() {
		var o OutstandingInvoice
		if err := rows.Scan(&o.InvoiceID, &o.ReferenceNumber, &o.CompanyID, &o.CompanyName,
			&o.TotalAmount, &o.Balance); err != nil {
			return nil, err
		}
		o.Outstanding = o.TotalAmount - o.Balance
		invoices = append(invoices, o)
	}
	return invoices, rows.Err()
}

// FleetUtilization reports committed usage per truck over active allocations.
func (r *Repository) FleetUtilization(ctx context.Context) ([]FleetUtilization, error) {
	query := `
		SELECT t.id, t.registration, t.max_pickups, t.max_capacity,
			COUNT(ld.id),
			COALESCE(SUM(ta.quantity) FILTER (WHERE ld.id IS NOT NULL), 0)
		FROM trucks t
		LEFT JOIN truck_allocations ta ON ta.truck_id = t.id AND ta.released_at IS NULL
		LEFT JOIN logistics_details ld ON ld.id = ta.logistics_details_id
			AND ld.status NOT IN ('DELIVERED', 'CANCELLED')
		GROUP BY t.id, t.registration, t.max_pickups, t.max_capacity
		ORDER BY t.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var utilization []FleetUtilization
	for rows.Next() {
		var u FleetUtilization
		if err := rows.Scan(&u.TruckID, &u.Registration, &u.MaxPickups, &u.MaxCapacity,
			&u.ActivePickups, &u.CommittedUnits); err != nil {
			return nil, err
		}
		if u.MaxCapacity > 0 {
			u.CapacityPercent = float64(u.CommittedUnits) / float64(u.MaxCapacity) * 100
		}
		utilization = append(utilization, u)
	}
	return utilization, rows.Err()
}
