// Package reporting serves read-only aggregates over pickups, invoices and the
// transaction ledger. Results are cached in Redis behind a version key so a
// ledger append can invalidate every report at once.
package reporting

import "github.com/meridian-logistics/meridian/internal/orders"

// StatusCount is the number of pickups in one payment/logistics status pair.
type StatusCount struct {
	PaymentStatus   orders.PaymentStatus   `json:"payment_status"`
	LogisticsStatus orders.LogisticsStatus `json:"logistics_status"`
	Count           int                    `json:"count"`
}

// RevenuePoint is settled revenue for one calendar period.
type RevenuePoint struct {
	Period           string  `json:"period"`
	Revenue          float64 `json:"revenue"`
	RevenueFormatted string  `json:"revenue_formatted"`
	Invoices         int     `json:"invoices"`
}

// OutstandingInvoice is an invoice with money still owed on it.
type OutstandingInvoice struct {
	InvoiceID            int64   `json:"invoice_id"`
	ReferenceNumber      string  `json:"reference_number"`
	CompanyID            int64   `json:"company_id"`
	CompanyName          string  `json:"company_name"`
	TotalAmount          float64 `json:"total_amount"`
	Balance              float64 `json:"balance"`
	Outstanding          float64 `json:"outstanding"`
	OutstandingFormatted string  `json:"outstanding_formatted"`
}

// FleetUtilization summarises committed load against a truck's ceilings.
type FleetUtilization struct {
	TruckID          int64   `json:"truck_id"`
	Registration     string  `json:"registration"`
	ActivePickups    int     `json:"active_pickups"`
	MaxPickups       int     `json:"max_pickups"`
	CommittedUnits   int     `json:"committed_units"`
	MaxCapacity      int     `json:"max_capacity"`
	CapacityPercent  float64 `json:"capacity_percent"`
}

// StatusReport groups the pickup counts with their grand total.
type StatusReport struct {
	Counts []StatusCount `json:"counts"`
	Total  int           `json:"total"`
}

// RevenueReport is the revenue series for a date range.
type RevenueReport struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Points []RevenuePoint `json:"points"`
}
