// Package allocation assigns trucks to logistics details under capacity
// ceilings. Committed usage is always recomputed from active allocations
// inside the allocating transaction; there is no running counter to drift.
package allocation

import (
	"time"

	"github.com/meridian-logistics/meridian/internal/fleet"
	"github.com/meridian-logistics/meridian/internal/orders"
)

// TruckAllocation is a committed capacity reservation binding a truck to a
// logistics-details record. Primary key is (logistics_details_id, truck_id).
type TruckAllocation struct {
	LogisticsDetailsID int64      `json:"logistics_details_id"`
	TruckID            int64      `json:"truck_id"`
	Quantity           int        `json:"quantity"`
	CreatedAt          time.Time  `json:"created_at"`
	ReleasedAt         *time.Time `json:"released_at,omitempty"`
}

// Usage is a truck's committed load summed over its active allocations.
type Usage struct {
	Pickups  int
	Dropoffs int
	Quantity int
}

// Candidate pairs a lockable truck with its recomputed headroom.
type Candidate struct {
	Truck            fleet.Truck
	PickupHeadroom   int
	DropoffHeadroom  int
	CapacityHeadroom int
}

// Result reports the committed reservations and the advanced status.
type Result struct {
	Allocations     []TruckAllocation      `json:"allocations"`
	LogisticsStatus orders.LogisticsStatus `json:"logistics_status"`
	Replayed        bool                   `json:"replayed"`
}

// Request asks for trucks to be allocated to a logistics detail.
type Request struct {
	LogisticsDetailsID int64 `json:"logisticsDetailsId" validate:"required"`
}
