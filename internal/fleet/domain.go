// Package fleet provides the truck and truck-type registry.
package fleet

import "time"

// TruckType groups trucks by the logistics service they can perform.
type TruckType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ServiceType string    `json:"service_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Truck is a fleet vehicle with configured capacity ceilings. Committed usage
// against the ceilings is always recomputed from active allocations, never
// stored on the truck row.
type Truck struct {
	ID                 int64      `json:"id"`
	TruckTypeID        int64      `json:"truck_type_id"`
	Registration       string     `json:"registration"`
	MaxPickups         int        `json:"max_pickups"`
	MaxDropoffs        int        `json:"max_dropoffs"`
	MaxCapacity        int        `json:"max_capacity"`
	DailyOperatingCost float64    `json:"daily_operating_cost"`
	IsAvailable        bool       `json:"is_available"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	AvailableUntil     *time.Time `json:"available_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CoversWindow reports whether the truck can operate for the whole window.
func (t Truck) CoversWindow(start, end time.Time) bool {
	if t.AvailableFrom != nil && start.Before(*t.AvailableFrom) {
		return false
	}
	if t.AvailableUntil != nil && end.After(*t.AvailableUntil) {
		return false
	}
	return true
}

// Capacity summarises a truck's configured ceilings.
type Capacity struct {
	MaxPickups  int `json:"max_pickups"`
	MaxDropoffs int `json:"max_dropoffs"`
	MaxCapacity int `json:"max_capacity"`
}

// TruckInput creates a truck.
type TruckInput struct {
	TruckTypeID        int64   `json:"truck_type_id" validate:"required"`
	Registration       string  `json:"registration" validate:"required"`
	MaxPickups         int     `json:"max_pickups" validate:"required,gt=0"`
	MaxDropoffs        int     `json:"max_dropoffs" validate:"required,gt=0"`
	MaxCapacity        int     `json:"max_capacity" validate:"required,gt=0"`
	DailyOperatingCost float64 `json:"daily_operating_cost" validate:"gte=0"`
}

// TruckTypeInput creates a truck type.
type TruckTypeInput struct {
	Name        string `json:"name" validate:"required"`
	ServiceType string `json:"service_type" validate:"required"`
}
