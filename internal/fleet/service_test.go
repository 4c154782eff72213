package fleet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-logistics/meridian/internal/shared"
)

type memoryFleetRepo struct {
	truckTypes []TruckType
	trucks     []Truck
	nextID     int64
}

func (r *memoryFleetRepo) CreateTruckType(ctx context.Context, input TruckTypeInput) (*TruckType, error) {
	r.nextID++
	tt := TruckType{ID: r.nextID, Name: input.Name, ServiceType: input.ServiceType, CreatedAt: time.Now()}
	r.truckTypes = append(r.truckTypes, tt)
	return &tt, nil
}

func (r *memoryFleetRepo) CreateTruck(ctx context.Context, input TruckInput) (*Truck, error) {
	r.nextID++
	t := Truck{
		ID:                 r.nextID,
		TruckTypeID:        input.TruckTypeID,
		Registration:       input.Registration,
		MaxPickups:         input.MaxPickups,
		MaxDropoffs:        input.MaxDropoffs,
		MaxCapacity:        input.MaxCapacity,
		DailyOperatingCost: input.DailyOperatingCost,
		IsAvailable:        true,
		CreatedAt:          time.Now(),
	}
	r.trucks = append(r.trucks, t)
	return &t, nil
}

func (r *memoryFleetRepo) GetTruck(ctx context.Context, id int64) (*Truck, error) {
	for i := range r.trucks {
		if r.trucks[i].ID == id {
			copied := r.trucks[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("truck %d: %w", id, shared.ErrNotFound)
}

func (r *memoryFleetRepo) GetTruckType(ctx context.Context, id int64) (*TruckType, error) {
	for i := range r.truckTypes {
		if r.truckTypes[i].ID == id {
			copied := r.truckTypes[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("truck type %d: %w", id, shared.ErrNotFound)
}

func (r *memoryFleetRepo) ListTrucksByServiceType(ctx context.Context, serviceType string) ([]Truck, error) {
	types := make(map[int64]bool)
	for _, tt := range r.truckTypes {
		if tt.ServiceType == serviceType {
			types[tt.ID] = true
		}
	}
	var out []Truck
	for _, t := range r.trucks {
		if types[t.TruckTypeID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryFleetRepo) ListTruckTypes(ctx context.Context) ([]TruckType, error) {
	return append([]TruckType(nil), r.truckTypes...), nil
}

func TestCoversWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	from := base
	until := base.Add(72 * time.Hour)

	t.Run("unbounded truck covers everything", func(t *testing.T) {
		truck := Truck{}
		require.True(t, truck.CoversWindow(base, base.Add(240*time.Hour)))
	})

	t.Run("window inside bounds", func(t *testing.T) {
		truck := Truck{AvailableFrom: &from, AvailableUntil: &until}
		require.True(t, truck.CoversWindow(base.Add(time.Hour), base.Add(48*time.Hour)))
	})

	t.Run("window starts too early", func(t *testing.T) {
		truck := Truck{AvailableFrom: &from, AvailableUntil: &until}
		require.False(t, truck.CoversWindow(base.Add(-time.Hour), base.Add(24*time.Hour)))
	})

	t.Run("window ends too late", func(t *testing.T) {
		truck := Truck{AvailableFrom: &from, AvailableUntil: &until}
		require.False(t, truck.CoversWindow(base, until.Add(time.Hour)))
	})
}

func TestListAvailableTrucks(t *testing.T) {
	repo := &memoryFleetRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	standard, err := svc.RegisterTruckType(ctx, TruckTypeInput{Name: "City Van", ServiceType: "STANDARD"})
	require.NoError(t, err)
	express, err := svc.RegisterTruckType(ctx, TruckTypeInput{Name: "Secure Courier", ServiceType: "EXPRESS"})
	require.NoError(t, err)

	_, err = svc.RegisterTruck(ctx, TruckInput{TruckTypeID: standard.ID, Registration: "MR-101-V", MaxPickups: 2, MaxDropoffs: 2, MaxCapacity: 400, DailyOperatingCost: 120})
	require.NoError(t, err)
	_, err = svc.RegisterTruck(ctx, TruckInput{TruckTypeID: express.ID, Registration: "MR-301-S", MaxPickups: 1, MaxDropoffs: 1, MaxCapacity: 150, DailyOperatingCost: 180})
	require.NoError(t, err)
	offline, err := svc.RegisterTruck(ctx, TruckInput{TruckTypeID: standard.ID, Registration: "MR-102-V", MaxPickups: 2, MaxDropoffs: 2, MaxCapacity: 400, DailyOperatingCost: 125})
	require.NoError(t, err)
	bounded, err := svc.RegisterTruck(ctx, TruckInput{TruckTypeID: standard.ID, Registration: "MR-103-V", MaxPickups: 2, MaxDropoffs: 2, MaxCapacity: 400, DailyOperatingCost: 130})
	require.NoError(t, err)

	windowStart := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24 * time.Hour)

	for i := range repo.trucks {
		switch repo.trucks[i].ID {
		case offline.ID:
			repo.trucks[i].IsAvailable = false
		case bounded.ID:
			cutoff := windowStart.Add(12 * time.Hour)
			repo.trucks[i].AvailableUntil = &cutoff
		}
	}

	trucks, err := svc.ListAvailableTrucks(ctx, "STANDARD", windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, trucks, 1)
	require.Equal(t, "MR-101-V", trucks[0].Registration)

	t.Run("service type required", func(t *testing.T) {
		_, err := svc.ListAvailableTrucks(ctx, "", windowStart, windowEnd)
		require.Error(t, err)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		_, err := svc.ListAvailableTrucks(ctx, "STANDARD", windowEnd, windowStart)
		require.Error(t, err)
	})
}

func TestRegisterTruck(t *testing.T) {
	repo := &memoryFleetRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	tt, err := svc.RegisterTruckType(ctx, TruckTypeInput{Name: "Box Truck", ServiceType: "STANDARD"})
	require.NoError(t, err)

	t.Run("unknown truck type rejected", func(t *testing.T) {
		_, err := svc.RegisterTruck(ctx, TruckInput{TruckTypeID: 999, Registration: "MR-X", MaxPickups: 1, MaxDropoffs: 1, MaxCapacity: 100})
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("non-positive ceilings rejected", func(t *testing.T) {
		_, err := svc.RegisterTruck(ctx, TruckInput{TruckTypeID: tt.ID, Registration: "MR-X", MaxPickups: 0, MaxDropoffs: 1, MaxCapacity: 100})
		require.Error(t, err)
	})

	t.Run("capacity lookup", func(t *testing.T) {
		truck, err := svc.RegisterTruck(ctx, TruckInput{TruckTypeID: tt.ID, Registration: "MR-201-B", MaxPickups: 4, MaxDropoffs: 4, MaxCapacity: 1200, DailyOperatingCost: 210})
		require.NoError(t, err)
		cap, err := svc.GetTruckCapacity(ctx, truck.ID)
		require.NoError(t, err)
		require.Equal(t, Capacity{MaxPickups: 4, MaxDropoffs: 4, MaxCapacity: 1200}, cap)
	})
}
