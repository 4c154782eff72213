package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines data access methods for the fleet registry.
type RepositoryPort interface {
	CreateTruckType(ctx context.Context, input TruckTypeInput) (*TruckType, error)
	CreateTruck(ctx context.Context, input TruckInput) (*Truck, error)
	GetTruck(ctx context.Context, id int64) (*Truck, error)
	GetTruckType(ctx context.Context, id int64) (*TruckType, error)
	ListTrucksByServiceType(ctx context.Context, serviceType string) ([]Truck, error)
	ListTruckTypes(ctx context.Context) ([]TruckType, error)
}

// Service handles fleet registry logic. The read path feeds the allocation
// scheduler; writes are thin admin support.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListAvailableTrucks returns trucks of the requested service type that are
// available for the whole scheduling window, cheapest first.
func (s *Service) ListAvailableTrucks(ctx context.Context, serviceType string, windowStart, windowEnd time.Time) ([]Truck, error) {
	if serviceType == "" {
		return nil, errors.New("fleet: service type required")
	}
	if windowEnd.Before(windowStart) {
		return nil, errors.New("fleet: window end before window start")
	}
	trucks, err := s.repo.ListTrucksByServiceType(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	out := make([]Truck, 0, len(trucks))
	for _, t := range trucks {
		if !t.IsAvailable {
			continue
		}
		if !t.CoversWindow(windowStart, windowEnd) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTruckCapacity returns the configured ceilings for a truck.
func (s *Service) GetTruckCapacity(ctx context.Context, truckID int64) (Capacity, error) {
	truck, err := s.repo.GetTruck(ctx, truckID)
	if err != nil {
		return Capacity{}, err
	}
	return Capacity{
		MaxPickups:  truck.MaxPickups,
		MaxDropoffs: truck.MaxDropoffs,
		MaxCapacity: truck.MaxCapacity,
	}, nil
}

// GetTruck returns a truck by id.
func (s *Service) GetTruck(ctx context.Context, id int64) (*Truck, error) {
	return s.repo.GetTruck(ctx, id)
}

// RegisterTruckType creates a truck type.
func (s *Service) RegisterTruckType(ctx context.Context, input TruckTypeInput) (*TruckType, error) {
	if input.Name == "" || input.ServiceType == "" {
		return nil, errors.New("fleet: name and service type required")
	}
	return s.repo.CreateTruckType(ctx, input)
}

// RegisterTruck creates a truck under an existing truck type.
func (s *Service) RegisterTruck(ctx context.Context, input TruckInput) (*Truck, error) {
	if input.MaxPickups <= 0 || input.MaxDropoffs <= 0 || input.MaxCapacity <= 0 {
		return nil, errors.New("fleet: capacity ceilings must be positive")
	}
	if _, err := s.repo.GetTruckType(ctx, input.TruckTypeID); err != nil {
		return nil, fmt.Errorf("fleet: truck type %d: %w", input.TruckTypeID, shared.ErrNotFound)
	}
	return s.repo.CreateTruck(ctx, input)
}

// ListTruckTypes returns the truck-type catalog.
func (s *Service) ListTruckTypes(ctx context.Context) ([]TruckType, error) {
	return s.repo.ListTruckTypes(ctx)
}
