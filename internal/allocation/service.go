package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridian-logistics/meridian/internal/fleet"
	"github.com/meridian-logistics/meridian/internal/observability"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines data access methods for the scheduler.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAllocations(ctx context.Context, logisticsDetailsID int64) ([]TruckAllocation, error)
	GetLogisticsDetails(ctx context.Context, logisticsDetailsID int64) (*orders.LogisticsDetails, error)
}

// TxRepository exposes the row operations of one allocation transaction. The
// candidate truck rows stay locked until commit so concurrent schedulers
// cannot jointly over-commit a truck.
type TxRepository interface {
	GetLogisticsDetailsForUpdate(ctx context.Context, logisticsDetailsID int64) (*orders.LogisticsDetails, error)
	LockCandidateTrucks(ctx context.Context, serviceType string, windowStart, windowEnd time.Time) ([]fleet.Truck, error)
	GetActiveUsage(ctx context.Context, truckIDs []int64) (map[int64]Usage, error)
	InsertAllocation(ctx context.Context, allocation TruckAllocation) error
	UpdateLogisticsStatus(ctx context.Context, logisticsDetailsID int64, status orders.LogisticsStatus) error
	ReleaseAllocations(ctx context.Context, logisticsDetailsID int64) (int, error)
}

// GatePort evaluates the payment gating rule for a pickup.
type GatePort interface {
	PaymentGateFor(ctx context.Context, pickupID int64) (orders.PaymentGate, error)
}

// TransitionEvent notifies downstream consumers of a physical-axis move.
type TransitionEvent struct {
	LogisticsDetailsID int64                  `json:"logistics_details_id"`
	PickupID           int64                  `json:"pickup_id"`
	From               orders.LogisticsStatus `json:"from"`
	To                 orders.LogisticsStatus `json:"to"`
}

// EventsPort publishes transition events, best-effort.
type EventsPort interface {
	PublishLogisticsTransition(ctx context.Context, event TransitionEvent) error
}

// Service is the allocation scheduler.
type Service struct {
	repo    RepositoryPort
	gate    GatePort
	events  EventsPort
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, gate GatePort, events EventsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, events: events, logger: logger}
}

// WithMetrics attaches the Prometheus collectors.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// AllocateTrucks reserves headroom for a logistics detail on the cheapest
// feasible truck set and advances it to READY_FOR_COLLECTION. All reservations
// and the status change commit atomically; on any failure nothing is written.
// Calling it again for an already-allocated detail replays the committed
// reservations.
func (s *Service) AllocateTrucks(ctx context.Context, logisticsDetailsID int64) (*Result, error) {
	details, err := s.repo.GetLogisticsDetails(ctx, logisticsDetailsID)
	if err != nil {
		return nil, err
	}

	if details.Status != orders.LogisticsPendingPlanning {
		if details.Status == orders.LogisticsReadyForCollection {
			existing, err := s.repo.ListAllocations(ctx, logisticsDetailsID)
			if err != nil {
				return nil, err
			}
			s.metrics.ObserveAllocation("replayed")
			return &Result{Allocations: existing, LogisticsStatus: details.Status, Replayed: true}, nil
		}
		return nil, fmt.Errorf("allocation: logistics details %d in status %s: %w",
			logisticsDetailsID, details.Status, shared.ErrInvalidTransition)
	}

	gate, err := s.gate.PaymentGateFor(ctx, details.PickupID)
	if err != nil {
		return nil, err
	}
	if !gate.Unlocked() {
		return nil, fmt.Errorf("allocation: pickup %d payment %s does not permit scheduling: %w",
			details.PickupID, gate.Status, shared.ErrInvalidTransition)
	}

	result, err := s.allocateOnce(ctx, logisticsDetailsID)
	if err != nil && shared.IsRetryableConflict(err) {
		s.metrics.ObserveConflictRetry()
		result, err = s.allocateOnce(ctx, logisticsDetailsID)
		if err != nil && shared.IsRetryableConflict(err) {
			err = fmt.Errorf("allocation: logistics details %d: %w", logisticsDetailsID, shared.ErrConcurrencyConflict)
		}
	}
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientCapacity) {
			s.metrics.ObserveAllocation("rejected")
		}
		return nil, err
	}
	if result.Replayed {
		s.metrics.ObserveAllocation("replayed")
	} else {
		s.metrics.ObserveAllocation("committed")
	}

	if s.events != nil && !result.Replayed {
		event := TransitionEvent{
			LogisticsDetailsID: logisticsDetailsID,
			PickupID:           details.PickupID,
			From:               orders.LogisticsPendingPlanning,
			To:                 result.LogisticsStatus,
		}
		if perr := s.events.PublishLogisticsTransition(ctx, event); perr != nil {
			s.logger.Warn("publish logistics transition", slog.Any("error", perr))
		}
	}
	return result, nil
}

func (s *Service) allocateOnce(ctx context.Context, logisticsDetailsID int64) (*Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		details, err := tx.GetLogisticsDetailsForUpdate(ctx, logisticsDetailsID)
		if err != nil {
			return err
		}
		if details.Status != orders.LogisticsPendingPlanning {
			// Lost a race with another scheduler for the same detail; replay.
			if details.Status == orders.LogisticsReadyForCollection {
				return nil
			}
			return fmt.Errorf("allocation: logistics details %d in status %s: %w",
				logisticsDetailsID, details.Status, shared.ErrInvalidTransition)
		}

		trucks, err := tx.LockCandidateTrucks(ctx, details.ServiceType,
			details.ScheduledPickupAt, details.ScheduledDeliveryAt)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(trucks))
		for _, t := range trucks {
			ids = append(ids, t.ID)
		}
		usage, err := tx.GetActiveUsage(ctx, ids)
		if err != nil {
			return err
		}

		candidates := buildCandidates(trucks, usage, details.ScheduledPickupAt, details.ScheduledDeliveryAt)
		picked, err := selectTrucks(candidates, details.Quantity)
		if err != nil {
			return fmt.Errorf("allocation: logistics details %d quantity %d: %w",
				logisticsDetailsID, details.Quantity, err)
		}

		now := time.Now().UTC()
		for _, p := range picked {
			alloc := TruckAllocation{
				LogisticsDetailsID: logisticsDetailsID,
				TruckID:            p.TruckID,
				Quantity:           p.Quantity,
				CreatedAt:          now,
			}
			if err := tx.InsertAllocation(ctx, alloc); err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, alloc)
		}

		if err := tx.UpdateLogisticsStatus(ctx, logisticsDetailsID, orders.LogisticsReadyForCollection); err != nil {
			return err
		}
		result.LogisticsStatus = orders.LogisticsReadyForCollection
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.LogisticsStatus == "" {
		// Replay path taken inside the transaction.
		existing, err := s.repo.ListAllocations(ctx, logisticsDetailsID)
		if err != nil {
			return nil, err
		}
		return &Result{Allocations: existing, LogisticsStatus: orders.LogisticsReadyForCollection, Replayed: true}, nil
	}
	return &result, nil
}

// ReleaseAllocations frees a detail's active reservations as a compensating
// operation after cancellation. It never rewrites history for a detail that
// reached a terminal status through delivery.
func (s *Service) ReleaseAllocations(ctx context.Context, logisticsDetailsID int64) (int, error) {
	details, err := s.repo.GetLogisticsDetails(ctx, logisticsDetailsID)
	if err != nil {
		return 0, err
	}
	if details.Status == orders.LogisticsDelivered {
		return 0, fmt.Errorf("allocation: logistics details %d already delivered: %w",
			logisticsDetailsID, shared.ErrInvalidTransition)
	}

	var released int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		released, err = tx.ReleaseAllocations(ctx, logisticsDetailsID)
		return err
	})
	return released, err
}

// ListAllocations returns reservations for a logistics detail.
func (s *Service) ListAllocations(ctx context.Context, logisticsDetailsID int64) ([]TruckAllocation, error) {
	return s.repo.ListAllocations(ctx, logisticsDetailsID)
}

type pickedTruck struct {
	TruckID  int64
	Quantity int
}

func buildCandidates(trucks []fleet.Truck, usage map[int64]Usage, windowStart, windowEnd time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(trucks))
	for _, t := range trucks {
		if !t.IsAvailable || !t.CoversWindow(windowStart, windowEnd) {
			continue
		}
		u := usage[t.ID]
		c := Candidate{
			Truck:            t,
			PickupHeadroom:   t.MaxPickups - u.Pickups,
			DropoffHeadroom:  t.MaxDropoffs - u.Dropoffs,
			CapacityHeadroom: t.MaxCapacity - u.Quantity,
		}
		if c.PickupHeadroom < 1 || c.DropoffHeadroom < 1 || c.CapacityHeadroom < 1 {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// selectTrucks greedily commits the cheapest candidates until the requested
// quantity is covered. Ranking: lowest daily operating cost, then most
// remaining capacity headroom, then truck id ascending for determinism.
func selectTrucks(candidates []Candidate, quantity int) ([]pickedTruck, error) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Truck.DailyOperatingCost != b.Truck.DailyOperatingCost {
			return a.Truck.DailyOperatingCost < b.Truck.DailyOperatingCost
		}
		if a.CapacityHeadroom != b.CapacityHeadroom {
			return a.CapacityHeadroom > b.CapacityHeadroom
		}
		return a.Truck.ID < b.Truck.ID
	})

	remaining := quantity
	var picked []pickedTruck
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		take := c.CapacityHeadroom
		if take > remaining {
			take = remaining
		}
		picked = append(picked, pickedTruck{TruckID: c.Truck.ID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, shared.ErrInsufficientCapacity
	}
	return picked, nil
}
