package reporting

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines the aggregate reads the service depends on.
type RepositoryPort interface {
	CountPickupsByStatus(ctx context.Context) ([]StatusCount, error)
	RevenueByMonth(ctx context.Context, from, to time.Time) ([]RevenuePoint, error)
	OutstandingInvoices(ctx context.Context) ([]OutstandingInvoice, error)
	FleetUtilization(ctx context.Context) ([]FleetUtilization, error)
}

// Service builds cached reports. Concurrent requests for the same report share
// one repository round-trip through the singleflight group.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	group   singleflight.Group
	printer *message.Printer
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		printer: message.NewPrinter(language.English),
	}
}

func (s *Service) formatMoney(amount float64) string {
	return s.printer.Sprintf("$%.2f", amount)
}

// PickupStatusReport counts pickups per payment/logistics status pair.
func (s *Service) PickupStatusReport(ctx context.Context) (*StatusReport, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "status")
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var report StatusReport
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			counts, err := s.repo.CountPickupsByStatus(ctx)
			if err != nil {
				return nil, err
			}
			total := 0
			for _, c := range counts {
				total += c.Count
			}
			return StatusReport{Counts: counts, Total: total}, nil
		})
		return &report, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*StatusReport), nil
}

// RevenueReport sums settled payments per month over [from, to).
func (s *Service) RevenueReport(ctx context.Context, from, to time.Time) (*RevenueReport, error) {
	fromKey := from.Format("2006-01-02")
	toKey := to.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, "reporting", "revenue", fromKey, toKey)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var report RevenueReport
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			points, err := s.repo.RevenueByMonth(ctx, from, to)
			if err != nil {
				return nil, err
			}
			for i := range points {
				points[i].Revenue = shared.Round2(points[i].Revenue)
				points[i].RevenueFormatted = s.formatMoney(points[i].Revenue)
			}
			return RevenueReport{From: fromKey, To: toKey, Points: points}, nil
		})
		return &report, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*RevenueReport), nil
}

// OutstandingReport lists unpaid invoices with ledger-derived balances.
func (s *Service) OutstandingReport(ctx context.Context) ([]OutstandingInvoice, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "outstanding")
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var invoices []OutstandingInvoice
		err := s.cache.FetchJSON(ctx, key, &invoices, func(ctx context.Context) (any, error) {
			list, err := s.repo.OutstandingInvoices(ctx)
			if err != nil {
				return nil, err
			}
			for i := range list {
				list[i].Outstanding = shared.Round2(list[i].Outstanding)
				list[i].OutstandingFormatted = s.formatMoney(list[i].Outstanding)
			}
			return list, nil
		})
		return invoices, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]OutstandingInvoice), nil
}

// FleetUtilizationReport summarises committed load per truck.
func (s *Service) FleetUtilizationReport(ctx context.Context) ([]FleetUtilization, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "fleet")
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var utilization []FleetUtilization
		err := s.cache.FetchJSON(ctx, key, &utilization, func(ctx context.Context) (any, error) {
			return s.repo.FleetUtilization(ctx)
		})
		return utilization, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]FleetUtilization), nil
}

// Invalidate bumps the cache version after a write that changes reports.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
