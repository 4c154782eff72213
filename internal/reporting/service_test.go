package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-logistics/meridian/internal/orders"
)

type memoryReportingRepo struct {
	statusCalls  int
	revenueCalls int
	counts       []StatusCount
	revenue      []RevenuePoint
	outstanding  []OutstandingInvoice
	utilization  []FleetUtilization
}

func (r *memoryReportingRepo) CountPickupsByStatus(ctx context.Context) ([]StatusCount, error) {
	r.statusCalls++
	return r.counts, nil
}

func (r *memoryReportingRepo) RevenueByMonth(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	r.revenueCalls++
	return r.revenue, nil
}

func (r *memoryReportingRepo) OutstandingInvoices(ctx context.Context) ([]OutstandingInvoice, error) {
	return r.outstanding, nil
}

func (r *memoryReportingRepo) FleetUtilization(ctx context.Context) ([]FleetUtilization, error) {
	return r.utilization, nil
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestPickupStatusReportCaches(t *testing.T) {
	repo := &memoryReportingRepo{
		counts: []StatusCount{
			{PaymentStatus: orders.PaymentPaid, LogisticsStatus: orders.LogisticsDelivered, Count: 4},
			{PaymentStatus: orders.PaymentAwaiting, LogisticsStatus: orders.LogisticsPendingPlanning, Count: 2},
		},
	}
	svc := NewService(repo, testCache(t))
	ctx := context.Background()

	first, err := svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, first.Total)
	require.Len(t, first.Counts, 2)
	require.Equal(t, 1, repo.statusCalls)

	second, err := svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Total, second.Total)
	require.Equal(t, 1, repo.statusCalls, "second read must come from cache")
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := &memoryReportingRepo{
		counts: []StatusCount{{PaymentStatus: orders.PaymentPaid, LogisticsStatus: orders.LogisticsDelivered, Count: 1}},
	}
	svc := NewService(repo, testCache(t))
	ctx := context.Background()

	_, err := svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.statusCalls)

	require.NoError(t, svc.Invalidate(ctx))

	repo.counts = append(repo.counts, StatusCount{PaymentStatus: orders.PaymentAwaiting, LogisticsStatus: orders.LogisticsPendingPlanning, Count: 3})
	report, err := svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.statusCalls, "invalidation must force a reload")
	require.Equal(t, 4, report.Total)
}

func TestRevenueReportFormatsMoney(t *testing.T) {
	repo := &memoryReportingRepo{
		revenue: []RevenuePoint{
			{Period: "2026-01", Revenue: 125000.456, Invoices: 12},
			{Period: "2026-02", Revenue: 980.4, Invoices: 3},
		},
	}
	svc := NewService(repo, testCache(t))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	report, err := svc.RevenueReport(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, "2026-01-01", report.From)
	require.Equal(t, "2026-03-01", report.To)
	require.Len(t, report.Points, 2)
	require.InDelta(t, 125000.46, report.Points[0].Revenue, 0.001)
	require.Equal(t, "$125,000.46", report.Points[0].RevenueFormatted)
	require.Equal(t, "$980.40", report.Points[1].RevenueFormatted)
}

func TestReportsWorkWithoutRedis(t *testing.T) {
	repo := &memoryReportingRepo{
		counts:      []StatusCount{{PaymentStatus: orders.PaymentPaid, LogisticsStatus: orders.LogisticsDelivered, Count: 1}},
		outstanding: []OutstandingInvoice{{InvoiceID: 1, ReferenceNumber: "INV-1", TotalAmount: 500, Balance: 120.555, Outstanding: 379.445}},
		utilization: []FleetUtilization{{TruckID: 1, Registration: "MR-101-V", ActivePickups: 1, MaxPickups: 2, CommittedUnits: 120, MaxCapacity: 400, CapacityPercent: 30}},
	}
	svc := NewService(repo, NewCache(nil, 0))
	ctx := context.Background()

	report, err := svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)

	// Every call hits the repository when no Redis client is configured.
	_, err = svc.PickupStatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.statusCalls)

	outstanding, err := svc.OutstandingReport(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	require.InDelta(t, 379.45, outstanding[0].Outstanding, 0.001)
	require.Equal(t, "$379.45", outstanding[0].OutstandingFormatted)

	utilization, err := svc.FleetUtilizationReport(ctx)
	require.NoError(t, err)
	require.Len(t, utilization, 1)
	require.InDelta(t, 30, utilization[0].CapacityPercent, 0.001)
}

func TestCacheVersioning(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	key1, err := cache.BuildKey(ctx, "reporting", "status")
	require.NoError(t, err)
	require.Equal(t, "reporting:status:1", key1)

	require.NoError(t, cache.Bump(ctx))

	key2, err := cache.BuildKey(ctx, "reporting", "status")
	require.NoError(t, err)
	require.Equal(t, "reporting:status:2", key2)
}
