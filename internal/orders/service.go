package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// RepositoryPort defines data access methods for the order and invoice store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateCompany(ctx context.Context, input CompanyInput) (*Company, error)
	GetCompany(ctx context.Context, id int64) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	GetPickup(ctx context.Context, id int64) (*Pickup, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceByReference(ctx context.Context, reference string) (*Invoice, error)
	GetPickupByInvoice(ctx context.Context, invoiceID int64) (*Pickup, error)
	GetLogisticsDetailsByPickup(ctx context.Context, pickupID int64) (*LogisticsDetails, error)
	ListPickups(ctx context.Context, companyID int64) ([]PickupWithInvoice, error)
}

// TxRepository exposes row operations inside a transaction.
type TxRepository interface {
	CreateInvoice(ctx context.Context, reference string, totalAmount float64) (*Invoice, error)
	CreatePickup(ctx context.Context, pickup Pickup) (int64, error)
	CreateLogisticsDetails(ctx context.Context, details LogisticsDetails) (int64, error)
	GetPickupForUpdate(ctx context.Context, id int64) (*Pickup, error)
	GetLogisticsDetailsForUpdate(ctx context.Context, pickupID int64) (*LogisticsDetails, error)
	UpdatePaymentStatus(ctx context.Context, pickupID int64, status PaymentStatus) error
	UpdateLogisticsStatus(ctx context.Context, detailsID int64, status LogisticsStatus) error
	UpdateSimulatedTimes(ctx context.Context, detailsID int64, pickupAt, deliveryAt *time.Time) error
}

// LedgerPort supplies the aggregates the payment gate depends on. PaymentsNet
// must exclude loan entries; LoanDisbursed carries those separately so the
// gate never counts a disbursement twice.
type LedgerPort interface {
	PaymentsNet(ctx context.Context, invoiceID int64) (float64, error)
	LoanDisbursed(ctx context.Context, invoiceID int64) (float64, error)
}

// OrderCreated bundles the rows written by CreateOrder.
type OrderCreated struct {
	Pickup    Pickup           `json:"pickup"`
	Invoice   Invoice          `json:"invoice"`
	Logistics LogisticsDetails `json:"logistics_details"`
}

// Service handles order and invoice business logic.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger LedgerPort) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// CreateCompany registers a company.
func (s *Service) CreateCompany(ctx context.Context, input CompanyInput) (*Company, error) {
	if input.Name == "" {
		return nil, errors.New("orders: company name required")
	}
	return s.repo.CreateCompany(ctx, input)
}

// GetCompany returns a company by id.
func (s *Service) GetCompany(ctx context.Context, id int64) (*Company, error) {
	return s.repo.GetCompany(ctx, id)
}

// ListCompanies returns all companies.
func (s *Service) ListCompanies(ctx context.Context) ([]Company, error) {
	return s.repo.ListCompanies(ctx)
}

// CreateOrder creates a pickup together with its invoice and logistics details
// in one transaction. The invoice reference number is generated exactly once
// and never reused.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderCreated, error) {
	if input.UnitPrice <= 0 {
		return nil, errors.New("orders: unit price must be positive")
	}
	if input.PhoneUnits <= 0 {
		return nil, errors.New("orders: phone units must be positive")
	}
	if input.Recipient == "" {
		return nil, errors.New("orders: recipient required")
	}
	if input.ScheduledDeliveryAt.Before(input.ScheduledPickupAt) {
		return nil, errors.New("orders: scheduled delivery before pickup")
	}
	if _, err := s.repo.GetCompany(ctx, input.CompanyID); err != nil {
		return nil, fmt.Errorf("orders: company %d: %w", input.CompanyID, shared.ErrNotFound)
	}

	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	total := shared.Round2(input.UnitPrice * float64(input.PhoneUnits))
	reference := uuid.NewString()

	var result OrderCreated
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.CreateInvoice(ctx, reference, total)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		pickup := Pickup{
			CompanyID:        input.CompanyID,
			InvoiceID:        invoice.ID,
			UnitPrice:        input.UnitPrice,
			PhoneUnits:       input.PhoneUnits,
			OrderDate:        orderDate,
			Recipient:        input.Recipient,
			PickupLocation:   input.PickupLocation,
			DeliveryLocation: input.DeliveryLocation,
			PaymentStatus:    PaymentAwaiting,
		}
		pickupID, err := tx.CreatePickup(ctx, pickup)
		if err != nil {
			return fmt.Errorf("create pickup: %w", err)
		}
		pickup.ID = pickupID

		details := LogisticsDetails{
			PickupID:            pickupID,
			ServiceType:         input.ServiceType,
			Quantity:            input.PhoneUnits,
			ScheduledPickupAt:   input.ScheduledPickupAt,
			ScheduledDeliveryAt: input.ScheduledDeliveryAt,
			SimulatedPickupAt:   input.SimulatedPickupAt,
			SimulatedDeliveryAt: input.SimulatedDeliveryAt,
			Status:              LogisticsPendingPlanning,
		}
		detailsID, err := tx.CreateLogisticsDetails(ctx, details)
		if err != nil {
			return fmt.Errorf("create logistics details: %w", err)
		}
		details.ID = detailsID

		result = OrderCreated{Pickup: pickup, Invoice: *invoice, Logistics: details}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPickup returns a pickup by id.
func (s *Service) GetPickup(ctx context.Context, id int64) (*Pickup, error) {
	return s.repo.GetPickup(ctx, id)
}

// GetInvoiceByReference resolves an invoice by its opaque reference number.
func (s *Service) GetInvoiceByReference(ctx context.Context, reference string) (*Invoice, error) {
	return s.repo.GetInvoiceByReference(ctx, reference)
}

// GetLogisticsDetails returns the fulfilment record for a pickup.
func (s *Service) GetLogisticsDetails(ctx context.Context, pickupID int64) (*LogisticsDetails, error) {
	return s.repo.GetLogisticsDetailsByPickup(ctx, pickupID)
}

// ListPickups returns pickups for a company, or all when companyID is zero.
func (s *Service) ListPickups(ctx context.Context, companyID int64) ([]PickupWithInvoice, error) {
	return s.repo.ListPickups(ctx, companyID)
}

// MarkOutForDelivery advances the physical axis past collection readiness.
// This is the gated transition: it requires the payment axis to satisfy the
// company's payment arrangement.
func (s *Service) MarkOutForDelivery(ctx context.Context, pickupID int64) (*LogisticsDetails, error) {
	return s.advanceLogistics(ctx, pickupID, LogisticsOutForDelivery, true)
}

// MarkDelivered closes the physical axis.
func (s *Service) MarkDelivered(ctx context.Context, pickupID int64) (*LogisticsDetails, error) {
	return s.advanceLogistics(ctx, pickupID, LogisticsDelivered, false)
}

func (s *Service) advanceLogistics(ctx context.Context, pickupID int64, next LogisticsStatus, gated bool) (*LogisticsDetails, error) {
	var updated *LogisticsDetails
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pickup, err := tx.GetPickupForUpdate(ctx, pickupID)
		if err != nil {
			return err
		}
		details, err := tx.GetLogisticsDetailsForUpdate(ctx, pickupID)
		if err != nil {
			return err
		}

		target, err := details.Status.Transition(next)
		if err != nil {
			return err
		}
		if target == details.Status {
			updated = details
			return nil
		}

		if gated {
			gate, err := s.paymentGate(ctx, pickup)
			if err != nil {
				return err
			}
			if !gate.Unlocked() {
				return fmt.Errorf("orders: pickup %d payment %s does not unlock fulfilment: %w",
					pickupID, pickup.PaymentStatus, shared.ErrInvalidTransition)
			}
		}

		if err := tx.UpdateLogisticsStatus(ctx, details.ID, target); err != nil {
			return err
		}
		details.Status = target
		updated = details
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelPickup cancels both axes. The payment axis only cancels before the
// invoice is paid; a paid order keeps its payment history and is compensated
// through refund ledger entries issued separately.
func (s *Service) CancelPickup(ctx context.Context, pickupID int64) (*Pickup, error) {
	var cancelled *Pickup
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pickup, err := tx.GetPickupForUpdate(ctx, pickupID)
		if err != nil {
			return err
		}
		details, err := tx.GetLogisticsDetailsForUpdate(ctx, pickupID)
		if err != nil {
			return err
		}

		physical, err := details.Status.Transition(LogisticsCancelled)
		if err != nil {
			return err
		}
		if physical != details.Status {
			if err := tx.UpdateLogisticsStatus(ctx, details.ID, physical); err != nil {
				return err
			}
		}

		if pickup.PaymentStatus != PaymentPaid {
			payment, err := pickup.PaymentStatus.Transition(PaymentCancelled)
			if err != nil {
				return err
			}
			if payment != pickup.PaymentStatus {
				if err := tx.UpdatePaymentStatus(ctx, pickupID, payment); err != nil {
					return err
				}
				pickup.PaymentStatus = payment
			}
		}

		cancelled = pickup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// RecordSimulatedTimes stores replay timestamps. They are deliberately kept
// apart from the real schedule and never influence gating or allocation.
func (s *Service) RecordSimulatedTimes(ctx context.Context, pickupID int64, pickupAt, deliveryAt *time.Time) error {
	if pickupAt == nil && deliveryAt == nil {
		return errors.New("orders: at least one simulated timestamp required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		details, err := tx.GetLogisticsDetailsForUpdate(ctx, pickupID)
		if err != nil {
			return err
		}
		return tx.UpdateSimulatedTimes(ctx, details.ID, pickupAt, deliveryAt)
	})
}

// PaymentGateFor evaluates the gating rule for a pickup. The allocation
// scheduler consults this before committing truck reservations.
func (s *Service) PaymentGateFor(ctx context.Context, pickupID int64) (PaymentGate, error) {
	pickup, err := s.repo.GetPickup(ctx, pickupID)
	if err != nil {
		return PaymentGate{}, err
	}
	return s.paymentGate(ctx, pickup)
}

func (s *Service) paymentGate(ctx context.Context, pickup *Pickup) (PaymentGate, error) {
	invoice, err := s.repo.GetInvoice(ctx, pickup.InvoiceID)
	if err != nil {
		return PaymentGate{}, err
	}
	company, err := s.repo.GetCompany(ctx, pickup.CompanyID)
	if err != nil {
		return PaymentGate{}, err
	}
	payments, err := s.ledger.PaymentsNet(ctx, invoice.ID)
	if err != nil {
		return PaymentGate{}, err
	}
	loan, err := s.ledger.LoanDisbursed(ctx, invoice.ID)
	if err != nil {
		return PaymentGate{}, err
	}
	return PaymentGate{
		Status:        pickup.PaymentStatus,
		TotalAmount:   invoice.TotalAmount,
		PaymentsNet:   payments,
		LoanDisbursed: loan,
		AllowPartial:  company.AllowPartialUnlock,
	}, nil
}
