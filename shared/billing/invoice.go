package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/accounting"
	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// VATRate is the fixed German VAT applied to every invoice
var VATRate = decimal.RequireFromString("0.19")

var (
	ErrInvoiceNotFound  = apperr.NotFound("Invoice not found")
	ErrInvalidPeriod    = apperr.Validation("period_end must not be before period_start")
	ErrExportNotEnabled = apperr.External("Accounting export is not configured", "", nil)
)

// Amounts is the priced result of a usage window
type Amounts struct {
	TotalMinutes    decimal.Decimal
	BillableMinutes decimal.Decimal
	UsageCost       decimal.Decimal
	NetAmount       decimal.Decimal
	TaxAmount       decimal.Decimal
	GrossAmount     decimal.Decimal
}

// Calculate prices totalSeconds of usage. Minutes and money are rounded to two
// places; the monthly fee is billed even without usage.
func Calculate(totalSeconds int64, rate Rate) Amounts {
	total := secondsToMinutes(totalSeconds)

	billable := total.Sub(decimal.NewFromInt(rate.IncludedMinutes))
	if billable.IsNegative() {
		billable = decimal.Zero
	}

	usageCost := billable.Mul(rate.PricePerMinute).Round(2)
	net := rate.MonthlyFee.Add(usageCost).Round(2)
	tax := net.Mul(VATRate).Round(2)

	return Amounts{
		TotalMinutes:    total,
		BillableMinutes: billable,
		UsageCost:       usageCost,
		NetAmount:       net,
		TaxAmount:       tax,
		GrossAmount:     net.Add(tax),
	}
}

// Exporter is the accounting system an invoice is handed to
type Exporter interface {
	CreateContact(ctx context.Context, contact accounting.Contact) (string, error)
	CreateInvoice(ctx context.Context, doc accounting.InvoiceDocument) (string, error)
}

// Archiver stores a copy of an exported invoice
type Archiver interface {
	Archive(ctx context.Context, invoice *models.Invoice) error
}

// InvoiceService generates invoices and drives their export state
type InvoiceService struct {
	db            *gorm.DB
	exporter      Exporter
	archiver      Archiver
	exportTimeout time.Duration
	log           *logrus.Entry
	now           func() time.Time
}

type InvoiceOption func(*InvoiceService)

// WithArchiver archives every successfully exported invoice
func WithArchiver(a Archiver) InvoiceOption {
	return func(s *InvoiceService) { s.archiver = a }
}

// WithExportTimeout bounds the whole export call chain
func WithExportTimeout(d time.Duration) InvoiceOption {
	return func(s *InvoiceService) { s.exportTimeout = d }
}

// NewInvoiceService builds the service. exporter may be nil, in which case
// Export fails with an external error.
func NewInvoiceService(db *gorm.DB, exporter Exporter, log *logrus.Entry, opts ...InvoiceOption) *InvoiceService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &InvoiceService{
		db:            db,
		exporter:      exporter,
		exportTimeout: 30 * time.Second,
		log:           log,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate prices the tenant's usage in [periodStart, periodEnd] and stores a
// new invoice in status created. The rate is copied into the row.
func (s *InvoiceService) Generate(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	if periodEnd.Before(periodStart) {
		return nil, ErrInvalidPeriod
	}

	var invoice models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, rate, err := loadRate(tx, tenantID)
		if err != nil {
			return err
		}

		seconds, err := totalSeconds(tx, tenantID, periodStart, periodEnd)
		if err != nil {
			return err
		}
		amounts := Calculate(seconds, rate)

		now := s.now().UTC()
		number, err := nextInvoiceNumber(tx, now)
		if err != nil {
			return err
		}

		invoice = models.Invoice{
			TenantID:        tenantID,
			InvoiceNumber:   number,
			TotalMinutes:    amounts.TotalMinutes,
			BillableMinutes: amounts.BillableMinutes,
			PricePerMinute:  rate.PricePerMinute,
			MonthlyFee:      rate.MonthlyFee,
			IncludedMinutes: rate.IncludedMinutes,
			UsageCost:       amounts.UsageCost,
			TotalAmount:     amounts.NetAmount,
			TaxRate:         VATRate,
			TaxAmount:       amounts.TaxAmount,
			GrossAmount:     amounts.GrossAmount,
			PeriodStart:     periodStart.UTC(),
			PeriodEnd:       periodEnd.UTC(),
			Status:          models.InvoiceCreated,
			CreatedAt:       now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.InvoicesGeneratedCounter.Inc()
	s.log.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"invoice_number": invoice.InvoiceNumber,
		"total_minutes":  invoice.TotalMinutes.String(),
		"gross_amount":   invoice.GrossAmount.StringFixed(2),
	}).Info("Invoice generated")

	return &invoice, nil
}

// Export hands a created invoice to the accounting system and marks it sent.
// On any failure the invoice stays created and the call may be repeated; the
// contact is cached on the tenant so a retry does not create a second one.
func (s *InvoiceService) Export(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, invoiceID, nil)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceCreated {
		return nil, apperr.Conflict(fmt.Sprintf("Invoice is %s and can no longer be exported", invoice.Status))
	}
	if s.exporter == nil {
		return nil, ErrExportNotEnabled
	}

	exportCtx, cancel := context.WithTimeout(ctx, s.exportTimeout)
	defer cancel()

	externalID, err := s.submit(exportCtx, invoice)
	if err != nil {
		metrics.InvoiceExportsCounter.WithLabelValues("failed").Inc()
		s.log.WithFields(logrus.Fields{
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
		}).WithError(err).Warn("Invoice export failed")
		return nil, err
	}

	sentAt := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, models.InvoiceCreated).
		Updates(map[string]interface{}{
			"status":      models.InvoiceSent,
			"sent_at":     sentAt,
			"external_id": externalID,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark invoice sent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.log.WithFields(logrus.Fields{
			"invoice_id":  invoice.ID,
			"external_id": externalID,
		}).Error("Invoice changed while it was being exported")
		return nil, apperr.Conflict("Invoice changed while it was being exported")
	}

	invoice.Status = models.InvoiceSent
	invoice.SentAt = &sentAt
	invoice.ExternalID = &externalID

	metrics.InvoiceExportsCounter.WithLabelValues("sent").Inc()
	s.log.WithFields(logrus.Fields{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"external_id":    externalID,
	}).Info("Invoice exported")

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, invoice); err != nil {
			s.log.WithField("invoice_id", invoice.ID).WithError(err).Warn("Failed to archive invoice")
		}
	}

	return invoice, nil
}

func (s *InvoiceService) submit(ctx context.Context, invoice *models.Invoice) (string, error) {
	var tenant models.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", invoice.TenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("failed to load tenant: %w", err)
	}

	contactID, err := s.ensureContact(ctx, &tenant)
	if err != nil {
		return "", err
	}

	return s.exporter.CreateInvoice(ctx, invoiceDocument(invoice, contactID, s.now()))
}

// ensureContact returns the tenant's accounting contact, creating it on first
// use. Only an empty reference is overwritten, so two racing exports keep the
// first stored contact.
func (s *InvoiceService) ensureContact(ctx context.Context, tenant *models.Tenant) (string, error) {
	if tenant.AccountingContactID != nil && *tenant.AccountingContactID != "" {
		return *tenant.AccountingContactID, nil
	}

	contactID, err := s.exporter.CreateContact(ctx, contactFor(tenant))
	if err != nil {
		return "", err
	}

	db := s.db.WithContext(ctx)
	result := db.Model(&models.Tenant{}).
		Where("id = ? AND accounting_contact_id IS NULL", tenant.ID).
		Update("accounting_contact_id", contactID)
	if result.Error != nil {
		return "", fmt.Errorf("failed to store accounting contact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var stored models.Tenant
		if err := db.Select("id", "accounting_contact_id").Where("id = ?", tenant.ID).First(&stored).Error; err != nil {
			return "", fmt.Errorf("failed to reload accounting contact: %w", err)
		}
		if stored.AccountingContactID != nil && *stored.AccountingContactID != "" {
			return *stored.AccountingContactID, nil
		}
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id":  tenant.ID,
		"contact_id": contactID,
	}).Info("Accounting contact created")

	tenant.AccountingContactID = &contactID
	return contactID, nil
}

func contactFor(t *models.Tenant) accounting.Contact {
	return accounting.Contact{
		CompanyName:   t.CompanyName,
		ContactPerson: t.ContactPerson,
		Email:         t.Email,
		Phone:         t.Phone,
		Street:        t.Street,
		HouseNumber:   t.HouseNumber,
		PostalCode:    t.PostalCode,
		City:          t.City,
		CountryCode:   countryCode(t.Country),
		TaxNumber:     t.TaxNumber,
		VatID:         t.VatID,
	}
}

func countryCode(country string) string {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "österreich", "austria", "at":
		return "AT"
	case "schweiz", "switzerland", "ch":
		return "CH"
	default:
		return "DE"
	}
}

// invoiceDocument renders the single flat-rate line: the period plus the net
// amount taxed at the invoice's rate
func invoiceDocument(inv *models.Invoice, contactID string, now time.Time) accounting.InvoiceDocument {
	period := fmt.Sprintf("%s - %s", inv.PeriodStart.Format("02.01.2006"), inv.PeriodEnd.Format("02.01.2006"))

	return accounting.InvoiceDocument{
		ContactID:    contactID,
		Number:       inv.InvoiceNumber,
		VoucherDate:  now,
		Title:        "Rechnung " + inv.InvoiceNumber,
		Introduction: "Abrechnungszeitraum " + period,
		Remark:       "Vielen Dank für Ihr Vertrauen.",
		Currency:     "EUR",
		LineItems: []accounting.LineItem{{
			Name: "Voice Agent Service " + period,
			Description: fmt.Sprintf("%s Minuten gesamt, %s abrechenbar à %s EUR, Grundgebühr %s EUR",
				inv.TotalMinutes.StringFixed(2),
				inv.BillableMinutes.StringFixed(2),
				inv.PricePerMinute.StringFixed(4),
				inv.MonthlyFee.StringFixed(2)),
			Quantity:          decimal.NewFromInt(1),
			UnitName:          "Pauschale",
			UnitPriceNet:      inv.TotalAmount,
			TaxRatePercentage: inv.TaxRate.Mul(decimal.NewFromInt(100)),
		}},
	}
}

// Cancel withdraws an invoice that has not been exported
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, models.InvoiceCreated, models.InvoiceCancelled, "cancelled_at")
}

// MarkPaid records payment of an exported invoice
func (s *InvoiceService) MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.transition(ctx, invoiceID, models.InvoiceSent, models.InvoicePaid, "paid_at")
}

func (s *InvoiceService) transition(ctx context.Context, invoiceID uuid.UUID, from, to models.InvoiceStatus, stampColumn string) (*models.Invoice, error) {
	result := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, from).
		Updates(map[string]interface{}{
			"status":    to,
			stampColumn: s.now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", result.Error)
	}

	invoice, err := s.Get(ctx, invoiceID, nil)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Conflict(fmt.Sprintf("Invoice is %s, expected %s", invoice.Status, from))
	}

	s.log.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"from":       from,
		"to":         to,
	}).Info("Invoice status changed")
	return invoice, nil
}

// Get loads an invoice. A non-nil tenantID restricts the lookup to that tenant.
func (s *InvoiceService) Get(ctx context.Context, invoiceID uuid.UUID, tenantID *uuid.UUID) (*models.Invoice, error) {
	query := s.db.WithContext(ctx).Where("id = ?", invoiceID)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}

	var invoice models.Invoice
	if err := query.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &invoice, nil
}

// InvoiceFilter narrows List. Zero values match everything.
type InvoiceFilter struct {
	TenantID *uuid.UUID
	Status   string
}

// List returns invoices newest first
func (s *InvoiceService) List(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC, invoice_number DESC")
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != "" {
		if !validInvoiceStatus(models.InvoiceStatus(filter.Status)) {
			return nil, apperr.Validation("Unknown invoice status: " + filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	var invoices []models.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func validInvoiceStatus(s models.InvoiceStatus) bool {
	switch s {
	case models.InvoiceDraft, models.InvoiceCreated, models.InvoiceSent, models.InvoicePaid, models.InvoiceCancelled:
		return true
	}
	return false
}
