package billing

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// FormatInvoiceNumber renders INV-YYYY-NNNNN
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}

// nextInvoiceNumber bumps the year's counter and returns the new number. It must
// run in the transaction that inserts the invoice: the increment takes a row lock
// that is held until commit, so concurrent generators serialize on the year row
// and a rolled back invoice gives its number back.
func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	year := now.UTC().Year()

	seed := models.InvoiceSequence{Year: year, LastValue: 0, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", fmt.Errorf("failed to seed invoice sequence: %w", err)
	}

	result := tx.Model(&models.InvoiceSequence{}).
		Where("year = ?", year).
		Updates(map[string]interface{}{
			"last_value": gorm.Expr("last_value + ?", 1),
			"updated_at": now,
		})
	if result.Error != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", result.Error)
	}

	var seq models.InvoiceSequence
	if err := tx.Where("year = ?", year).First(&seq).Error; err != nil {
		return "", fmt.Errorf("failed to read invoice sequence: %w", err)
	}

	return FormatInvoiceNumber(year, seq.LastValue), nil
}
