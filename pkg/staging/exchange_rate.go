package staging

import (
	"context"
	"time"

	"github.com/erpbridge/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExchangeRateRepository struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) *ExchangeRateRepository {
	return &ExchangeRateRepository{db: db}
}

func (r *ExchangeRateRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&exchangeRateModel{})
}

// Upsert merges one rate keyed on (from_currency, to_currency, rate_date).
func (r *ExchangeRateRepository) Upsert(ctx context.Context, rate models.ExchangeRate) error {
	status := rate.Status
	if status == "" {
		status = "NEW"
	}
	now := time.Now().UTC()
	row := exchangeRateModel{
		FromCurrency: rate.FromCurrency,
		ToCurrency:   rate.ToCurrency,
		RateValue:    rate.RateValue,
		RateDate:     rate.RateDate,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_currency"}, {Name: "to_currency"}, {Name: "rate_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate_value", "status", "updated_at"}),
	}).Create(&row).Error
}

func (r *ExchangeRateRepository) BulkUpsert(ctx context.Context, rates []models.ExchangeRate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &ExchangeRateRepository{db: tx}
		for _, rate := range rates {
			if err := repo.Upsert(ctx, rate); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ExchangeRateRepository) FindByStatus(ctx context.Context, status string) ([]models.ExchangeRate, error) {
	var rows []exchangeRateModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("from_currency, to_currency, rate_date").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	rates := make([]models.ExchangeRate, 0, len(rows))
	for _, row := range rows {
		rates = append(rates, rowToRate(row))
	}
	return rates, nil
}

// UpdateStatus changes the display status only; it does not gate hop
// eligibility for the flagged record types.
func (r *ExchangeRateRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&exchangeRateModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
