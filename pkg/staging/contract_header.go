package staging

import (
	"context"
	"errors"
	"time"

	"github.com/erpbridge/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContractHeaderRepository struct {
	db *gorm.DB
}

func NewContractHeaderRepository(db *gorm.DB) *ContractHeaderRepository {
	return &ContractHeaderRepository{db: db}
}

func (r *ContractHeaderRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&contractHeaderModel{})
}

// headerUpsertColumns is the last-write-wins update set for the merge. The
// finished_* flags are deliberately absent: once a hop is finished a re-ingest
// must never reset it.
var headerUpsertColumns = []string{
	"contract_number", "parent_number", "status",
	"contract_name", "contract_type", "contract_status", "owner_login",
	"commodity_name", "supplier_number", "supplier_name", "purchasing_group",
	"company_code", "currency", "payment_terms", "incoterms", "max_value",
	"start_date", "end_date",
	"ready_to_create_sap_oa", "ready_to_update_sap_oa", "sap_oa_number",
	"updated_at",
}

// Upsert merges one header row keyed on contract_id. The ready flags are
// written exactly as the caller computed them; this method does not decide
// flag values.
func (r *ContractHeaderRepository) Upsert(ctx context.Context, header models.ContractHeader) error {
	row := headerToRow(header)
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}},
		DoUpdates: clause.AssignmentColumns(headerUpsertColumns),
	}).Create(&row).Error
}

// ClassifyAndUpsert decides create-vs-update for an incoming row and merges it
// in a single transaction, closing the check-then-upsert race window.
// First-seen contract numbers become ready_to_create; previously seen ones
// become ready_to_update while ready_to_create keeps its stored value.
func (r *ContractHeaderRepository) ClassifyAndUpsert(ctx context.Context, header models.ContractHeader) (models.ContractHeader, error) {
	var result models.ContractHeader
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing contractHeaderModel
		err := tx.Where("contract_number = ?", header.ContractNumber).First(&existing).Error
		switch {
		case err == nil:
			header.ReadyToUpdateSAPOA = true
			header.ReadyToCreateSAPOA = existing.ReadyToCreateSAPOA
		case errors.Is(err, gorm.ErrRecordNotFound):
			header.ReadyToCreateSAPOA = true
			header.ReadyToUpdateSAPOA = false
		default:
			return err
		}

		row := headerToRow(header)
		now := time.Now().UTC()
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_id"}},
			DoUpdates: clause.AssignmentColumns(headerUpsertColumns),
		}).Create(&row).Error; err != nil {
			return err
		}
		result = rowToHeader(row)
		return nil
	})
	return result, err
}

func (r *ContractHeaderRepository) ExistsByContractNumber(ctx context.Context, contractNumber string) (bool, error) {
	if contractNumber == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&contractHeaderModel{}).
		Where("contract_number = ?", contractNumber).
		Count(&count).Error
	return count > 0, err
}

func (r *ContractHeaderRepository) Get(ctx context.Context, contractID string) (models.ContractHeader, error) {
	var row contractHeaderModel
	if err := r.db.WithContext(ctx).First(&row, "contract_id = ?", contractID).Error; err != nil {
		return models.ContractHeader{}, err
	}
	return rowToHeader(row), nil
}

// FindReadyForHop returns the headers eligible for the given hop, ordered by
// natural key for deterministic processing.
func (r *ContractHeaderRepository) FindReadyForHop(ctx context.Context, hop HopSpec) ([]models.ContractHeader, error) {
	var rows []contractHeaderModel
	tx := applyHop(r.db.WithContext(ctx).Model(&contractHeaderModel{}), hop)
	if err := tx.Order("contract_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	headers := make([]models.ContractHeader, 0, len(rows))
	for _, row := range rows {
		headers = append(headers, rowToHeader(row))
	}
	return headers, nil
}

// MarkFinished sets the hop's finished-flag. Idempotent: marking an already
// finished record only bumps updated_at.
func (r *ContractHeaderRepository) MarkFinished(ctx context.Context, hop HopSpec, contractID string) error {
	return r.db.WithContext(ctx).Model(&contractHeaderModel{}).
		Where("contract_id = ?", contractID).
		Updates(finishAssignments(hop)).Error
}

// SetSAPOANumber records the SAP-assigned outline agreement number, the
// identifier the Coupa hop requires.
func (r *ContractHeaderRepository) SetSAPOANumber(ctx context.Context, contractID, sapOANumber string) error {
	return r.db.WithContext(ctx).Model(&contractHeaderModel{}).
		Where("contract_id = ?", contractID).
		Updates(map[string]interface{}{
			"sap_oa_number": sapOANumber,
			"updated_at":    time.Now().UTC(),
		}).Error
}
