package staging

import (
	"context"
	"errors"
	"time"

	"github.com/erpbridge/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SupplierItemRepository struct {
	db *gorm.DB
}

func NewSupplierItemRepository(db *gorm.DB) *SupplierItemRepository {
	return &SupplierItemRepository{db: db}
}

func (r *SupplierItemRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&supplierItemModel{})
}

// Finished flags excluded from the merge for the same monotonicity reason as
// the header repository.
var itemUpsertColumns = []string{
	"status", "contract_number", "ctr_id", "material", "unit", "price",
	"currency", "plant", "description",
	"ready_to_create_sap_oa", "ready_to_update_sap_oa",
	"sap_oa_number", "sap_oa_line",
	"updated_at",
}

// Upsert merges one item row keyed on (contract_id, csin); flag values come
// from the caller untouched.
func (r *SupplierItemRepository) Upsert(ctx context.Context, item models.SupplierItem) error {
	row := itemToRow(item)
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}, {Name: "csin"}},
		DoUpdates: clause.AssignmentColumns(itemUpsertColumns),
	}).Create(&row).Error
}

// ExistsByCompositeKey probes for a row matching all four business
// identifiers; a full match means the incoming row is an update.
func (r *SupplierItemRepository) ExistsByCompositeKey(ctx context.Context, contractNumber, material, unit, csin string) (bool, error) {
	if contractNumber == "" || material == "" || unit == "" || csin == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&supplierItemModel{}).
		Where("contract_number = ? AND material = ? AND unit = ? AND csin = ?",
			contractNumber, material, unit, csin).
		Count(&count).Error
	return count > 0, err
}

// ClassifyAndUpsert mirrors the header repository: composite-key probe and
// merge in one transaction.
func (r *SupplierItemRepository) ClassifyAndUpsert(ctx context.Context, item models.SupplierItem) (models.SupplierItem, error) {
	var result models.SupplierItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing supplierItemModel
		err := tx.Where("contract_number = ? AND material = ? AND unit = ? AND csin = ?",
			item.ContractNumber, item.Material, item.Unit, item.CSIN).First(&existing).Error
		switch {
		case err == nil:
			item.ReadyToUpdateSAPOA = true
			item.ReadyToCreateSAPOA = existing.ReadyToCreateSAPOA
		case errors.Is(err, gorm.ErrRecordNotFound):
			item.ReadyToCreateSAPOA = true
			item.ReadyToUpdateSAPOA = false
		default:
			return err
		}

		row := itemToRow(item)
		now := time.Now().UTC()
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_id"}, {Name: "csin"}},
			DoUpdates: clause.AssignmentColumns(itemUpsertColumns),
		}).Create(&row).Error; err != nil {
			return err
		}
		result = rowToItem(row)
		return nil
	})
	return result, err
}

func (r *SupplierItemRepository) FindReadyForHop(ctx context.Context, hop HopSpec) ([]models.SupplierItem, error) {
	var rows []supplierItemModel
	tx := applyHop(r.db.WithContext(ctx).Model(&supplierItemModel{}), hop)
	if err := tx.Order("contract_id, csin").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]models.SupplierItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowToItem(row))
	}
	return items, nil
}

func (r *SupplierItemRepository) MarkFinished(ctx context.Context, hop HopSpec, contractID, csin string) error {
	return r.db.WithContext(ctx).Model(&supplierItemModel{}).
		Where("contract_id = ? AND csin = ?", contractID, csin).
		Updates(finishAssignments(hop)).Error
}

// SetSAPReference records the SAP-assigned OA number and line for an item.
func (r *SupplierItemRepository) SetSAPReference(ctx context.Context, contractID, csin, sapOANumber, sapOALine string) error {
	return r.db.WithContext(ctx).Model(&supplierItemModel{}).
		Where("contract_id = ? AND csin = ?", contractID, csin).
		Updates(map[string]interface{}{
			"sap_oa_number": sapOANumber,
			"sap_oa_line":   sapOALine,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// PropagateContractLink marks both an item and its matching contract header
// ready to create in SAP, as one logical operation. Wrapped in a transaction
// so a failure never leaves a half-updated pair.
func (r *SupplierItemRepository) PropagateContractLink(ctx context.Context, contractID, csin, headerContractID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&supplierItemModel{}).
			Where("contract_id = ? AND csin = ?", contractID, csin).
			Updates(map[string]interface{}{
				"ready_to_create_sap_oa": true,
				"updated_at":             now,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&contractHeaderModel{}).
			Where("contract_id = ?", headerContractID).
			Updates(map[string]interface{}{
				"ready_to_create_sap_oa": true,
				"updated_at":             now,
			}).Error
	})
}
