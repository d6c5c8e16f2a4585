package modules

import (
	"context"
	"fmt"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/coupa"
	"github.com/erpbridge/platform/pkg/staging"
)

// SupplierItemPush sends items that finished the SAP hop to the Coupa
// supplier-items API, carrying the OA line as a custom field.
func (s *Set) SupplierItemPush(ctx context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error) {
	var result models.ModuleResult

	items, err := s.items.FindReadyForHop(ctx, staging.ItemHopCoupa)
	if err != nil {
		return result, fmt.Errorf("failed to load items ready for coupa: %w", err)
	}
	result.TotalRecords = len(items)
	if len(items) == 0 {
		logger.Log.Info("No supplier items ready for Coupa")
		return result, nil
	}

	endpoint := cfg.CoupaEndpoint
	for _, item := range items {
		if err := s.pushItem(ctx, endpoint, item); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, models.ErrorDetail{
				FieldName:    categoryCoupa,
				ErrorMessage: err.Error(),
				RawPayload: map[string]interface{}{
					"contract_id": item.ContractID,
					"csin":        item.CSIN,
				},
			})
			continue
		}
		result.SuccessCount++
	}
	logger.WithFields(map[string]interface{}{
		"pushed": result.SuccessCount,
		"failed": result.ErrorCount,
	}).Info("Supplier item push finished")
	return result, nil
}

func (s *Set) pushItem(ctx context.Context, endpoint string, item models.SupplierItem) error {
	if item.SAPOALine == nil || *item.SAPOALine == "" {
		return fmt.Errorf("item %s/%s has no sap oa line", item.ContractID, item.CSIN)
	}
	payload := coupa.SupplierItemPayload{
		ID:             item.CSIN,
		ContractNumber: item.ContractNumber,
		Price:          item.Price,
		Currency:       item.Currency,
		CustomFields: map[string]interface{}{
			"sap-oa-line": *item.SAPOALine,
		},
	}
	if err := s.coupa.UpsertSupplierItem(ctx, endpoint, payload); err != nil {
		return err
	}
	if err := s.items.MarkFinished(ctx, staging.ItemHopCoupa, item.ContractID, item.CSIN); err != nil {
		return fmt.Errorf("pushed but failed to mark finished: %w", err)
	}
	return nil
}
