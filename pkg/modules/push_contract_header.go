package modules

import (
	"context"
	"fmt"
	"strconv"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/staging"
)

// ContractHeaderPush writes the SAP-assigned OA number back onto the Coupa
// contracts that are ready for the Coupa hop. Each record is pushed and
// finish-marked independently; one bad contract never blocks the rest.
func (s *Set) ContractHeaderPush(ctx context.Context, _ models.IntegrationConfiguration) (models.ModuleResult, error) {
	var result models.ModuleResult

	headers, err := s.headers.FindReadyForHop(ctx, staging.HeaderHopCoupa)
	if err != nil {
		return result, fmt.Errorf("failed to load headers ready for coupa: %w", err)
	}
	result.TotalRecords = len(headers)
	if len(headers) == 0 {
		logger.Log.Info("No contract headers ready for Coupa")
		return result, nil
	}

	for _, header := range headers {
		if err := s.pushHeader(ctx, header); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, models.ErrorDetail{
				FieldName:    categoryCoupa,
				ErrorMessage: err.Error(),
				RawPayload: map[string]interface{}{
					"contract_id":     header.ContractID,
					"contract_number": header.ContractNumber,
				},
			})
			continue
		}
		result.SuccessCount++
	}
	logger.WithFields(map[string]interface{}{
		"pushed": result.SuccessCount,
		"failed": result.ErrorCount,
	}).Info("Contract header push finished")
	return result, nil
}

func (s *Set) pushHeader(ctx context.Context, header models.ContractHeader) error {
	coupaID, err := strconv.Atoi(header.ContractID)
	if err != nil {
		return fmt.Errorf("contract_id %q is not a coupa contract id", header.ContractID)
	}
	// FindReadyForHop guarantees a non-empty OA number; the nil check guards
	// against a concurrent reset.
	if header.SAPOANumber == nil || *header.SAPOANumber == "" {
		return fmt.Errorf("contract %s has no sap oa number", header.ContractID)
	}
	if err := s.coupa.UpdateContractReference(ctx, coupaID, *header.SAPOANumber); err != nil {
		return err
	}
	if err := s.headers.MarkFinished(ctx, staging.HeaderHopCoupa, header.ContractID); err != nil {
		return fmt.Errorf("pushed but failed to mark finished: %w", err)
	}
	return nil
}
