package modules

import (
	"context"
	"fmt"
	"path"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/transform"
)

// ContractHeaderIngest pulls contract-header CSV drops from SFTP, classifies
// each row as create-or-update and upserts it into staging. Files with at
// least one successful record are archived; per-record failures end up in
// the error ledger, not in the returned error.
func (s *Set) ContractHeaderIngest(ctx context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error) {
	var result models.ModuleResult

	folder := configString(cfg, "sftp_folder", s.cfg.SFTPIncomingPath)
	client, err := s.dial()
	if err != nil {
		return result, fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	files, err := client.List(folder, ".csv")
	if err != nil {
		return result, fmt.Errorf("failed to list drop folder: %w", err)
	}
	if len(files) == 0 {
		logger.WithField("folder", folder).Info("No contract header files to ingest")
		return result, nil
	}

	for _, name := range files {
		s.ingestHeaderFile(ctx, client, cfg, folder, name, &result)
	}
	return result, nil
}

func (s *Set) ingestHeaderFile(ctx context.Context, client DropClient, cfg models.IntegrationConfiguration, folder, name string, result *models.ModuleResult) {
	remote := path.Join(folder, name)
	data, err := client.Download(remote)
	if err != nil {
		result.ErrorCount++
		result.Errors = append(result.Errors, fileError(name, categoryDownload, err.Error()))
		return
	}

	rows, rowErrs, err := transform.Parse(data)
	if err != nil {
		result.ErrorCount++
		result.Errors = append(result.Errors, fileError(name, categoryCSVParse, err.Error()))
		return
	}
	for _, re := range rowErrs {
		line := re.Line
		result.ErrorCount++
		result.Errors = append(result.Errors, models.ErrorDetail{
			LineNumber:   &line,
			FieldName:    categoryCSVParse,
			ErrorMessage: re.Err.Error(),
			RawPayload:   map[string]interface{}{"file": name},
		})
	}
	result.TotalRecords += len(rows) + len(rowErrs)

	succeeded := 0
	for _, row := range rows {
		header, err := headerFromRow(row)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, rowError(name, categoryCSVParse, err.Error(), row))
			continue
		}
		if _, err := s.headers.ClassifyAndUpsert(ctx, header); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, rowError(name, categoryDatabase, err.Error(), row))
			continue
		}
		succeeded++
	}
	result.SuccessCount += succeeded

	if succeeded > 0 {
		dst := s.archiveDest(cfg, folder, name)
		if err := client.Move(remote, dst); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, fileError(name, categoryArchive, err.Error()))
		}
	}
	logger.WithFields(map[string]interface{}{
		"file":      name,
		"succeeded": succeeded,
	}).Info("Contract header file ingested")
}

func headerFromRow(row transform.Row) (models.ContractHeader, error) {
	f := row.Fields
	if f["contract_id"] == "" {
		return models.ContractHeader{}, fmt.Errorf("contract_id is required")
	}
	if f["contract_number"] == "" {
		return models.ContractHeader{}, fmt.Errorf("contract_number is required")
	}

	supplierNumber, err := transform.ParseInt(f["supplier_number"])
	if err != nil {
		return models.ContractHeader{}, fmt.Errorf("supplier_number: %w", err)
	}
	maxValue, err := transform.ParseDecimal(f["max_value"])
	if err != nil {
		return models.ContractHeader{}, fmt.Errorf("max_value: %w", err)
	}
	startDate, err := transform.ParseSAPDate(f["start_date"])
	if err != nil {
		return models.ContractHeader{}, fmt.Errorf("start_date: %w", err)
	}
	endDate, err := transform.ParseSAPDate(f["end_date"])
	if err != nil {
		return models.ContractHeader{}, fmt.Errorf("end_date: %w", err)
	}

	return models.ContractHeader{
		ContractID:      f["contract_id"],
		ContractNumber:  f["contract_number"],
		ParentNumber:    f["parent_number"],
		Status:          f["status"],
		ContractName:    f["contract_name"],
		ContractType:    f["contract_type"],
		ContractStatus:  f["contract_status"],
		OwnerLogin:      f["owner_login"],
		CommodityName:   f["commodity_name"],
		SupplierNumber:  supplierNumber,
		SupplierName:    f["supplier_name"],
		PurchasingGroup: f["purchasing_group"],
		CompanyCode:     f["company_code"],
		Currency:        f["currency"],
		PaymentTerms:    f["payment_terms"],
		Incoterms:       f["incoterms"],
		MaxValue:        maxValue,
		StartDate:       startDate,
		EndDate:         endDate,
	}, nil
}
