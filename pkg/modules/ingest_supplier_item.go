package modules

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/transform"
	"gorm.io/gorm"
)

// SupplierItemIngest mirrors the contract-header ingest for supplier items.
// After a row lands in staging, an item whose contract is already staged gets
// the contract link propagated so both sides become eligible for the SAP hop
// together.
func (s *Set) SupplierItemIngest(ctx context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error) {
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
		logger.WithField("folder", folder).Info("No supplier item files to ingest")
		return result, nil
	}

	for _, name := range files {
		s.ingestItemFile(ctx, client, cfg, folder, name, &result)
	}
	return result, nil
}

func (s *Set) ingestItemFile(ctx context.Context, client DropClient, cfg models.IntegrationConfiguration, folder, name string, result *models.ModuleResult) {
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
		item, err := itemFromRow(row)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, rowError(name, categoryCSVParse, err.Error(), row))
			continue
		}
		if _, err := s.items.ClassifyAndUpsert(ctx, item); err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, rowError(name, categoryDatabase, err.Error(), row))
			continue
		}
		if err := s.linkContract(ctx, item); err != nil {
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
	}).Info("Supplier item file ingested")
}

// linkContract marks the item and its staged header ready for the SAP hop.
// A header that has not arrived yet is normal; the next header ingest will
// pick the pair up.
func (s *Set) linkContract(ctx context.Context, item models.SupplierItem) error {
	header, err := s.headers.Get(ctx, item.ContractID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.items.PropagateContractLink(ctx, item.ContractID, item.CSIN, header.ContractID)
}

func itemFromRow(row transform.Row) (models.SupplierItem, error) {
	f := row.Fields
	if f["contract_id"] == "" {
		return models.SupplierItem{}, fmt.Errorf("contract_id is required")
	}
	if f["csin"] == "" {
		return models.SupplierItem{}, fmt.Errorf("csin is required")
	}

	ctrID, err := transform.ParseInt(f["ctr_id"])
	if err != nil {
		return models.SupplierItem{}, fmt.Errorf("ctr_id: %w", err)
	}
	price, err := transform.ParseDecimal(f["price"])
	if err != nil {
		return models.SupplierItem{}, fmt.Errorf("price: %w", err)
	}

	return models.SupplierItem{
		ContractID:     f["contract_id"],
		CSIN:           f["csin"],
		Status:         f["status"],
		ContractNumber: f["contract_number"],
		CtrID:          ctrID,
		Material:       f["material"],
		Unit:           f["unit"],
		Price:          price,
		Currency:       f["currency"],
		Plant:          f["plant"],
		Description:    f["description"],
	}, nil
}
