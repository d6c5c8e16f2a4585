package modules

import (
	"context"
	"path"
	"time"

	"github.com/erpbridge/platform/pkg/common/config"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/coupa"
	"github.com/erpbridge/platform/pkg/filedrop"
	"github.com/erpbridge/platform/pkg/integration"
	"github.com/erpbridge/platform/pkg/staging"
	"github.com/erpbridge/platform/pkg/transform"
)

// Registered module names. These are the values stored in
// integration_configuration.module_name.
const (
	ModuleContractHeaderIngest = "contracts-header-ingest"
	ModuleSupplierItemIngest   = "contracts-supplieritem-ingest"
	ModuleContractHeaderPush   = "contracts-header-to-coupa"
	ModuleSupplierItemPush     = "supplieritem-to-coupa"
	ModuleExchangeRate         = "exchange-rate"
)

// Error detail categories recorded in field_name.
const (
	categoryCSVParse = "CSV_PARSE"
	categoryDatabase = "DATABASE"
	categoryDownload = "SFTP_DOWNLOAD"
	categoryUpload   = "SFTP_UPLOAD"
	categoryArchive  = "ARCHIVE"
	categoryCoupa    = "COUPA_API"
)

// HeaderStore is the contract-header staging surface the modules use;
// *staging.ContractHeaderRepository satisfies it.
type HeaderStore interface {
	ClassifyAndUpsert(ctx context.Context, header models.ContractHeader) (models.ContractHeader, error)
	FindReadyForHop(ctx context.Context, hop staging.HopSpec) ([]models.ContractHeader, error)
	MarkFinished(ctx context.Context, hop staging.HopSpec, contractID string) error
	Get(ctx context.Context, contractID string) (models.ContractHeader, error)
}

// ItemStore is the supplier-item staging surface;
// *staging.SupplierItemRepository satisfies it.
type ItemStore interface {
	ClassifyAndUpsert(ctx context.Context, item models.SupplierItem) (models.SupplierItem, error)
	FindReadyForHop(ctx context.Context, hop staging.HopSpec) ([]models.SupplierItem, error)
	MarkFinished(ctx context.Context, hop staging.HopSpec, contractID, csin string) error
	PropagateContractLink(ctx context.Context, contractID, csin, headerContractID string) error
}

// RateStore is the exchange-rate staging surface;
// *staging.ExchangeRateRepository satisfies it.
type RateStore interface {
	BulkUpsert(ctx context.Context, rates []models.ExchangeRate) error
	FindByStatus(ctx context.Context, status string) ([]models.ExchangeRate, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
}

// CoupaGateway is what the push modules need from the Coupa client.
type CoupaGateway interface {
	UpdateContractReference(ctx context.Context, coupaContractID int, sapOANumber string) error
	UpsertSupplierItem(ctx context.Context, endpoint string, payload coupa.SupplierItemPayload) error
	Post(ctx context.Context, path string, payload, out interface{}) error
}

// DropClient is one SFTP session; *filedrop.Client satisfies it. Modules
// dial a fresh session per run and close it when done.
type DropClient interface {
	List(dir, suffix string) ([]string, error)
	Download(remotePath string) ([]byte, error)
	Upload(remotePath string, data []byte) error
	Move(src, dst string) error
	Close() error
}

// Set bundles the dependencies shared by all modules and exposes the
// registry the scheduler runs.
type Set struct {
	cfg     *config.Config
	headers HeaderStore
	items   ItemStore
	rates   RateStore
	coupa   CoupaGateway
	dial    func() (DropClient, error)
	now     func() time.Time
}

func NewSet(cfg *config.Config, headers HeaderStore, items ItemStore, rates RateStore, gateway CoupaGateway, dial func() (DropClient, error)) *Set {
	return &Set{
		cfg:     cfg,
		headers: headers,
		items:   items,
		rates:   rates,
		coupa:   gateway,
		dial:    dial,
		now:     time.Now,
	}
}

// Registry maps module names to their implementations.
func (s *Set) Registry() map[string]integration.Func {
	return map[string]integration.Func{
		ModuleContractHeaderIngest: s.ContractHeaderIngest,
		ModuleSupplierItemIngest:   s.SupplierItemIngest,
		ModuleContractHeaderPush:   s.ContractHeaderPush,
		ModuleSupplierItemPush:     s.SupplierItemPush,
		ModuleExchangeRate:         s.ExchangeRate,
	}
}

// archiveDest is where an ingested file gets parked. A configured
// archive_path wins; without one the file moves to a processed sibling of
// the incoming folder.
func (s *Set) archiveDest(cfg models.IntegrationConfiguration, folder, name string) string {
	if dir := configString(cfg, "archive_path", ""); dir != "" {
		return path.Join(dir, s.now().Format("2006-01-02"), name)
	}
	return filedrop.ArchivePath(folder, "processed", name, s.now())
}

// configString reads a string from the per-module config JSON.
func configString(cfg models.IntegrationConfiguration, key, fallback string) string {
	if v, ok := cfg.ConfigJSON[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// configInt reads an integer from the config JSON; JSON numbers arrive as
// float64.
func configInt(cfg models.IntegrationConfiguration, key string, fallback int) int {
	if v, ok := cfg.ConfigJSON[key].(float64); ok && v > 0 {
		return int(v)
	}
	return fallback
}

// rowPayload preserves the offending CSV row for the error ledger.
func rowPayload(fileName string, row transform.Row) map[string]interface{} {
	payload := map[string]interface{}{"file": fileName}
	for k, v := range row.Fields {
		payload[k] = v
	}
	return payload
}

func rowError(fileName, category, message string, row transform.Row) models.ErrorDetail {
	line := row.Line
	return models.ErrorDetail{
		LineNumber:   &line,
		FieldName:    category,
		ErrorMessage: message,
		RawPayload:   rowPayload(fileName, row),
	}
}

func fileError(fileName, category, message string) models.ErrorDetail {
	return models.ErrorDetail{
		FieldName:    category,
		ErrorMessage: message,
		RawPayload:   map[string]interface{}{"file": fileName},
	}
}
