package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one integration run. RUNNING is the only
// non-terminal state; exactly one terminal update follows it.
type RunStatus string

const (
	StatusRunning RunStatus = "RUNNING"
	StatusSuccess RunStatus = "SUCCESS"
	StatusPartial RunStatus = "PARTIAL"
	StatusFailed  RunStatus = "FAILED"
)

// RetryStatus tracks operator handling of a persisted error detail.
type RetryStatus string

const (
	RetryPending  RetryStatus = "PENDING"
	RetryRetrying RetryStatus = "RETRYING"
	RetryRetried  RetryStatus = "RETRIED"
	RetryIgnored  RetryStatus = "IGNORED"
)

// IntegrationMode selects the transport a module uses to deliver records.
type IntegrationMode string

const (
	ModeCSV  IntegrationMode = "CSV"
	ModeAPI  IntegrationMode = "API"
	ModeBoth IntegrationMode = "BOTH"
)

type RetryMode string

const (
	RetryAutomatic RetryMode = "AUTOMATIC"
	RetryManual    RetryMode = "MANUAL"
)

// IntegrationConfiguration is one row per module name; created and updated through
// the admin surface, deactivated rather than deleted.
type IntegrationConfiguration struct {
	ID                       uint                   `json:"id"`
	ModuleName               string                 `json:"module_name"`
	ExecutionInterval        string                 `json:"execution_interval"`
	IntegrationMode          IntegrationMode        `json:"integration_mode"`
	IsActive                 bool                   `json:"is_active"`
	SAPEndpoint              string                 `json:"sap_endpoint"`
	CoupaEndpoint            string                 `json:"coupa_endpoint"`
	RetryMode                RetryMode              `json:"retry_mode"`
	ConfigJSON               map[string]interface{} `json:"config_json"`
	EmailNotificationEnabled bool                   `json:"email_notification_enabled"`
	EmailOnSuccess           bool                   `json:"email_on_success"`
	EmailOnFailure           bool                   `json:"email_on_failure"`
	EmailOnPartial           bool                   `json:"email_on_partial"`
	CreatedAt                time.Time              `json:"created_at"`
	UpdatedAt                time.Time              `json:"updated_at"`
}

// IntegrationRun is the persisted ledger entry for one execution attempt.
type IntegrationRun struct {
	ID           uuid.UUID  `json:"id"`
	ModuleName   string     `json:"module_name"`
	Status       RunStatus  `json:"status"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
	TotalRecords int        `json:"total_records"`
	DurationMS   int64      `json:"duration_ms"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// ErrorDetail is the per-record failure shape modules return. FieldName is a
// category tag (CSV_PARSE, DATABASE, COUPA_API, ...), not necessarily a column.
type ErrorDetail struct {
	LineNumber   *int                   `json:"line_number"`
	FieldName    string                 `json:"field_name"`
	ErrorMessage string                 `json:"error_message"`
	RawPayload   map[string]interface{} `json:"raw_payload"`
}

// IntegrationErrorDetail is a persisted ErrorDetail owned by a run.
type IntegrationErrorDetail struct {
	ID          uint        `json:"id"`
	RunID       uuid.UUID   `json:"run_id"`
	ErrorDetail             // embedded failure shape
	RetryStatus RetryStatus `json:"retry_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ModuleResult is the closed contract every integration module returns.
// Expected per-record failures travel in Errors, never as a returned error.
type ModuleResult struct {
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	TotalRecords int           `json:"total_records"`
	Errors       []ErrorDetail `json:"errors"`
}

type NotificationRecipient struct {
	ID               uint      `json:"id"`
	Email            string    `json:"email"`
	GroupName        string    `json:"group_name"`
	NotificationType string    `json:"notification_type"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Event is the envelope published to Kafka when a run completes.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ContractHeader is one staged contract-header record and its pipeline progress.
// ContractID is the natural key; SAPOANumber is assigned by the SAP hop and
// gates eligibility for the Coupa hop.
type ContractHeader struct {
	ContractID      string     `json:"contract_id"`
	ContractNumber  string     `json:"contract_number"`
	ParentNumber    string     `json:"parent_number"`
	Status          string     `json:"status"`
	ContractName    string     `json:"contract_name"`
	ContractType    string     `json:"contract_type"`
	ContractStatus  string     `json:"contract_status"`
	OwnerLogin      string     `json:"owner_login"`
	CommodityName   string     `json:"commodity_name"`
	SupplierNumber  *int       `json:"supplier_number"`
	SupplierName    string     `json:"supplier_name"`
	PurchasingGroup string     `json:"purchasing_group"`
	CompanyCode     string     `json:"company_code"`
	Currency        string     `json:"currency"`
	PaymentTerms    string     `json:"payment_terms"`
	Incoterms       string     `json:"incoterms"`
	MaxValue        *float64   `json:"max_value"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`

	ReadyToCreateSAPOA    bool    `json:"ready_to_create_sap_oa"`
	ReadyToUpdateSAPOA    bool    `json:"ready_to_update_sap_oa"`
	FinishedUpdateSAPOA   bool    `json:"finished_update_sap_oa"`
	SAPOANumber           *string `json:"sap_oa_number"`
	FinishedUpdateCoupaOA bool    `json:"finished_update_coupa_oa"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupplierItem is one staged supplier-item record; the natural key is the
// composite (ContractID, CSIN).
type SupplierItem struct {
	ContractID     string   `json:"contract_id"`
	CSIN           string   `json:"csin"`
	Status         string   `json:"status"`
	ContractNumber string   `json:"contract_number"`
	CtrID          *int     `json:"ctr_id"`
	Material       string   `json:"material"`
	Unit           string   `json:"unit"`
	Price          *float64 `json:"price"`
	Currency       string   `json:"currency"`
	Plant          string   `json:"plant"`
	Description    string   `json:"description"`

	ReadyToCreateSAPOA    bool    `json:"ready_to_create_sap_oa"`
	ReadyToUpdateSAPOA    bool    `json:"ready_to_update_sap_oa"`
	FinishedUpdateSAPOA   bool    `json:"finished_update_sap_oa"`
	SAPOANumber           *string `json:"sap_oa_number"`
	SAPOALine             *string `json:"sap_oa_line"`
	FinishedUpdateCoupaOA bool    `json:"finished_update_coupa_oa"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExchangeRate is one staged currency rate; upserts merge on
// (from_currency, to_currency, rate_date).
type ExchangeRate struct {
	ID           uint      `json:"id"`
	FromCurrency string    `json:"from_currency"`
	ToCurrency   string    `json:"to_currency"`
	RateValue    float64   `json:"rate_value"`
	RateDate     time.Time `json:"rate_date"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
