package staging

import (
	"time"

	"github.com/erpbridge/platform/pkg/common/models"
)

type contractHeaderModel struct {
	ContractID      string     `gorm:"primaryKey;column:contract_id"`
	ContractNumber  string     `gorm:"column:contract_number;index"`
	ParentNumber    string     `gorm:"column:parent_number"`
	Status          string     `gorm:"column:status"`
	ContractName    string     `gorm:"column:contract_name"`
	ContractType    string     `gorm:"column:contract_type"`
	ContractStatus  string     `gorm:"column:contract_status"`
	OwnerLogin      string     `gorm:"column:owner_login"`
	CommodityName   string     `gorm:"column:commodity_name"`
	SupplierNumber  *int       `gorm:"column:supplier_number"`
	SupplierName    string     `gorm:"column:supplier_name"`
	PurchasingGroup string     `gorm:"column:purchasing_group"`
	CompanyCode     string     `gorm:"column:company_code"`
	Currency        string     `gorm:"column:currency"`
	PaymentTerms    string     `gorm:"column:payment_terms"`
	Incoterms       string     `gorm:"column:incoterms"`
	MaxValue        *float64   `gorm:"column:max_value"`
	StartDate       *time.Time `gorm:"column:start_date"`
	EndDate         *time.Time `gorm:"column:end_date"`

	ReadyToCreateSAPOA    bool    `gorm:"column:ready_to_create_sap_oa"`
	ReadyToUpdateSAPOA    bool    `gorm:"column:ready_to_update_sap_oa"`
	FinishedUpdateSAPOA   bool    `gorm:"column:finished_update_sap_oa"`
	SAPOANumber           *string `gorm:"column:sap_oa_number"`
	FinishedUpdateCoupaOA bool    `gorm:"column:finished_update_coupa_oa"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (contractHeaderModel) TableName() string { return "contract_header_staging" }

type supplierItemModel struct {
	ContractID     string   `gorm:"primaryKey;column:contract_id"`
	CSIN           string   `gorm:"primaryKey;column:csin"`
	Status         string   `gorm:"column:status"`
	ContractNumber string   `gorm:"column:contract_number;index"`
	CtrID          *int     `gorm:"column:ctr_id;index"`
	Material       string   `gorm:"column:material"`
	Unit           string   `gorm:"column:unit"`
	Price          *float64 `gorm:"column:price"`
	Currency       string   `gorm:"column:currency"`
	Plant          string   `gorm:"column:plant"`
	Description    string   `gorm:"column:description"`

	ReadyToCreateSAPOA    bool    `gorm:"column:ready_to_create_sap_oa"`
	ReadyToUpdateSAPOA    bool    `gorm:"column:ready_to_update_sap_oa"`
	FinishedUpdateSAPOA   bool    `gorm:"column:finished_update_sap_oa"`
	SAPOANumber           *string `gorm:"column:sap_oa_number"`
	SAPOALine             *string `gorm:"column:sap_oa_line"`
	FinishedUpdateCoupaOA bool    `gorm:"column:finished_update_coupa_oa"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (supplierItemModel) TableName() string { return "supplier_item_staging" }

type exchangeRateModel struct {
	ID           uint      `gorm:"primaryKey;column:id"`
	FromCurrency string    `gorm:"column:from_currency;uniqueIndex:idx_exchange_rate_key"`
	ToCurrency   string    `gorm:"column:to_currency;uniqueIndex:idx_exchange_rate_key"`
	RateValue    float64   `gorm:"column:rate_value"`
	RateDate     time.Time `gorm:"column:rate_date;uniqueIndex:idx_exchange_rate_key"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (exchangeRateModel) TableName() string { return "exchange_rate_staging" }

func headerToRow(h models.ContractHeader) contractHeaderModel {
	return contractHeaderModel{
		ContractID:            h.ContractID,
		ContractNumber:        h.ContractNumber,
		ParentNumber:          h.ParentNumber,
		Status:                h.Status,
		ContractName:          h.ContractName,
		ContractType:          h.ContractType,
		ContractStatus:        h.ContractStatus,
		OwnerLogin:            h.OwnerLogin,
		CommodityName:         h.CommodityName,
		SupplierNumber:        h.SupplierNumber,
		SupplierName:          h.SupplierName,
		PurchasingGroup:       h.PurchasingGroup,
		CompanyCode:           h.CompanyCode,
		Currency:              h.Currency,
		PaymentTerms:          h.PaymentTerms,
		Incoterms:             h.Incoterms,
		MaxValue:              h.MaxValue,
		StartDate:             h.StartDate,
		EndDate:               h.EndDate,
		ReadyToCreateSAPOA:    h.ReadyToCreateSAPOA,
		ReadyToUpdateSAPOA:    h.ReadyToUpdateSAPOA,
		FinishedUpdateSAPOA:   h.FinishedUpdateSAPOA,
		SAPOANumber:           h.SAPOANumber,
		FinishedUpdateCoupaOA: h.FinishedUpdateCoupaOA,
	}
}

func rowToHeader(row contractHeaderModel) models.ContractHeader {
	return models.ContractHeader{
		ContractID:            row.ContractID,
		ContractNumber:        row.ContractNumber,
		ParentNumber:          row.ParentNumber,
		Status:                row.Status,
		ContractName:          row.ContractName,
		ContractType:          row.ContractType,
		ContractStatus:        row.ContractStatus,
		OwnerLogin:            row.OwnerLogin,
		CommodityName:         row.CommodityName,
		SupplierNumber:        row.SupplierNumber,
		SupplierName:          row.SupplierName,
		PurchasingGroup:       row.PurchasingGroup,
		CompanyCode:           row.CompanyCode,
		Currency:              row.Currency,
		PaymentTerms:          row.PaymentTerms,
		Incoterms:             row.Incoterms,
		MaxValue:              row.MaxValue,
		StartDate:             row.StartDate,
		EndDate:               row.EndDate,
		ReadyToCreateSAPOA:    row.ReadyToCreateSAPOA,
		ReadyToUpdateSAPOA:    row.ReadyToUpdateSAPOA,
		FinishedUpdateSAPOA:   row.FinishedUpdateSAPOA,
		SAPOANumber:           row.SAPOANumber,
		FinishedUpdateCoupaOA: row.FinishedUpdateCoupaOA,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

func itemToRow(it models.SupplierItem) supplierItemModel {
	return supplierItemModel{
		ContractID:            it.ContractID,
		CSIN:                  it.CSIN,
		Status:                it.Status,
		ContractNumber:        it.ContractNumber,
		CtrID:                 it.CtrID,
		Material:              it.Material,
		Unit:                  it.Unit,
		Price:                 it.Price,
		Currency:              it.Currency,
		Plant:                 it.Plant,
		Description:           it.Description,
		ReadyToCreateSAPOA:    it.ReadyToCreateSAPOA,
		ReadyToUpdateSAPOA:    it.ReadyToUpdateSAPOA,
		FinishedUpdateSAPOA:   it.FinishedUpdateSAPOA,
		SAPOANumber:           it.SAPOANumber,
		SAPOALine:             it.SAPOALine,
		FinishedUpdateCoupaOA: it.FinishedUpdateCoupaOA,
	}
}

func rowToItem(row supplierItemModel) models.SupplierItem {
	return models.SupplierItem{
		ContractID:            row.ContractID,
		CSIN:                  row.CSIN,
		Status:                row.Status,
		ContractNumber:        row.ContractNumber,
		CtrID:                 row.CtrID,
		Material:              row.Material,
		Unit:                  row.Unit,
		Price:                 row.Price,
		Currency:              row.Currency,
		Plant:                 row.Plant,
		Description:           row.Description,
		ReadyToCreateSAPOA:    row.ReadyToCreateSAPOA,
		ReadyToUpdateSAPOA:    row.ReadyToUpdateSAPOA,
		FinishedUpdateSAPOA:   row.FinishedUpdateSAPOA,
		SAPOANumber:           row.SAPOANumber,
		SAPOALine:             row.SAPOALine,
		FinishedUpdateCoupaOA: row.FinishedUpdateCoupaOA,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

func rowToRate(row exchangeRateModel) models.ExchangeRate {
	return models.ExchangeRate{
		ID:           row.ID,
		FromCurrency: row.FromCurrency,
		ToCurrency:   row.ToCurrency,
		RateValue:    row.RateValue,
		RateDate:     row.RateDate,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
