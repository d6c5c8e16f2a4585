package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type configModel struct {
	ID                       uint           `gorm:"primaryKey;autoIncrement"`
	ModuleName               string         `gorm:"column:module_name;uniqueIndex;not null"`
	ExecutionInterval        string         `gorm:"column:execution_interval;not null"`
	IntegrationMode          string         `gorm:"column:integration_mode;default:API"`
	IsActive                 bool           `gorm:"column:is_active;default:true"`
	SAPEndpoint              string         `gorm:"column:sap_endpoint"`
	CoupaEndpoint            string         `gorm:"column:coupa_endpoint"`
	RetryMode                string         `gorm:"column:retry_mode;default:MANUAL"`
	ConfigJSON               datatypes.JSON `gorm:"column:config_json"`
	EmailNotificationEnabled bool           `gorm:"column:email_notification_enabled"`
	EmailOnSuccess           bool           `gorm:"column:email_on_success"`
	EmailOnFailure           bool           `gorm:"column:email_on_failure;default:true"`
	EmailOnPartial           bool           `gorm:"column:email_on_partial;default:true"`
	CreatedAt                time.Time      `gorm:"column:created_at"`
	UpdatedAt                time.Time      `gorm:"column:updated_at"`
}

func (configModel) TableName() string { return "integration_configuration" }

type runModel struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ModuleName   string     `gorm:"column:module_name;index;not null"`
	Status       string     `gorm:"column:status;index;not null"`
	SuccessCount int        `gorm:"column:success_count"`
	ErrorCount   int        `gorm:"column:error_count"`
	TotalRecords int        `gorm:"column:total_records"`
	DurationMS   int64      `gorm:"column:duration_ms"`
	StartedAt    time.Time  `gorm:"column:started_at;index"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "integration_runs" }

type errorDetailModel struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	RunID        uuid.UUID      `gorm:"column:run_id;type:uuid;index;not null"`
	LineNumber   *int           `gorm:"column:line_number"`
	FieldName    string         `gorm:"column:field_name"`
	ErrorMessage string         `gorm:"column:error_message"`
	RawPayload   datatypes.JSON `gorm:"column:raw_payload"`
	RetryStatus  string         `gorm:"column:retry_status;default:PENDING"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}

func (errorDetailModel) TableName() string { return "integration_error_details" }

type recipientModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Email            string    `gorm:"column:email;uniqueIndex;not null"`
	GroupName        string    `gorm:"column:group_name"`
	NotificationType string    `gorm:"column:notification_type;default:ALL"`
	IsActive         bool      `gorm:"column:is_active;default:true"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (recipientModel) TableName() string { return "notification_recipients" }

// Repository persists configurations, the run ledger, error details and
// notification recipients.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&configModel{}, &runModel{}, &errorDetailModel{}, &recipientModel{})
}

func toJSON(m map[string]interface{}) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func fromJSON(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func configToRow(cfg models.IntegrationConfiguration) configModel {
	return configModel{
		ID:                       cfg.ID,
		ModuleName:               cfg.ModuleName,
		ExecutionInterval:        cfg.ExecutionInterval,
		IntegrationMode:          string(cfg.IntegrationMode),
		IsActive:                 cfg.IsActive,
		SAPEndpoint:              cfg.SAPEndpoint,
		CoupaEndpoint:            cfg.CoupaEndpoint,
		RetryMode:                string(cfg.RetryMode),
		ConfigJSON:               toJSON(cfg.ConfigJSON),
		EmailNotificationEnabled: cfg.EmailNotificationEnabled,
		EmailOnSuccess:           cfg.EmailOnSuccess,
		EmailOnFailure:           cfg.EmailOnFailure,
		EmailOnPartial:           cfg.EmailOnPartial,
		CreatedAt:                cfg.CreatedAt,
		UpdatedAt:                cfg.UpdatedAt,
	}
}

func rowToConfig(row configModel) models.IntegrationConfiguration {
	return models.IntegrationConfiguration{
		ID:                       row.ID,
		ModuleName:               row.ModuleName,
		ExecutionInterval:        row.ExecutionInterval,
		IntegrationMode:          models.IntegrationMode(row.IntegrationMode),
		IsActive:                 row.IsActive,
		SAPEndpoint:              row.SAPEndpoint,
		CoupaEndpoint:            row.CoupaEndpoint,
		RetryMode:                models.RetryMode(row.RetryMode),
		ConfigJSON:               fromJSON(row.ConfigJSON),
		EmailNotificationEnabled: row.EmailNotificationEnabled,
		EmailOnSuccess:           row.EmailOnSuccess,
		EmailOnFailure:           row.EmailOnFailure,
		EmailOnPartial:           row.EmailOnPartial,
		CreatedAt:                row.CreatedAt,
		UpdatedAt:                row.UpdatedAt,
	}
}

func rowToRun(row runModel) models.IntegrationRun {
	return models.IntegrationRun{
		ID:           row.ID,
		ModuleName:   row.ModuleName,
		Status:       models.RunStatus(row.Status),
		SuccessCount: row.SuccessCount,
		ErrorCount:   row.ErrorCount,
		TotalRecords: row.TotalRecords,
		DurationMS:   row.DurationMS,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
	}
}

func rowToErrorDetail(row errorDetailModel) models.IntegrationErrorDetail {
	return models.IntegrationErrorDetail{
		ID:    row.ID,
		RunID: row.RunID,
		ErrorDetail: models.ErrorDetail{
			LineNumber:   row.LineNumber,
			FieldName:    row.FieldName,
			ErrorMessage: row.ErrorMessage,
			RawPayload:   fromJSON(row.RawPayload),
		},
		RetryStatus: models.RetryStatus(row.RetryStatus),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// GetConfig returns the configuration row for a module name.
// gorm.ErrRecordNotFound passes through for callers that distinguish missing
// from inactive.
func (r *Repository) GetConfig(ctx context.Context, moduleName string) (models.IntegrationConfiguration, error) {
	var row configModel
	if err := r.db.WithContext(ctx).Where("module_name = ?", moduleName).First(&row).Error; err != nil {
		return models.IntegrationConfiguration{}, err
	}
	return rowToConfig(row), nil
}

func (r *Repository) ListConfigs(ctx context.Context) ([]models.IntegrationConfiguration, error) {
	var rows []configModel
	if err := r.db.WithContext(ctx).Order("module_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	configs := make([]models.IntegrationConfiguration, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, rowToConfig(row))
	}
	return configs, nil
}

// UpsertConfig merges one configuration keyed on module_name.
func (r *Repository) UpsertConfig(ctx context.Context, cfg models.IntegrationConfiguration) (models.IntegrationConfiguration, error) {
	row := configToRow(cfg)
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "module_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"execution_interval", "integration_mode", "is_active",
			"sap_endpoint", "coupa_endpoint", "retry_mode", "config_json",
			"email_notification_enabled", "email_on_success",
			"email_on_failure", "email_on_partial", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return models.IntegrationConfiguration{}, err
	}
	return r.GetConfig(ctx, cfg.ModuleName)
}

// SeedConfig inserts a configuration only when the module name is not present,
// leaving operator edits untouched on restart.
func (r *Repository) SeedConfig(ctx context.Context, cfg models.IntegrationConfiguration) error {
	row := configToRow(cfg)
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "module_name"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (r *Repository) SetActive(ctx context.Context, moduleName string, active bool) error {
	res := r.db.WithContext(ctx).Model(&configModel{}).
		Where("module_name = ?", moduleName).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateRun opens a ledger entry in RUNNING state and returns it.
func (r *Repository) CreateRun(ctx context.Context, moduleName string) (models.IntegrationRun, error) {
	row := runModel{
		ID:         uuid.New(),
		ModuleName: moduleName,
		Status:     string(models.StatusRunning),
		StartedAt:  time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.IntegrationRun{}, err
	}
	return rowToRun(row), nil
}

// CompleteRun moves a run to its terminal state with final counts.
func (r *Repository) CompleteRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, result models.ModuleResult, duration time.Duration) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&runModel{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":        string(status),
			"success_count": result.SuccessCount,
			"error_count":   result.ErrorCount,
			"total_records": result.TotalRecords,
			"duration_ms":   duration.Milliseconds(),
			"completed_at":  now,
		}).Error
}

func (r *Repository) GetRun(ctx context.Context, runID uuid.UUID) (models.IntegrationRun, error) {
	var row runModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", runID).Error; err != nil {
		return models.IntegrationRun{}, err
	}
	return rowToRun(row), nil
}

// RunFilter narrows ListRuns; zero values mean "no filter".
type RunFilter struct {
	ModuleName string
	Status     models.RunStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ListRuns returns ledger entries newest first.
func (r *Repository) ListRuns(ctx context.Context, filter RunFilter) ([]models.IntegrationRun, error) {
	tx := r.db.WithContext(ctx).Model(&runModel{})
	if filter.ModuleName != "" {
		tx = tx.Where("module_name = ?", filter.ModuleName)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		tx = tx.Where("started_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		tx = tx.Where("started_at < ?", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []runModel
	if err := tx.Order("started_at DESC").Limit(limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]models.IntegrationRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, rowToRun(row))
	}
	return runs, nil
}

// BulkInsertErrors persists a run's error details in one statement.
func (r *Repository) BulkInsertErrors(ctx context.Context, runID uuid.UUID, details []models.ErrorDetail) error {
	if len(details) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]errorDetailModel, 0, len(details))
	for _, d := range details {
		rows = append(rows, errorDetailModel{
			RunID:        runID,
			LineNumber:   d.LineNumber,
			FieldName:    d.FieldName,
			ErrorMessage: d.ErrorMessage,
			RawPayload:   toJSON(d.RawPayload),
			RetryStatus:  string(models.RetryPending),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *Repository) ListErrorsByRun(ctx context.Context, runID uuid.UUID) ([]models.IntegrationErrorDetail, error) {
	var rows []errorDetailModel
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	details := make([]models.IntegrationErrorDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, rowToErrorDetail(row))
	}
	return details, nil
}

func (r *Repository) UpdateRetryStatus(ctx context.Context, errorID uint, status models.RetryStatus) error {
	res := r.db.WithContext(ctx).Model(&errorDetailModel{}).
		Where("id = ?", errorID).
		Updates(map[string]interface{}{
			"retry_status": string(status),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActiveRecipients returns recipients whose notification type matches the
// run outcome, plus the catch-all ALL group.
func (r *Repository) ListActiveRecipients(ctx context.Context, notificationType string) ([]models.NotificationRecipient, error) {
	var rows []recipientModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND (notification_type = ? OR notification_type = ?)", true, notificationType, "ALL").
		Order("email").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	recipients := make([]models.NotificationRecipient, 0, len(rows))
	for _, row := range rows {
		recipients = append(recipients, models.NotificationRecipient{
			ID:               row.ID,
			Email:            row.Email,
			GroupName:        row.GroupName,
			NotificationType: row.NotificationType,
			IsActive:         row.IsActive,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.UpdatedAt,
		})
	}
	return recipients, nil
}

func (r *Repository) ListRecipients(ctx context.Context) ([]models.NotificationRecipient, error) {
	var rows []recipientModel
	if err := r.db.WithContext(ctx).Order("email").Find(&rows).Error; err != nil {
		return nil, err
	}
	recipients := make([]models.NotificationRecipient, 0, len(rows))
	for _, row := range rows {
		recipients = append(recipients, models.NotificationRecipient{
			ID:               row.ID,
			Email:            row.Email,
			GroupName:        row.GroupName,
			NotificationType: row.NotificationType,
			IsActive:         row.IsActive,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.UpdatedAt,
		})
	}
	return recipients, nil
}

// UpsertRecipient merges one recipient keyed on email.
func (r *Repository) UpsertRecipient(ctx context.Context, recipient models.NotificationRecipient) error {
	now := time.Now().UTC()
	row := recipientModel{
		Email:            recipient.Email,
		GroupName:        recipient.GroupName,
		NotificationType: recipient.NotificationType,
		IsActive:         recipient.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"group_name", "notification_type", "is_active", "updated_at",
		}),
	}).Create(&row).Error
}
