package integration

import (
	"context"
	"fmt"
	"os"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Modules []seedEntry `yaml:"modules"`
}

type seedEntry struct {
	ModuleName               string                 `yaml:"module_name"`
	ExecutionInterval        string                 `yaml:"execution_interval"`
	IntegrationMode          string                 `yaml:"integration_mode"`
	IsActive                 *bool                  `yaml:"is_active"`
	SAPEndpoint              string                 `yaml:"sap_endpoint"`
	CoupaEndpoint            string                 `yaml:"coupa_endpoint"`
	RetryMode                string                 `yaml:"retry_mode"`
	Config                   map[string]interface{} `yaml:"config"`
	EmailNotificationEnabled bool                   `yaml:"email_notification_enabled"`
	EmailOnSuccess           bool                   `yaml:"email_on_success"`
	EmailOnFailure           *bool                  `yaml:"email_on_failure"`
	EmailOnPartial           *bool                  `yaml:"email_on_partial"`
}

// SeedFromFile loads module configurations from a YAML file and inserts the
// ones not already present. Existing rows are never overwritten: the file is
// a bootstrap, the admin surface owns edits. A missing file is not an error.
func SeedFromFile(ctx context.Context, repo *Repository, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.WithField("path", path).Warn("Seed configuration file not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for _, entry := range file.Modules {
		if entry.ModuleName == "" || entry.ExecutionInterval == "" {
			return fmt.Errorf("seed file %s: every module needs module_name and execution_interval", path)
		}
		cfg := models.IntegrationConfiguration{
			ModuleName:               entry.ModuleName,
			ExecutionInterval:        entry.ExecutionInterval,
			IntegrationMode:          models.IntegrationMode(defaultString(entry.IntegrationMode, string(models.ModeAPI))),
			IsActive:                 defaultBool(entry.IsActive, true),
			SAPEndpoint:              entry.SAPEndpoint,
			CoupaEndpoint:            entry.CoupaEndpoint,
			RetryMode:                models.RetryMode(defaultString(entry.RetryMode, string(models.RetryManual))),
			ConfigJSON:               entry.Config,
			EmailNotificationEnabled: entry.EmailNotificationEnabled,
			EmailOnSuccess:           entry.EmailOnSuccess,
			EmailOnFailure:           defaultBool(entry.EmailOnFailure, true),
			EmailOnPartial:           defaultBool(entry.EmailOnPartial, true),
		}
		if err := repo.SeedConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to seed configuration for %s: %w", entry.ModuleName, err)
		}
	}
	logger.WithFields(map[string]interface{}{
		"path":    path,
		"modules": len(file.Modules),
	}).Info("Seed configurations applied")
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultBool(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
