package modules

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/erpbridge/platform/pkg/filedrop"
	"github.com/erpbridge/platform/pkg/resilience"
	"github.com/erpbridge/platform/pkg/transform"
)

const rateStatusProcessed = "PROCESSED"

// ExchangeRate runs in two phases. First it pulls rate CSV drops from SFTP
// into staging; then it delivers the staged NEW rates to Coupa over the
// transport the configuration selects (CSV upload, API, or both) and marks
// them PROCESSED. Either phase can contribute per-record errors.
func (s *Set) ExchangeRate(ctx context.Context, cfg models.IntegrationConfiguration) (models.ModuleResult, error) {
	var result models.ModuleResult

	if err := s.ingestRates(ctx, cfg, &result); err != nil {
		return result, err
	}

	rates, err := s.rates.FindByStatus(ctx, "NEW")
	if err != nil {
		return result, fmt.Errorf("failed to load staged rates: %w", err)
	}
	if len(rates) == 0 {
		logger.Log.Info("No exchange rates to deliver")
		return result, nil
	}

	mode := cfg.IntegrationMode
	if mode == "" {
		mode = models.ModeAPI
	}

	delivered := make(map[uint]bool, len(rates))
	if mode == models.ModeCSV || mode == models.ModeBoth {
		if err := s.deliverRatesCSV(cfg, rates, delivered, &result); err != nil {
			return result, err
		}
	}
	if mode == models.ModeAPI || mode == models.ModeBoth {
		s.deliverRatesAPI(ctx, cfg, rates, delivered, &result)
	}

	for _, rate := range rates {
		if !delivered[rate.ID] {
			continue
		}
		if err := s.rates.UpdateStatus(ctx, rate.ID, rateStatusProcessed); err != nil {
			logger.WithFields(map[string]interface{}{
				"rate_id": rate.ID,
				"error":   err.Error(),
			}).Error("Failed to mark rate processed")
		}
	}
	return result, nil
}

// ingestRates stages any rate CSV files waiting in the drop folder. No files
// is the common case and not an error.
func (s *Set) ingestRates(ctx context.Context, cfg models.IntegrationConfiguration, result *models.ModuleResult) error {
	folder := configString(cfg, "sftp_folder", s.cfg.SFTPIncomingPath)
	client, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	files, err := client.List(folder, ".csv")
	if err != nil {
		return fmt.Errorf("failed to list drop folder: %w", err)
	}

	for _, name := range files {
		remote := path.Join(folder, name)
		data, err := client.Download(remote)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, fileError(name, categoryDownload, err.Error()))
			continue
		}
		rows, rowErrs, err := transform.Parse(data)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, fileError(name, categoryCSVParse, err.Error()))
			continue
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

		staged := make([]models.ExchangeRate, 0, len(rows))
		for _, row := range rows {
			rate, err := rateFromRow(row)
			if err != nil {
				result.ErrorCount++
				result.Errors = append(result.Errors, rowError(name, categoryCSVParse, err.Error(), row))
				continue
			}
			staged = append(staged, rate)
		}
		if len(staged) > 0 {
			if err := s.rates.BulkUpsert(ctx, staged); err != nil {
				result.ErrorCount += len(staged)
				result.Errors = append(result.Errors, fileError(name, categoryDatabase, err.Error()))
				continue
			}
			result.SuccessCount += len(staged)
			dst := s.archiveDest(cfg, folder, name)
			if err := client.Move(remote, dst); err != nil {
				result.ErrorCount++
				result.Errors = append(result.Errors, fileError(name, categoryArchive, err.Error()))
			}
		}
	}
	return nil
}

var rateCSVHeader = []string{"from_currency", "to_currency", "rate", "rate_date"}

// deliverRatesCSV uploads all pending rates as one CSV file. The whole file
// either lands or it does not, so a failure here is a system error.
func (s *Set) deliverRatesCSV(cfg models.IntegrationConfiguration, rates []models.ExchangeRate, delivered map[uint]bool, result *models.ModuleResult) error {
	rows := make([][]string, 0, len(rates))
	for _, rate := range rates {
		rows = append(rows, []string{
			rate.FromCurrency,
			rate.ToCurrency,
			strconv.FormatFloat(rate.RateValue, 'f', -1, 64),
			rate.RateDate.Format("2006-01-02"),
		})
	}
	data, err := transform.Build(rateCSVHeader, rows)
	if err != nil {
		return fmt.Errorf("failed to build rate csv: %w", err)
	}

	uploadDir := configString(cfg, "upload_path", "/outgoing")
	template := configString(cfg, "file_name_template", "rates_{datetime}.csv")
	name := filedrop.ExpandName(template, ModuleExchangeRate, s.now())

	client, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	if err := client.Upload(path.Join(uploadDir, name), data); err != nil {
		return fmt.Errorf("failed to upload rate csv: %w", err)
	}
	for _, rate := range rates {
		delivered[rate.ID] = true
	}
	result.SuccessCount += len(rates)
	result.TotalRecords += len(rates)
	logger.WithFields(map[string]interface{}{
		"file":  name,
		"rates": len(rates),
	}).Info("Exchange rate csv uploaded")
	return nil
}

// deliverRatesAPI posts the rates in chunks; a failed chunk only fails its
// own records.
func (s *Set) deliverRatesAPI(ctx context.Context, cfg models.IntegrationConfiguration, rates []models.ExchangeRate, delivered map[uint]bool, result *models.ModuleResult) {
	endpoint := cfg.CoupaEndpoint
	if endpoint == "" {
		endpoint = "/api/exchange_rates"
	}
	batchSize := configInt(cfg, "batch_size", 100)
	alreadyCounted := cfg.IntegrationMode == models.ModeBoth

	report := resilience.ProcessInBatches(ctx, rates, batchSize, func(ctx context.Context, batch []models.ExchangeRate, _ int) error {
		payload := make([]map[string]interface{}, 0, len(batch))
		for _, rate := range batch {
			payload = append(payload, map[string]interface{}{
				"from-currency": rate.FromCurrency,
				"to-currency":   rate.ToCurrency,
				"rate":          rate.RateValue,
				"rate-date":     rate.RateDate.Format("2006-01-02"),
			})
		}
		return s.coupa.Post(ctx, endpoint, payload, nil)
	})

	failedIndex := make(map[int]error)
	for _, failure := range report.Failures {
		for i := failure.StartIndex; i < failure.StartIndex+failure.Size; i++ {
			failedIndex[i] = failure.Err
		}
	}
	for i, rate := range rates {
		if err, ok := failedIndex[i]; ok {
			result.ErrorCount++
			result.Errors = append(result.Errors, models.ErrorDetail{
				FieldName:    categoryCoupa,
				ErrorMessage: err.Error(),
				RawPayload: map[string]interface{}{
					"from_currency": rate.FromCurrency,
					"to_currency":   rate.ToCurrency,
					"rate_date":     rate.RateDate.Format("2006-01-02"),
				},
			})
			continue
		}
		delivered[rate.ID] = true
		if !alreadyCounted {
			result.SuccessCount++
		}
	}
	if !alreadyCounted {
		result.TotalRecords += len(rates)
	}
}

func rateFromRow(row transform.Row) (models.ExchangeRate, error) {
	f := row.Fields
	if f["from_currency"] == "" || f["to_currency"] == "" {
		return models.ExchangeRate{}, fmt.Errorf("from_currency and to_currency are required")
	}
	value, err := transform.ParseDecimal(f["rate"])
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("rate: %w", err)
	}
	if value == nil {
		return models.ExchangeRate{}, fmt.Errorf("rate is required")
	}
	date, err := transform.ParseSAPDate(f["rate_date"])
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("rate_date: %w", err)
	}
	if date == nil {
		return models.ExchangeRate{}, fmt.Errorf("rate_date is required")
	}
	return models.ExchangeRate{
		FromCurrency: f["from_currency"],
		ToCurrency:   f["to_currency"],
		RateValue:    *value,
		RateDate:     *date,
	}, nil
}
