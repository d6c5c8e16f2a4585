package integration

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// JobInfo describes one scheduled module as the admin surface reports it.
type JobInfo struct {
	ModuleName string    `json:"module_name"`
	Interval   string    `json:"execution_interval"`
	NextRun    time.Time `json:"next_run"`
	Running    bool      `json:"running"`
}

// Scheduler is the surface the handler needs from the cron layer. Apply
// reconciles a job with its configuration, Trigger reserves the module's run
// slot and starts the run asynchronously.
type Scheduler interface {
	Apply(cfg models.IntegrationConfiguration) error
	Trigger(moduleName string) error
	Jobs() []JobInfo
}

type Handler struct {
	repo      *Repository
	scheduler Scheduler
}

func NewHandler(repo *Repository, scheduler Scheduler) *Handler {
	return &Handler{repo: repo, scheduler: scheduler}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/configurations", h.handleListConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/configurations/{module}", h.handleGetConfiguration).Methods(http.MethodGet)
	r.HandleFunc("/configurations/{module}", h.handleUpsertConfiguration).Methods(http.MethodPut)
	r.HandleFunc("/configurations/{module}/active", h.handleSetActive).Methods(http.MethodPatch)
	r.HandleFunc("/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/errors", h.handleListRunErrors).Methods(http.MethodGet)
	r.HandleFunc("/errors/{id}/retry-status", h.handleUpdateRetryStatus).Methods(http.MethodPatch)
	r.HandleFunc("/modules/{module}/trigger", h.handleTrigger).Methods(http.MethodPost)
	r.HandleFunc("/scheduler/jobs", h.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/recipients", h.handleListRecipients).Methods(http.MethodGet)
	r.HandleFunc("/recipients", h.handleUpsertRecipient).Methods(http.MethodPost)
}

func (h *Handler) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListConfigs(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list configurations")
		http.Error(w, "failed to list configurations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": configs})
}

func (h *Handler) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	moduleName := mux.Vars(r)["module"]
	cfg, err := h.repo.GetConfig(r.Context(), moduleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "configuration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get configuration")
		http.Error(w, "failed to get configuration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configuration": cfg})
}

func (h *Handler) handleUpsertConfiguration(w http.ResponseWriter, r *http.Request) {
	moduleName := mux.Vars(r)["module"]
	var cfg models.IntegrationConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	cfg.ModuleName = moduleName
	if cfg.ExecutionInterval == "" {
		http.Error(w, "execution_interval is required", http.StatusBadRequest)
		return
	}

	saved, err := h.repo.UpsertConfig(r.Context(), cfg)
	if err != nil {
		logger.Log.WithError(err).Error("failed to upsert configuration")
		http.Error(w, "failed to save configuration", http.StatusInternalServerError)
		return
	}
	if err := h.scheduler.Apply(saved); err != nil {
		if errors.Is(err, ErrInvalidInterval) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		logger.Log.WithError(err).Error("failed to apply schedule")
		http.Error(w, "failed to apply schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configuration": saved})
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	moduleName := mux.Vars(r)["module"]
	var payload struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}
	if err := h.repo.SetActive(r.Context(), moduleName, *payload.IsActive); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to update active flag")
		http.Error(w, "failed to update active flag", http.StatusInternalServerError)
		return
	}
	cfg, err := h.repo.GetConfig(r.Context(), moduleName)
	if err == nil {
		if err := h.scheduler.Apply(cfg); err != nil {
			logger.Log.WithError(err).Error("failed to apply schedule after active change")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := RunFilter{
		ModuleName: r.URL.Query().Get("module"),
		Status:     models.RunStatus(r.URL.Query().Get("status")),
		Limit:      parseLimit(r, 50),
		Offset:     parseOffset(r),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from timestamp, expected RFC3339", http.StatusBadRequest)
			return
		}
		filter.From = ts
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to timestamp, expected RFC3339", http.StatusBadRequest)
			return
		}
		filter.To = ts
	}
	runs, err := h.repo.ListRuns(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.repo.GetRun(r.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get run")
		http.Error(w, "failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

func (h *Handler) handleListRunErrors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	details, err := h.repo.ListErrorsByRun(r.Context(), id)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list run errors")
		http.Error(w, "failed to list run errors", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": details})
}

var validRetryStatuses = map[models.RetryStatus]bool{
	models.RetryPending:  true,
	models.RetryRetrying: true,
	models.RetryRetried:  true,
	models.RetryIgnored:  true,
}

func (h *Handler) handleUpdateRetryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid error id", http.StatusBadRequest)
		return
	}
	var payload struct {
		RetryStatus models.RetryStatus `json:"retry_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if !validRetryStatuses[payload.RetryStatus] {
		http.Error(w, "retry_status must be one of PENDING, RETRYING, RETRIED, IGNORED", http.StatusBadRequest)
		return
	}
	if err := h.repo.UpdateRetryStatus(r.Context(), uint(id), payload.RetryStatus); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "error detail not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to update retry status")
		http.Error(w, "failed to update retry status", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrigger starts a manual run. The run happens asynchronously; the
// response only reports whether it could start.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	moduleName := mux.Vars(r)["module"]
	err := h.scheduler.Trigger(moduleName)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"module_name": moduleName,
			"status":      "TRIGGERED",
		})
	case errors.Is(err, ErrModuleNotConfigured):
		http.Error(w, "unknown module", http.StatusNotFound)
	case errors.Is(err, ErrRunInProgress):
		http.Error(w, "module run already in progress", http.StatusConflict)
	case errors.Is(err, ErrModuleInactive):
		http.Error(w, "module is inactive", http.StatusUnprocessableEntity)
	default:
		logger.Log.WithError(err).Error("failed to trigger module")
		http.Error(w, "failed to trigger module", http.StatusInternalServerError)
	}
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": h.scheduler.Jobs()})
}

func (h *Handler) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.repo.ListRecipients(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list recipients")
		http.Error(w, "failed to list recipients", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": recipients})
}

func (h *Handler) handleUpsertRecipient(w http.ResponseWriter, r *http.Request) {
	var recipient models.NotificationRecipient
	if err := json.NewDecoder(r.Body).Decode(&recipient); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if recipient.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	if recipient.NotificationType == "" {
		recipient.NotificationType = "ALL"
	}
	if err := h.repo.UpsertRecipient(r.Context(), recipient); err != nil {
		logger.Log.WithError(err).Error("failed to upsert recipient")
		http.Error(w, "failed to save recipient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"recipient": recipient})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func parseOffset(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		return v
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
