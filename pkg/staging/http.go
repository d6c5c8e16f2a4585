package staging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// headerStore and itemStore are the repository surfaces the handler needs;
// *ContractHeaderRepository and *SupplierItemRepository satisfy them.
type headerStore interface {
	Get(ctx context.Context, contractID string) (models.ContractHeader, error)
	FindReadyForHop(ctx context.Context, hop HopSpec) ([]models.ContractHeader, error)
	SetSAPOANumber(ctx context.Context, contractID, sapOANumber string) error
	MarkFinished(ctx context.Context, hop HopSpec, contractID string) error
}

type itemStore interface {
	FindReadyForHop(ctx context.Context, hop HopSpec) ([]models.SupplierItem, error)
	SetSAPReference(ctx context.Context, contractID, csin, sapOANumber, sapOALine string) error
	MarkFinished(ctx context.Context, hop HopSpec, contractID, csin string) error
}

// Handler is the write-back surface for the external SAP worker. The worker
// polls the queues for records waiting on an outline agreement and reports
// the assigned numbers back, which finishes the SAP hop and makes the record
// eligible for the Coupa push.
type Handler struct {
	headers headerStore
	items   itemStore
}

func NewHandler(headers headerStore, items itemStore) *Handler {
	return &Handler{headers: headers, items: items}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/contracts/sap-queue", h.handleContractQueue).Methods(http.MethodGet)
	r.HandleFunc("/contracts/{id}/sap-oa", h.handleContractWriteback).Methods(http.MethodPut)
	r.HandleFunc("/items/sap-queue", h.handleItemQueue).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}/{csin}/sap-oa", h.handleItemWriteback).Methods(http.MethodPut)
}

func (h *Handler) handleContractQueue(w http.ResponseWriter, r *http.Request) {
	hop := HeaderHopSAPCreate
	switch r.URL.Query().Get("op") {
	case "", "create":
	case "update":
		hop = HeaderHopSAPUpdate
	default:
		http.Error(w, "op must be create or update", http.StatusBadRequest)
		return
	}
	headers, err := h.headers.FindReadyForHop(r.Context(), hop)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list contract sap queue")
		http.Error(w, "failed to list contract sap queue", http.StatusInternalServerError)
		return
	}
	writeQueueJSON(w, http.StatusOK, map[string]interface{}{"items": headers})
}

func (h *Handler) handleContractWriteback(w http.ResponseWriter, r *http.Request) {
	contractID := mux.Vars(r)["id"]
	var body struct {
		SAPOANumber string `json:"sap_oa_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SAPOANumber == "" {
		http.Error(w, "sap_oa_number is required", http.StatusBadRequest)
		return
	}
	if _, err := h.headers.Get(r.Context(), contractID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "contract not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load contract for sap write-back")
		http.Error(w, "failed to load contract", http.StatusInternalServerError)
		return
	}
	if err := h.headers.SetSAPOANumber(r.Context(), contractID, body.SAPOANumber); err != nil {
		logger.Log.WithError(err).Error("failed to record sap oa number")
		http.Error(w, "failed to record sap oa number", http.StatusInternalServerError)
		return
	}
	// both header SAP hops share the finished flag
	if err := h.headers.MarkFinished(r.Context(), HeaderHopSAPCreate, contractID); err != nil {
		logger.Log.WithError(err).Error("failed to finish sap hop")
		http.Error(w, "failed to finish sap hop", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleItemQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.FindReadyForHop(r.Context(), ItemHopSAP)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list item sap queue")
		http.Error(w, "failed to list item sap queue", http.StatusInternalServerError)
		return
	}
	writeQueueJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleItemWriteback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	contractID, csin := vars["id"], vars["csin"]
	var body struct {
		SAPOANumber string `json:"sap_oa_number"`
		SAPOALine   string `json:"sap_oa_line"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SAPOANumber == "" || body.SAPOALine == "" {
		http.Error(w, "sap_oa_number and sap_oa_line are required", http.StatusBadRequest)
		return
	}
	if err := h.items.SetSAPReference(r.Context(), contractID, csin, body.SAPOANumber, body.SAPOALine); err != nil {
		logger.Log.WithError(err).Error("failed to record sap reference")
		http.Error(w, "failed to record sap reference", http.StatusInternalServerError)
		return
	}
	if err := h.items.MarkFinished(r.Context(), ItemHopSAP, contractID, csin); err != nil {
		logger.Log.WithError(err).Error("failed to finish sap hop")
		http.Error(w, "failed to finish sap hop", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeQueueJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to write response")
	}
}
