package staging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erpbridge/platform/pkg/common/models"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type fakeHeaderStore struct {
	byID     map[string]models.ContractHeader
	ready    map[string][]models.ContractHeader // hop name -> records
	oaSet    map[string]string
	finished []string
}

func (f *fakeHeaderStore) Get(_ context.Context, contractID string) (models.ContractHeader, error) {
	h, ok := f.byID[contractID]
	if !ok {
		return models.ContractHeader{}, gorm.ErrRecordNotFound
	}
	return h, nil
}

func (f *fakeHeaderStore) FindReadyForHop(_ context.Context, hop HopSpec) ([]models.ContractHeader, error) {
	return f.ready[hop.Name], nil
}

func (f *fakeHeaderStore) SetSAPOANumber(_ context.Context, contractID, sapOANumber string) error {
	if f.oaSet == nil {
		f.oaSet = make(map[string]string)
	}
	f.oaSet[contractID] = sapOANumber
	return nil
}

func (f *fakeHeaderStore) MarkFinished(_ context.Context, hop HopSpec, contractID string) error {
	f.finished = append(f.finished, hop.FinishedFlag+":"+contractID)
	return nil
}

type fakeItemStore struct {
	ready    []models.SupplierItem
	refs     map[string]string
	finished []string
}

func (f *fakeItemStore) FindReadyForHop(context.Context, HopSpec) ([]models.SupplierItem, error) {
	return f.ready, nil
}

func (f *fakeItemStore) SetSAPReference(_ context.Context, contractID, csin, sapOANumber, sapOALine string) error {
	if f.refs == nil {
		f.refs = make(map[string]string)
	}
	f.refs[contractID+"/"+csin] = sapOANumber + "/" + sapOALine
	return nil
}

func (f *fakeItemStore) MarkFinished(_ context.Context, hop HopSpec, contractID, csin string) error {
	f.finished = append(f.finished, hop.FinishedFlag+":"+contractID+"/"+csin)
	return nil
}

func newTestRouter(headers *fakeHeaderStore, items *fakeItemStore) *mux.Router {
	r := mux.NewRouter()
	NewHandler(headers, items).Register(r)
	return r
}

func TestContractQueueSelectsHop(t *testing.T) {
	headers := &fakeHeaderStore{ready: map[string][]models.ContractHeader{
		"sap-create": {{ContractID: "1001"}},
		"sap-update": {{ContractID: "2001"}, {ContractID: "2002"}},
	}}
	router := newTestRouter(headers, &fakeItemStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contracts/sap-queue?op=update", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Items []models.ContractHeader `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].ContractID != "2001" {
		t.Fatalf("expected the update queue, got %+v", body.Items)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contracts/sap-queue?op=downstream", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown op must be rejected, got %d", rec.Code)
	}
}

func TestContractWritebackFinishesSAPHop(t *testing.T) {
	headers := &fakeHeaderStore{byID: map[string]models.ContractHeader{
		"1001": {ContractID: "1001", ContractNumber: "CW-1001"},
	}}
	router := newTestRouter(headers, &fakeItemStore{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/contracts/1001/sap-oa",
		strings.NewReader(`{"sap_oa_number":"4600001234"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d (%s)", rec.Code, rec.Body.String())
	}
	if headers.oaSet["1001"] != "4600001234" {
		t.Fatalf("oa number not recorded: %v", headers.oaSet)
	}
	if len(headers.finished) != 1 || headers.finished[0] != "finished_update_sap_oa:1001" {
		t.Fatalf("sap hop must be finished, got %v", headers.finished)
	}
}

func TestContractWritebackUnknownContract(t *testing.T) {
	router := newTestRouter(&fakeHeaderStore{}, &fakeItemStore{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/contracts/9999/sap-oa",
		strings.NewReader(`{"sap_oa_number":"4600001234"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown contract must 404, got %d", rec.Code)
	}
}

func TestContractWritebackRequiresOANumber(t *testing.T) {
	headers := &fakeHeaderStore{byID: map[string]models.ContractHeader{
		"1001": {ContractID: "1001"},
	}}
	router := newTestRouter(headers, &fakeItemStore{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/contracts/1001/sap-oa", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing oa number must be rejected, got %d", rec.Code)
	}
	if len(headers.finished) != 0 {
		t.Fatalf("nothing must be finished, got %v", headers.finished)
	}
}

func TestItemWritebackRecordsReferenceAndFinishes(t *testing.T) {
	items := &fakeItemStore{}
	router := newTestRouter(&fakeHeaderStore{}, items)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/items/1001/CSIN-7/sap-oa",
		strings.NewReader(`{"sap_oa_number":"4600001234","sap_oa_line":"00010"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d (%s)", rec.Code, rec.Body.String())
	}
	if items.refs["1001/CSIN-7"] != "4600001234/00010" {
		t.Fatalf("reference not recorded: %v", items.refs)
	}
	if len(items.finished) != 1 || items.finished[0] != "finished_update_sap_oa:1001/CSIN-7" {
		t.Fatalf("sap hop must be finished, got %v", items.finished)
	}
}

func TestItemQueueListsWaitingItems(t *testing.T) {
	items := &fakeItemStore{ready: []models.SupplierItem{
		{ContractID: "1001", CSIN: "CSIN-7"},
	}}
	router := newTestRouter(&fakeHeaderStore{}, items)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/sap-queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Items []models.SupplierItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].CSIN != "CSIN-7" {
		t.Fatalf("unexpected queue: %+v", body.Items)
	}
}
