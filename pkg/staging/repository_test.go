package staging

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erpbridge/platform/pkg/common/logger"
	"github.com/erpbridge/platform/pkg/common/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Init()
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}
	return db, mock
}

func TestExistsByContractNumber(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "contract_header_staging" WHERE contract_number =`).
		WithArgs("CW-1001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsByContractNumber(context.Background(), "CW-1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected contract number to exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExistsByContractNumberEmptyKeySkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	exists, err := repo.ExistsByContractNumber(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("empty key must report not-exists")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected for empty key: %v", err)
	}
}

func TestFindReadyForHopFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "contract_header_staging" WHERE finished_update_sap_oa = \$1 AND sap_oa_number IS NOT NULL AND sap_oa_number <> '' AND finished_update_coupa_oa = \$2 ORDER BY contract_id`).
		WithArgs(true, false).
		WillReturnRows(sqlmock.NewRows([]string{"contract_id", "contract_number", "sap_oa_number", "finished_update_sap_oa", "finished_update_coupa_oa"}).
			AddRow("1001", "CW-1001", "4600001234", true, false).
			AddRow("1002", "CW-1002", "4600001235", true, false))

	headers, err := repo.FindReadyForHop(context.Background(), HeaderHopCoupa)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if headers[0].ContractID != "1001" || headers[0].SAPOANumber == nil || *headers[0].SAPOANumber != "4600001234" {
		t.Fatalf("unexpected first header: %+v", headers[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkFinishedSetsFlagAndTimestamp(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	mock.ExpectExec(`UPDATE "contract_header_staging" SET "finished_update_coupa_oa"=\$1,"updated_at"=\$2 WHERE contract_id =`).
		WithArgs(true, sqlmock.AnyArg(), "1001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkFinished(context.Background(), HeaderHopCoupa, "1001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// The merge must end at updated_at. A finished flag slipping into the
// DO UPDATE set would resurrect finished hops on re-ingest.
const headerUpsertPattern = `INSERT INTO "contract_header_staging" .* ON CONFLICT \("contract_id"\) DO UPDATE SET .*"updated_at"="excluded"\."updated_at"$`

func TestUpsertMergeNeverResetsFinishedFlags(t *testing.T) {
	for _, cols := range [][]string{headerUpsertColumns, itemUpsertColumns} {
		for _, col := range cols {
			if strings.HasPrefix(col, "finished_") {
				t.Fatalf("merge set must not touch %s", col)
			}
		}
	}
}

func TestClassifyAndUpsertFirstSeen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "contract_header_staging" WHERE contract_number =`).
		WithArgs("CW-2001", 1).
		WillReturnRows(sqlmock.NewRows([]string{"contract_id"}))
	mock.ExpectExec(headerUpsertPattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	header, err := repo.ClassifyAndUpsert(context.Background(), testHeader("2001", "CW-2001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !header.ReadyToCreateSAPOA || header.ReadyToUpdateSAPOA {
		t.Fatalf("first-seen record must be ready_to_create only, got create=%v update=%v",
			header.ReadyToCreateSAPOA, header.ReadyToUpdateSAPOA)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClassifyAndUpsertSeenAgain(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewContractHeaderRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "contract_header_staging" WHERE contract_number =`).
		WithArgs("CW-2001", 1).
		WillReturnRows(sqlmock.NewRows([]string{"contract_id", "ready_to_create_sap_oa"}).
			AddRow("2001", true))
	mock.ExpectExec(headerUpsertPattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	header, err := repo.ClassifyAndUpsert(context.Background(), testHeader("2001", "CW-2001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !header.ReadyToUpdateSAPOA {
		t.Fatal("previously seen record must be ready_to_update")
	}
	if !header.ReadyToCreateSAPOA {
		t.Fatal("ready_to_create must keep its stored value")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSupplierItemCompositeKeyLookup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSupplierItemRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "supplier_item_staging" WHERE contract_number = .* AND material = .* AND unit = .* AND csin =`).
		WithArgs("CW-1001", "MAT-9", "EA", "CSIN-7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.ExistsByCompositeKey(context.Background(), "CW-1001", "MAT-9", "EA", "CSIN-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("expected composite key to be absent")
	}

	// a blank component short-circuits without touching the database
	exists, err = repo.ExistsByCompositeKey(context.Background(), "CW-1001", "", "EA", "CSIN-7")
	if err != nil || exists {
		t.Fatalf("blank component must report not-exists without error, got exists=%v err=%v", exists, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPropagateContractLinkUpdatesBothTables(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSupplierItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "supplier_item_staging" SET "ready_to_create_sap_oa"=\$1,"updated_at"=\$2 WHERE contract_id = .* AND csin =`).
		WithArgs(true, sqlmock.AnyArg(), "1001", "CSIN-7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "contract_header_staging" SET "ready_to_create_sap_oa"=\$1,"updated_at"=\$2 WHERE contract_id =`).
		WithArgs(true, sqlmock.AnyArg(), "1001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.PropagateContractLink(context.Background(), "1001", "CSIN-7", "1001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func testHeader(contractID, contractNumber string) models.ContractHeader {
	return models.ContractHeader{
		ContractID:     contractID,
		ContractNumber: contractNumber,
		Status:         "NEW",
	}
}
