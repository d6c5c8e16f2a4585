package staging

import (
	"time"

	"gorm.io/gorm"
)

// HopSpec describes one pipeline hop as a pure filter over progress columns:
// the prerequisite finished-flag must be true, the hop's required identifier
// must be present, and the hop's own finished-flag must still be false.
// Hop-eligibility and finish-marking are implemented once against this shape;
// the concrete record types only supply column names.
type HopSpec struct {
	Name          string
	PrereqFlag    string
	RequiredField string
	AbsentField   string
	FinishedFlag  string
}

// Contract header hops. The SAP hops are gated by the caller-computed ready
// flags from ingestion; the Coupa hop additionally requires the SAP-assigned
// OA number written by the previous hop.
var (
	HeaderHopSAPCreate = HopSpec{
		Name:         "sap-create",
		PrereqFlag:   "ready_to_create_sap_oa",
		AbsentField:  "sap_oa_number",
		FinishedFlag: "finished_update_sap_oa",
	}
	HeaderHopSAPUpdate = HopSpec{
		Name:         "sap-update",
		PrereqFlag:   "ready_to_update_sap_oa",
		FinishedFlag: "finished_update_sap_oa",
	}
	HeaderHopCoupa = HopSpec{
		Name:          "coupa",
		PrereqFlag:    "finished_update_sap_oa",
		RequiredField: "sap_oa_number",
		FinishedFlag:  "finished_update_coupa_oa",
	}
)

// Supplier item hops.
var (
	ItemHopSAP = HopSpec{
		Name:         "sap",
		PrereqFlag:   "ready_to_create_sap_oa",
		FinishedFlag: "finished_update_sap_oa",
	}
	ItemHopCoupa = HopSpec{
		Name:          "coupa",
		PrereqFlag:    "finished_update_sap_oa",
		RequiredField: "sap_oa_line",
		FinishedFlag:  "finished_update_coupa_oa",
	}
)

func applyHop(tx *gorm.DB, hop HopSpec) *gorm.DB {
	if hop.PrereqFlag != "" {
		tx = tx.Where(hop.PrereqFlag+" = ?", true)
	}
	if hop.RequiredField != "" {
		tx = tx.Where(hop.RequiredField + " IS NOT NULL AND " + hop.RequiredField + " <> ''")
	}
	if hop.AbsentField != "" {
		tx = tx.Where("(" + hop.AbsentField + " IS NULL OR " + hop.AbsentField + " = '')")
	}
	if hop.FinishedFlag != "" {
		tx = tx.Where(hop.FinishedFlag+" = ?", false)
	}
	return tx
}

// finishAssignments builds the idempotent finish-marker update: the flag goes
// true and stays true, only updated_at moves on repeat calls.
func finishAssignments(hop HopSpec) map[string]interface{} {
	return map[string]interface{}{
		hop.FinishedFlag: true,
		"updated_at":     time.Now().UTC(),
	}
}
