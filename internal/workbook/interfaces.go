package workbook

import (
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/signature"
)

// Filler writes a submission into a workbook generated from a template
type Filler interface {
	// Fill writes the workbook into folder and returns what was produced
	Fill(user models.UserInfo, records []models.PurchaseFormRecord, folder string) (*Result, error)
}

// SignatureInserter embeds the session signature into a sheet
type SignatureInserter interface {
	InsertAtCell(embedder signature.ImageEmbedder, folder, cell string, width, height int) bool
}

// Result describes a generated workbook
type Result struct {
	Filename          string   `json:"filename"`
	Path              string   `json:"filepath"`
	FormsProcessed    int      `json:"forms_processed"`
	TabsUsed          []string `json:"tabs_used,omitempty"`
	SignatureInserted bool     `json:"signature_inserted"`
}
