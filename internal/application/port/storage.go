package port

import (
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/signature"
	"github.com/garyjia/purchase-request/internal/submission"
	"github.com/garyjia/purchase-request/internal/workbook"
)

// FolderManager defines session folder operations
type FolderManager interface {
	CreateSessionFolder(userName string) (string, error)
	DeleteSessionFolder(folderPath string) error
}

// SignatureNormalizer prepares signatures for documents
type SignatureNormalizer interface {
	ConvertBytes(data []byte, ext string) ([]byte, error)
	Normalize(folder string, raw []byte, contentType string) (*signature.Asset, error)
}

// SubmissionParser turns posted form fields into purchase records
type SubmissionParser interface {
	Parse(fields submission.Fields, sessionFolder string) (*submission.Result, error)
}

// DocumentFiller generates one workbook in a session folder
type DocumentFiller interface {
	Fill(user models.UserInfo, records []models.PurchaseFormRecord, folder string) (*workbook.Result, error)
}
