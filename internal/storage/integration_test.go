package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/garyjia/purchase-request/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A session folder is created, filled with uploads, listed for archival and removed.
func TestIntegration_SessionFolderLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	logger, _ := zap.NewDevelopment()

	folderMgr := storage.NewFolderManager(tempDir, logger)
	fileStorage := storage.NewLocalFileStorage(tempDir, logger)

	folderPath, err := folderMgr.CreateSessionFolder("Jane Doe")
	require.NoError(t, err)
	assert.True(t, folderMgr.FolderExists(folderPath))

	vendor := storage.SanitizeFileName("Digi/key")
	invoicePath := filepath.Join(folderPath, "1_"+vendor+".pdf")
	proofPath := filepath.Join(folderPath, "1_proof_of_payment.png")
	require.NoError(t, fileStorage.SaveFile(invoicePath, []byte("%PDF")))
	require.NoError(t, fileStorage.SaveFile(proofPath, []byte("png")))

	files, err := folderMgr.ListFiles(folderPath)
	require.NoError(t, err)
	assert.Equal(t, []string{invoicePath, proofPath}, files)

	require.NoError(t, folderMgr.DeleteSessionFolder(folderPath))
	assert.False(t, folderMgr.FolderExists(folderPath))
	assert.NoError(t, folderMgr.DeleteSessionFolder(folderPath))
}
