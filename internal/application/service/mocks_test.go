package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/notification"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/internal/signature"
	"github.com/garyjia/purchase-request/internal/submission"
	"github.com/garyjia/purchase-request/internal/workbook"
)

type mockUserRepo struct {
	users  map[int64]*models.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[int64]*models.User{}}
}

func (m *mockUserRepo) Create(tx *sql.Tx, user *models.User) error {
	m.nextID++
	user.ID = m.nextID
	user.Email = repository.NormalizeEmail(user.Email)
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(id int64) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == repository.NormalizeEmail(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) Update(tx *sql.Tx, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

type mockSessionRepo struct {
	sessions map[string]*models.Session
	ttl      time.Duration
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: map[string]*models.Session{}}
}

func (m *mockSessionRepo) Create(userID int64, ttl time.Duration) (*models.Session, error) {
	m.ttl = ttl
	s := &models.Session{Token: "token-" + time.Now().Format("150405.000000000"), UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	m.sessions[s.Token] = s
	return s, nil
}

func (m *mockSessionRepo) Get(token string) (*models.Session, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (m *mockSessionRepo) Delete(token string) error {
	delete(m.sessions, token)
	return nil
}

// mockNormalizer converts by prefixing and records Normalize calls
type mockNormalizer struct {
	convertErr error
	normalized []string
}

func (m *mockNormalizer) ConvertBytes(data []byte, ext string) ([]byte, error) {
	if m.convertErr != nil {
		return nil, m.convertErr
	}
	return append([]byte("png:"+ext+":"), data...), nil
}

func (m *mockNormalizer) Normalize(folder string, raw []byte, contentType string) (*signature.Asset, error) {
	m.normalized = append(m.normalized, folder)
	path := filepath.Join(folder, signature.ProcessedName)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return nil, err
	}
	return &signature.Asset{Folder: folder, ProcessedPath: path}, nil
}

type mockParser struct {
	result *submission.Result
	err    error
	folder string
}

func (m *mockParser) Parse(fields submission.Fields, sessionFolder string) (*submission.Result, error) {
	m.folder = sessionFolder
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockFiller struct {
	filename string
	err      error
	user     models.UserInfo
	calls    int
}

func (m *mockFiller) Fill(user models.UserInfo, records []models.PurchaseFormRecord, folder string) (*workbook.Result, error) {
	m.calls++
	m.user = user
	if m.err != nil {
		return nil, m.err
	}
	path := filepath.Join(folder, m.filename)
	if err := os.WriteFile(path, []byte("xlsx"), 0644); err != nil {
		return nil, err
	}
	return &workbook.Result{Filename: m.filename, Path: path, FormsProcessed: len(records)}, nil
}

type mockDrive struct {
	mu          sync.Mutex
	createErr   error
	uploadErr   error
	uploaded    []string
	downloadErr error
}

func (m *mockDrive) CreateSessionFolderStructure(ctx context.Context, sessionPath, userName string) (string, string, error) {
	if m.createErr != nil {
		return "", "", m.createErr
	}
	return "https://drive.google.com/drive/folders/drive-1", "drive-1", nil
}

func (m *mockDrive) UploadSessionFolder(ctx context.Context, sessionPath, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, folderID)
	return m.uploadErr
}

func (m *mockDrive) Download(ctx context.Context, folderID, filename string) ([]byte, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	return []byte(folderID + "/" + filename), nil
}

type mockSheets struct {
	err      error
	driveURL string
	calls    int
}

func (m *mockSheets) LogPurchaseRequest(ctx context.Context, user models.UserInfo, records []models.PurchaseFormRecord, driveURL string) error {
	m.calls++
	m.driveURL = driveURL
	return m.err
}

type mockArchive struct {
	err   error
	calls int
}

func (m *mockArchive) UploadSessionFolder(ctx context.Context, sessionPath string) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}

type mockNotifier struct {
	sent []notification.Submission
	err  error
}

func (m *mockNotifier) NotifySubmission(ctx context.Context, s notification.Submission) error {
	m.sent = append(m.sent, s)
	return m.err
}

var errBoom = errors.New("boom")
