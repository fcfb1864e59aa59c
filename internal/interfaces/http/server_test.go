package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/application/service"
	"github.com/garyjia/purchase-request/internal/gdrive"
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/internal/submission"
)

type fakeUsers struct {
	user          *models.User
	token         string
	complete      bool
	loggedOut     []string
	lastUpdate    service.ProfileUpdate
	updateErr     error
	passwordError error
}

func (f *fakeUsers) Login(email, password string) (*models.User, *models.Session, error) {
	if email != f.user.Email || password != "goofy" {
		return nil, nil, service.ErrInvalidCredentials
	}
	return f.user, &models.Session{Token: f.token, UserID: f.user.ID}, nil
}

func (f *fakeUsers) Logout(token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return nil
}

func (f *fakeUsers) Authenticate(token string) (*models.User, error) {
	if token != f.token {
		return nil, service.ErrUnauthenticated
	}
	return f.user, nil
}

func (f *fakeUsers) UpdateProfile(userID int64, update service.ProfileUpdate) (*service.ProfileResult, error) {
	f.lastUpdate = update
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	updated := *f.user
	updated.Name = update.Name
	updated.Team = update.Team
	return &service.ProfileResult{
		User:             &updated,
		PasswordError:    f.passwordError,
		SignatureUpdated: update.Signature != nil,
	}, nil
}

func (f *fakeUsers) CreateOrUpdateUser(input service.UserInput) (*models.User, bool, error) {
	return f.user, false, nil
}

func (f *fakeUsers) IsProfileComplete(user *models.User) bool {
	return f.complete
}

type fakeSubmissions struct {
	result      *service.SubmissionResult
	err         error
	fields      submission.Fields
	downloadErr error
}

func (f *fakeSubmissions) Submit(ctx context.Context, user *models.User, fields submission.Fields) (*service.SubmissionResult, error) {
	f.fields = fields
	return f.result, f.err
}

func (f *fakeSubmissions) DownloadWorkbook(ctx context.Context, driveFolderID, filename string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte("xlsx-bytes"), nil
}

func newTestServer(t *testing.T) (*Server, *fakeUsers, *fakeSubmissions) {
	t.Helper()
	users := &fakeUsers{
		user:     &models.User{ID: 7, Name: "Jane Doe", Email: "jane@mcmaster.ca", SignatureData: []byte("png")},
		token:    "tok-1",
		complete: true,
	}
	submissions := &fakeSubmissions{
		result: &service.SubmissionResult{DriveFolderID: "drive-1", WorkbookFile: "purchase_request.xlsx"},
	}
	return NewServer(DefaultServerConfig(), users, submissions, nil, zap.NewNop()), users, submissions
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok-1"})
	return req
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

type fakeHealth struct{ status *port.HealthStatus }

func (f fakeHealth) Health() *port.HealthStatus { return f.status }

func TestHealthCheck_Components(t *testing.T) {
	_, users, submissions := newTestServer(t)
	unhealthy := fakeHealth{status: &port.HealthStatus{
		Overall: false,
		Components: map[string]port.ComponentHealth{
			"database": {Healthy: false, Message: "ping failed"},
		},
	}}
	s := NewServer(DefaultServerConfig(), users, submissions, unhealthy, zap.NewNop())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "ping failed", body.Components["database"].Message)
}

func TestLogin(t *testing.T) {
	t.Run("complete profile goes to dashboard", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, formRequest(http.MethodPost, "/login", url.Values{"email": {"jane@mcmaster.ca"}, "password": {"goofy"}}))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))
		assert.Contains(t, w.Header().Get("Set-Cookie"), SessionCookie+"=tok-1")
		assert.Contains(t, w.Header().Get("Set-Cookie"), "HttpOnly")
	})

	t.Run("incomplete profile goes to edit profile", func(t *testing.T) {
		s, users, _ := newTestServer(t)
		users.complete = false

		w := serve(s, formRequest(http.MethodPost, "/login", url.Values{"email": {"jane@mcmaster.ca"}, "password": {"goofy"}}))

		assert.Equal(t, "/edit-profile", w.Header().Get("Location"))
	})

	t.Run("bad credentials", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, formRequest(http.MethodPost, "/login", url.Values{"email": {"jane@mcmaster.ca"}, "password": {"wrong"}}))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login?error=invalid_credentials", w.Header().Get("Location"))
		assert.Empty(t, w.Header().Get("Set-Cookie"))
	})
}

func TestLogout(t *testing.T) {
	s, users, _ := newTestServer(t)

	w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/logout", nil)))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Equal(t, []string{"tok-1"}, users.loggedOut)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/submit-all-requests", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
	w = serve(s, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestProfile(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/api/profile", nil)))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data ProfileResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Jane Doe", body.Data.Name)
		assert.True(t, body.Data.HasSignature)
		assert.True(t, body.Data.ProfileComplete)
	})

	t.Run("update with signature file", func(t *testing.T) {
		s, users, _ := newTestServer(t)
		users.passwordError = assert.AnError

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("name", "Jane Q Doe"))
		require.NoError(t, mw.WriteField("email", "jane@mcmaster.ca"))
		require.NoError(t, mw.WriteField("team", "Solar"))
		part, err := mw.CreateFormFile("signature", "sig.png")
		require.NoError(t, err)
		_, _ = part.Write([]byte("png-bytes"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/profile", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := serve(s, withSession(req))

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, users.lastUpdate.Signature)
		assert.Equal(t, "sig.png", users.lastUpdate.Signature.Filename)
		assert.Equal(t, []byte("png-bytes"), users.lastUpdate.Signature.Data)

		var body struct {
			Data ProfileUpdateResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Jane Q Doe", body.Data.Profile.Name)
		assert.True(t, body.Data.SignatureUpdated)
		assert.NotEmpty(t, body.Data.PasswordError)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
	}{
		{"duplicate email", repository.ErrDuplicateEmail, http.StatusConflict},
		{"invalid email", service.ErrInvalidProfile, http.StatusBadRequest},
		{"storage failure", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			s, users, _ := newTestServer(t)
			users.updateErr = tt.err

			w := serve(s, withSession(formRequest(http.MethodPost, "/api/profile", url.Values{"email": {"x@y.ca"}})))

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestSubmitAllRequests(t *testing.T) {
	submit := func(s *Server) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("vendor_name_1", "Digikey")
		part, _ := mw.CreateFormFile("invoice_file_1", "invoice.pdf")
		_, _ = part.Write([]byte("%PDF"))
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/submit-all-requests", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return serve(s, withSession(req))
	}

	t.Run("success redirects with download info", func(t *testing.T) {
		s, _, submissions := newTestServer(t)

		w := submit(s)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/success?drive_folder_id=drive-1&excel_file=purchase_request.xlsx", w.Header().Get("Location"))
		assert.Equal(t, "Digikey", submissions.fields.Value("vendor_name_1"))
		require.NotNil(t, submissions.fields.File("invoice_file_1"))
		assert.Equal(t, "invoice.pdf", submissions.fields.File("invoice_file_1").Filename())
	})

	t.Run("no drive folder", func(t *testing.T) {
		s, _, submissions := newTestServer(t)
		submissions.result = &service.SubmissionResult{WorkbookFile: "purchase_request.xlsx"}

		assert.Equal(t, "/success", submit(s).Header().Get("Location"))
	})

	t.Run("no forms", func(t *testing.T) {
		s, _, submissions := newTestServer(t)
		submissions.err = service.ErrNoForms

		assert.Equal(t, "/dashboard?error=no_forms", submit(s).Header().Get("Location"))
	})

	t.Run("failure", func(t *testing.T) {
		s, _, submissions := newTestServer(t)
		submissions.err = assert.AnError

		assert.Equal(t, "/dashboard?error=submission_failed", submit(s).Header().Get("Location"))
	})

	t.Run("incomplete profile", func(t *testing.T) {
		s, users, submissions := newTestServer(t)
		users.complete = false

		assert.Equal(t, "/edit-profile?error=profile_incomplete", submit(s).Header().Get("Location"))
		assert.Nil(t, submissions.fields.Values)
	})

	t.Run("url encoded body", func(t *testing.T) {
		s, _, submissions := newTestServer(t)

		w := serve(s, withSession(formRequest(http.MethodPost, "/submit-all-requests", url.Values{"vendor_name_1": {"Adafruit"}})))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "Adafruit", submissions.fields.Value("vendor_name_1"))
	})
}

func TestDownloadExcel(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"ok", "drive_folder_id=drive-1&excel_file=purchase_request.xlsx", nil, http.StatusOK},
		{"missing folder", "excel_file=purchase_request.xlsx", nil, http.StatusBadRequest},
		{"path traversal", "drive_folder_id=d&excel_file=../secret.xlsx", nil, http.StatusBadRequest},
		{"not a workbook", "drive_folder_id=d&excel_file=invoice.pdf", nil, http.StatusBadRequest},
		{"not found", "drive_folder_id=d&excel_file=purchase_request.xlsx", gdrive.ErrFileNotFound, http.StatusNotFound},
		{"drive disabled", "drive_folder_id=d&excel_file=purchase_request.xlsx", service.ErrDriveDisabled, http.StatusServiceUnavailable},
		{"drive error", "drive_folder_id=d&excel_file=purchase_request.xlsx", assert.AnError, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, submissions := newTestServer(t)
			submissions.downloadErr = tt.err

			w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/download-excel?"+tt.query, nil)))

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "xlsx-bytes", w.Body.String())
				assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
				assert.Contains(t, w.Header().Get("Content-Disposition"), "purchase_request.xlsx")
			}
		})
	}
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) PageResponse {
	t.Helper()
	var page PageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page
}

func TestRedirectTargets(t *testing.T) {
	t.Run("login page shows the error code", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, httptest.NewRequest(http.MethodGet, "/login?error=invalid_credentials", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		page := decodePage(t, w)
		assert.Equal(t, "login", page.Page)
		assert.Equal(t, "invalid_credentials", page.Error)
	})

	t.Run("dashboard", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/dashboard?error=no_forms", nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		page := decodePage(t, w)
		assert.Equal(t, "dashboard", page.Page)
		assert.Equal(t, "no_forms", page.Error)
		require.NotNil(t, page.Profile)
		assert.Equal(t, "Jane Doe", page.Profile.Name)
	})

	t.Run("dashboard with incomplete profile", func(t *testing.T) {
		s, users, _ := newTestServer(t)
		users.complete = false

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil)))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/edit-profile?error=profile_incomplete", w.Header().Get("Location"))
	})

	t.Run("edit profile", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/edit-profile?error=profile_incomplete", nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		page := decodePage(t, w)
		assert.Equal(t, "edit-profile", page.Page)
		assert.Equal(t, "profile_incomplete", page.Error)
		require.NotNil(t, page.Profile)
		assert.True(t, page.Profile.HasSignature)
	})

	t.Run("success links the workbook", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/success?drive_folder_id=drive-1&excel_file=purchase_request.xlsx", nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		page := decodePage(t, w)
		assert.Equal(t, "success", page.Page)
		assert.Equal(t, "drive-1", page.DriveFolderID)
		assert.Equal(t, "/download-excel?drive_folder_id=drive-1&excel_file=purchase_request.xlsx", page.DownloadURL)
	})

	t.Run("success without drive folder", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		w := serve(s, withSession(httptest.NewRequest(http.MethodGet, "/success?excel_file=../x.xlsx", nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodePage(t, w).DownloadURL)
	})

	t.Run("pages require a session", func(t *testing.T) {
		s, _, _ := newTestServer(t)

		for _, path := range []string{"/dashboard", "/edit-profile", "/success"} {
			w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusFound, w.Code, path)
			assert.Equal(t, "/login", w.Header().Get("Location"), path)
		}
	})
}
