package http

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/application/service"
	"github.com/garyjia/purchase-request/internal/gdrive"
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/internal/submission"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	users       service.UserService
	submissions service.SubmissionService
	health      port.HealthChecker
	config      ServerConfig
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	users service.UserService,
	submissions service.SubmissionService,
	health port.HealthChecker,
	config ServerConfig,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		users:       users,
		submissions: submissions,
		health:      health,
		config:      config,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                          `json:"status"`
	Timestamp  string                          `json:"timestamp"`
	Components map[string]port.ComponentHealth `json:"components,omitempty"`
}

// ProfileResponse is the profile as shown on the edit page
type ProfileResponse struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	PersonalEmail        string `json:"personal_email"`
	Address              string `json:"address"`
	Team                 string `json:"team"`
	HasSignature         bool   `json:"has_signature"`
	SignatureContentType string `json:"signature_content_type,omitempty"`
	ProfileComplete      bool   `json:"profile_complete"`
}

// ProfileUpdateResponse reports the outcome of a profile save
type ProfileUpdateResponse struct {
	Profile          ProfileResponse `json:"profile"`
	PasswordChanged  bool            `json:"password_changed"`
	PasswordError    string          `json:"password_error,omitempty"`
	SignatureUpdated bool            `json:"signature_updated"`
}

// PageResponse is the state of a page the browser lands on after a redirect
type PageResponse struct {
	Page          string           `json:"page"`
	Error         string           `json:"error,omitempty"`
	Profile       *ProfileResponse `json:"profile,omitempty"`
	DriveFolderID string           `json:"drive_folder_id,omitempty"`
	ExcelFile     string           `json:"excel_file,omitempty"`
	DownloadURL   string           `json:"download_url,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if h.health == nil {
		c.JSON(http.StatusOK, response)
		return
	}

	status := h.health.Health()
	response.Components = status.Components
	if !status.Overall {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Home handles GET /
func (h *Handlers) Home(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/login")
}

// Login handles POST /login
func (h *Handlers) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	user, session, err := h.users.Login(email, password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		c.Redirect(http.StatusSeeOther, "/login?error=invalid_credentials")
		return
	}
	if err != nil {
		h.logger.Error("Login failed", zap.String("email", email), zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/login?error=login_failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, session.Token, int(h.sessionTTL().Seconds()), "/", "", h.config.SecureCookies, true)

	if h.users.IsProfileComplete(user) {
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}
	c.Redirect(http.StatusSeeOther, "/edit-profile")
}

// Logout handles GET /logout
func (h *Handlers) Logout(c *gin.Context) {
	if token, err := c.Cookie(SessionCookie); err == nil {
		if err := h.users.Logout(token); err != nil {
			h.logger.Warn("Failed to delete session", zap.Error(err))
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", h.config.SecureCookies, true)
	c.Redirect(http.StatusSeeOther, "/login")
}

// LoginPage handles GET /login
func (h *Handlers) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, PageResponse{Page: "login", Error: c.Query("error")})
}

// Dashboard handles GET /dashboard. Users with an incomplete profile are
// sent to the edit page first.
func (h *Handlers) Dashboard(c *gin.Context) {
	user := currentUser(c)
	if !h.users.IsProfileComplete(user) {
		c.Redirect(http.StatusSeeOther, "/edit-profile?error=profile_incomplete")
		return
	}

	profile := h.profileResponse(user)
	c.JSON(http.StatusOK, PageResponse{Page: "dashboard", Error: c.Query("error"), Profile: &profile})
}

// EditProfilePage handles GET /edit-profile
func (h *Handlers) EditProfilePage(c *gin.Context) {
	profile := h.profileResponse(currentUser(c))
	c.JSON(http.StatusOK, PageResponse{Page: "edit-profile", Error: c.Query("error"), Profile: &profile})
}

// Success handles GET /success
func (h *Handlers) Success(c *gin.Context) {
	page := PageResponse{
		Page:          "success",
		DriveFolderID: c.Query("drive_folder_id"),
		ExcelFile:     c.Query("excel_file"),
	}
	if page.DriveFolderID != "" && validWorkbookName(page.ExcelFile) {
		query := url.Values{}
		query.Set("drive_folder_id", page.DriveFolderID)
		query.Set("excel_file", page.ExcelFile)
		page.DownloadURL = "/download-excel?" + query.Encode()
	}
	c.JSON(http.StatusOK, page)
}

// GetProfile handles GET /api/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.profileResponse(user),
	})
}

// UpdateProfile handles POST /api/profile
func (h *Handlers) UpdateProfile(c *gin.Context) {
	user := currentUser(c)

	update := service.ProfileUpdate{
		Name:            c.PostForm("name"),
		Email:           c.PostForm("email"),
		PersonalEmail:   c.PostForm("personal_email"),
		Address:         c.PostForm("address"),
		Team:            c.PostForm("team"),
		CurrentPassword: c.PostForm("current_password"),
		NewPassword:     c.PostForm("new_password"),
		ConfirmPassword: c.PostForm("confirm_password"),
	}

	if header, err := c.FormFile("signature"); err == nil && header.Filename != "" {
		upload, err := readSignature(header)
		if err != nil {
			h.logger.Error("Failed to read signature upload", zap.Error(err))
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "could not read signature file"})
			return
		}
		update.Signature = upload
	}

	result, err := h.users.UpdateProfile(user.ID, update)
	switch {
	case errors.Is(err, service.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	case errors.Is(err, repository.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, Response{Success: false, Error: "email already registered"})
		return
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "user not found"})
		return
	case err != nil:
		h.logger.Error("Error updating profile", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "update_failed"})
		return
	}

	response := ProfileUpdateResponse{
		Profile:          h.profileResponse(result.User),
		PasswordChanged:  result.PasswordChanged,
		SignatureUpdated: result.SignatureUpdated,
	}
	if result.PasswordError != nil {
		response.PasswordError = result.PasswordError.Error()
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: response})
}

// SubmitAllRequests handles POST /submit-all-requests
func (h *Handlers) SubmitAllRequests(c *gin.Context) {
	user := currentUser(c)
	if !h.users.IsProfileComplete(user) {
		c.Redirect(http.StatusSeeOther, "/edit-profile?error=profile_incomplete")
		return
	}

	fields, err := h.readFields(c)
	if err != nil {
		h.logger.Warn("Unreadable submission", zap.String("email", user.Email), zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/dashboard?error=invalid_submission")
		return
	}

	// uploads continue when the browser goes away
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := h.submissions.Submit(ctx, user, fields)
	if errors.Is(err, service.ErrNoForms) {
		c.Redirect(http.StatusSeeOther, "/dashboard?error=no_forms")
		return
	}
	if err != nil {
		_ = c.Error(err)
		h.logger.Error("Submission failed", zap.String("email", user.Email), zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/dashboard?error=submission_failed")
		return
	}

	c.Redirect(http.StatusSeeOther, successURL(result))
}

// DownloadExcel handles GET /download-excel
func (h *Handlers) DownloadExcel(c *gin.Context) {
	folderID := strings.TrimSpace(c.Query("drive_folder_id"))
	filename := strings.TrimSpace(c.Query("excel_file"))

	if folderID == "" || !validWorkbookName(filename) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid session folder"})
		return
	}

	data, err := h.submissions.DownloadWorkbook(c.Request.Context(), folderID, filename)
	switch {
	case errors.Is(err, gdrive.ErrFileNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "Excel file not found"})
		return
	case errors.Is(err, service.ErrDriveDisabled):
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("Workbook download failed",
			zap.String("drive_folder_id", folderID),
			zap.String("excel_file", filename),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, Response{Success: false, Error: "download failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handlers) sessionTTL() time.Duration {
	if h.config.SessionTTL > 0 {
		return h.config.SessionTTL
	}
	return service.DefaultSessionTTL
}

func (h *Handlers) profileResponse(user *models.User) ProfileResponse {
	return ProfileResponse{
		Name:                 user.Name,
		Email:                user.Email,
		PersonalEmail:        user.PersonalEmail,
		Address:              user.Address,
		Team:                 user.Team,
		HasSignature:         len(user.SignatureData) > 0,
		SignatureContentType: user.SignatureContentType,
		ProfileComplete:      h.users.IsProfileComplete(user),
	}
}

// readFields accepts multipart and url-encoded submissions
func (h *Handlers) readFields(c *gin.Context) (submission.Fields, error) {
	if h.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err == nil {
		return submission.FieldsFromMultipart(form), nil
	}
	if !errors.Is(err, http.ErrNotMultipart) {
		return submission.Fields{}, err
	}

	if err := c.Request.ParseForm(); err != nil {
		return submission.Fields{}, err
	}
	return submission.FieldsFromMultipart(&multipart.Form{Value: c.Request.PostForm}), nil
}

func readSignature(header *multipart.FileHeader) (*service.SignatureUpload, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &service.SignatureUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func successURL(result *service.SubmissionResult) string {
	if result.DriveFolderID == "" {
		return "/success"
	}
	query := url.Values{}
	query.Set("drive_folder_id", result.DriveFolderID)
	query.Set("excel_file", result.WorkbookFile)
	return "/success?" + query.Encode()
}

// validWorkbookName accepts a bare .xlsx file name
func validWorkbookName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.ContainsAny(name, `/\"`) &&
		strings.EqualFold(filepath.Ext(name), ".xlsx")
}
