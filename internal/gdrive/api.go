package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// FileAPI is the subset of Drive operations the uploader needs
type FileAPI interface {
	GetFolder(ctx context.Context, folderID string) (string, error)
	FindFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	FindFile(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (string, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// ServiceAPI implements FileAPI on a Drive v3 service
type ServiceAPI struct {
	service *drive.Service
}

// NewServiceAPI authenticates with service account credentials
func NewServiceAPI(ctx context.Context, credentialsJSON []byte) (*ServiceAPI, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &ServiceAPI{service: service}, nil
}

// GetFolder returns the folder name, failing when the id is not visible
func (a *ServiceAPI) GetFolder(ctx context.Context, folderID string) (string, error) {
	file, err := a.service.Files.Get(folderID).
		Fields("id, name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return file.Name, nil
}

// FindFolder returns the id of the first folder named name under parentID, or ""
func (a *ServiceAPI) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))
	return a.first(ctx, q)
}

// FindFile returns the id of the first non-folder file named name under parentID, or ""
func (a *ServiceAPI) FindFile(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and mimeType!='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))
	return a.first(ctx, q)
}

func (a *ServiceAPI) first(ctx context.Context, q string) (string, error) {
	list, err := a.service.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// CreateFolder creates a folder under parentID and returns its id
func (a *ServiceAPI) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	folder, err := a.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return folder.Id, nil
}

// UploadFile creates a file under parentID with the given content
func (a *ServiceAPI) UploadFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (string, error) {
	file, err := a.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).
		Media(content, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

// Download streams the content of fileID
func (a *ServiceAPI) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := a.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// escapeQuery escapes a literal for the Drive search grammar
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
