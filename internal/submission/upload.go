package submission

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
)

// UploadedFile is a file part of a submission
type UploadedFile interface {
	Filename() string
	ContentType() string
	Read() ([]byte, error)
}

// MultipartFile adapts a parsed multipart file header
type MultipartFile struct {
	header *multipart.FileHeader
}

// NewMultipartFile wraps a multipart file header
func NewMultipartFile(header *multipart.FileHeader) *MultipartFile {
	return &MultipartFile{header: header}
}

// Filename is the client-supplied name of the upload
func (f *MultipartFile) Filename() string {
	return f.header.Filename
}

// ContentType is the part's Content-Type header, possibly empty
func (f *MultipartFile) ContentType() string {
	return f.header.Header.Get("Content-Type")
}

// Read returns the whole upload, whether gin buffered it in memory or on disk
func (f *MultipartFile) Read() ([]byte, error) {
	file, err := f.header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", f.header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", f.header.Filename, err)
	}
	return data, nil
}

// MemoryFile is an UploadedFile held in memory
type MemoryFile struct {
	Name string
	Type string
	Data []byte
}

// Filename returns Name
func (f *MemoryFile) Filename() string { return f.Name }

// ContentType returns Type
func (f *MemoryFile) ContentType() string { return f.Type }

// Read returns Data without copying it
func (f *MemoryFile) Read() ([]byte, error) { return f.Data, nil }

// Fields is the flat key/value view of a submission
type Fields struct {
	Values map[string]string
	Files  map[string]UploadedFile
}

// FieldsFromMultipart takes the first value and first file for every key
func FieldsFromMultipart(form *multipart.Form) Fields {
	fields := Fields{
		Values: make(map[string]string),
		Files:  make(map[string]UploadedFile),
	}
	if form == nil {
		return fields
	}

	for key, values := range form.Value {
		if len(values) > 0 {
			fields.Values[key] = values[0]
		}
	}
	for key, headers := range form.File {
		if len(headers) > 0 && headers[0] != nil {
			fields.Files[key] = NewMultipartFile(headers[0])
		}
	}
	return fields
}

// Value returns the trimmed value for key, or "" when absent
func (f Fields) Value(key string) string {
	return strings.TrimSpace(f.Values[key])
}

// File returns the upload for key, or nil when it is absent or was sent
// without a filename (an empty file input).
func (f Fields) File(key string) UploadedFile {
	file, ok := f.Files[key]
	if !ok || file == nil || strings.TrimSpace(file.Filename()) == "" {
		return nil
	}
	return file
}
