package gdrive

import "errors"

var (
	ErrFileNotFound     = errors.New("file not found in drive folder")
	ErrIncompleteUpload = errors.New("some files could not be uploaded")
	ErrNoParentFolder   = errors.New("drive parent folder is not configured")
)
